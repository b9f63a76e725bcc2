package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBunDialect(t *testing.T) {
	for driver, name := range map[string]string{
		DriverPostgres: "pg",
		DriverSQLite:   "sqlite",
		DriverMSSQL:    "mssql",
	} {
		d, err := BunDialect(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, name, d.Name().String())
		assert.Equal(t, driver, driverFromDialect(name))
	}

	_, err := BunDialect("oracle")
	assert.Error(t, err)
}

func TestGormDialector(t *testing.T) {
	d, err := GormDialector(DriverMSSQL, nil)
	require.NoError(t, err)
	assert.Equal(t, DriverMSSQL, driverFromDialect(d.Name()))

	_, err = GormDialector("oracle", nil)
	assert.Error(t, err)
}

func TestSettableColumns(t *testing.T) {
	values := map[string]interface{}{"title": "x", "id": 4, "deleted": true}
	assert.Equal(t, []string{"deleted", "title"}, settableColumns(&bunWidget{}, values))
	assert.Equal(t, []string{"deleted", "id", "title"}, settableColumns(nil, values))
}
