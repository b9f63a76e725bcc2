package database

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/uptrace/bun/dialect/mssqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"

	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

// Driver names as they appear in configuration and DriverName.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMSSQL    = "mssql"
)

// BunDialect returns the Bun dialect for a driver name.
func BunDialect(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverPostgres:
		return pgdialect.New(), nil
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverMSSQL:
		return mssqldialect.New(), nil
	}
	return nil, fmt.Errorf("no bun dialect for driver %q", driver)
}

// GormDialector returns a GORM dialector reusing the open connection db.
func GormDialector(driver string, db *sql.DB) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.New(postgres.Config{Conn: db}), nil
	case DriverSQLite:
		return sqlite.Dialector{Conn: db}, nil
	case DriverMSSQL:
		return sqlserver.New(sqlserver.Config{Conn: db}), nil
	}
	return nil, fmt.Errorf("no gorm dialector for driver %q", driver)
}

// driverFromDialect maps dialect names reported by Bun and GORM onto driver names.
func driverFromDialect(name string) string {
	switch name {
	case "pg", "postgres":
		return DriverPostgres
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "mssql", "sqlserver":
		return DriverMSSQL
	}
	return name
}

// columnWritable reports whether an update may set column on model.
// Columns the model does not declare are left to the database to reject.
func columnWritable(model interface{}, column string) bool {
	if model == nil {
		return true
	}
	f, ok := reflection.FieldByColumn(model, column)
	return !ok || !f.ReadOnly
}

// settableColumns orders values by column and drops the primary key of model.
func settableColumns(model interface{}, values map[string]interface{}) []string {
	pk := ""
	if model != nil {
		pk = reflection.GetPrimaryKeyName(model)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if pk != "" && k == pk {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
