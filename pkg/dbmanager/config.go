package dbmanager

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

// DatabaseType represents the type of database
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "postgres"
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypeMSSQL      DatabaseType = "mssql"
)

// ORMType selects the adapter the connection is exposed through.
type ORMType string

const (
	ORMTypeBun  ORMType = "bun"
	ORMTypeGORM ORMType = "gorm"
)

// driverName is the database/sql driver registered for each type.
func (t DatabaseType) driverName() string {
	switch t {
	case DatabaseTypePostgreSQL:
		return "pgx"
	case DatabaseTypeSQLite:
		return "sqlite"
	case DatabaseTypeMSSQL:
		return "sqlserver"
	}
	return ""
}

func parseType(s string) (DatabaseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgx":
		return DatabaseTypePostgreSQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	case "mssql", "sqlserver":
		return DatabaseTypeMSSQL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDatabase, s)
}

func parseORM(s string) (ORMType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bun":
		return ORMTypeBun, nil
	case "gorm":
		return ORMTypeGORM, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedORM, s)
}

// settings is a validated database configuration with defaults applied.
type settings struct {
	dbType          DatabaseType
	orm             ORMType
	dsn             string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connectTimeout  time.Duration
	queryDebug      bool
}

func newSettings(cfg config.DatabaseConfig) (settings, error) {
	dbType, err := parseType(cfg.Type)
	if err != nil {
		return settings{}, &SettingError{Key: "type", Err: err}
	}
	orm, err := parseORM(cfg.ORM)
	if err != nil {
		return settings{}, &SettingError{Key: "orm", Err: err}
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return settings{}, &SettingError{Key: "dsn", Err: ErrMissingDSN}
	}

	s := settings{
		dbType:          dbType,
		orm:             orm,
		dsn:             cfg.DSN,
		maxOpenConns:    cfg.MaxOpenConns,
		maxIdleConns:    cfg.MaxIdleConns,
		connMaxLifetime: cfg.ConnMaxLifetime,
		connectTimeout:  cfg.ConnectTimeout,
		queryDebug:      cfg.QueryDebug,
	}
	if s.maxOpenConns == 0 {
		s.maxOpenConns = 25
		// a single writer avoids "database is locked"
		if dbType == DatabaseTypeSQLite {
			s.maxOpenConns = 1
		}
	}
	if s.maxIdleConns == 0 {
		s.maxIdleConns = 5
	}
	if s.connMaxLifetime == 0 {
		s.connMaxLifetime = 30 * time.Minute
	}
	if s.connectTimeout == 0 {
		s.connectTimeout = 10 * time.Second
	}
	return s, nil
}
