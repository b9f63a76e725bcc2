package dbmanager

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrUnsupportedORM      = errors.New("unsupported orm")
	ErrConnectionClosed    = errors.New("connection is closed")
	ErrMissingDSN          = errors.New("dsn is required")
)

// ConnectionError is a failed step in the life of a connection. Attempts is
// set when the step was retried.
type ConnectionError struct {
	Type      DatabaseType
	Operation string
	Attempts  int
	Err       error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Type, e.Operation, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Type, e.Operation, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SettingError names the database setting that was rejected.
type SettingError struct {
	Key string
	Err error
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("database.%s: %v", e.Key, e.Err)
}

func (e *SettingError) Unwrap() error { return e.Err }
