package common

import (
	"context"
)

// Database interface designed to work with both GORM and Bun
type Database interface {
	NewSelect() SelectQuery
	NewInsert() InsertQuery
	NewUpdate() UpdateQuery
	NewDelete() DeleteQuery

	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)

	RunInTransaction(ctx context.Context, fn func(Database) error) error

	// GetUnderlyingDB returns *bun.DB or *gorm.DB
	GetUnderlyingDB() interface{}

	// DriverName returns one of "postgres", "sqlite", "mssql".
	DriverName() string
}

// SelectQuery is the composable query handle the query builder narrows.
// Every builder method returns the receiver so calls can be chained.
type SelectQuery interface {
	Model(model interface{}) SelectQuery
	Table(table string) SelectQuery
	Where(query string, args ...interface{}) SelectQuery
	Join(query string, args ...interface{}) SelectQuery
	Order(order string) SelectQuery
	Limit(n int) SelectQuery
	Offset(n int) SelectQuery

	// RootAlias is the name the model's table is addressed by in clauses,
	// empty when it is the table name itself.
	RootAlias() string

	Scan(ctx context.Context, dest interface{}) error
	ScanModel(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context) (bool, error)
}

// InsertQuery inserts one model; generated keys are written back into it.
type InsertQuery interface {
	Model(model interface{}) InsertQuery
	Exec(ctx context.Context) (Result, error)
}

// UpdateQuery interface for building UPDATE queries
type UpdateQuery interface {
	Model(model interface{}) UpdateQuery
	Table(table string) UpdateQuery
	Set(column string, value interface{}) UpdateQuery
	SetMap(values map[string]interface{}) UpdateQuery
	Where(query string, args ...interface{}) UpdateQuery

	Exec(ctx context.Context) (Result, error)
}

// DeleteQuery interface for building DELETE queries
type DeleteQuery interface {
	Model(model interface{}) DeleteQuery
	Table(table string) DeleteQuery
	Where(query string, args ...interface{}) DeleteQuery

	Exec(ctx context.Context) (Result, error)
}

// Result reports what a write did.
type Result interface {
	RowsAffected() int64
}

// Router interface for HTTP router abstraction.
// Patterns use the {param} placeholder syntax; adapters translate when needed.
type Router interface {
	HandleFunc(pattern string, handler HTTPHandlerFunc) RouteRegistration
}

// RouteRegistration allows method chaining for route configuration
type RouteRegistration interface {
	Methods(methods ...string) RouteRegistration
	Name(name string) RouteRegistration
}

// RouteResolver turns a named route and its path parameters into a path.
// The bool result is false when no route with that name is known.
type RouteResolver interface {
	ResolveRoute(name string, pathParams map[string]string) (string, bool)
}

// TableNameProvider interface for models that provide table names
type TableNameProvider interface {
	TableName() string
}

// PrimaryKeyNameProvider interface for models that provide primary key column names
type PrimaryKeyNameProvider interface {
	GetIDName() string
}
