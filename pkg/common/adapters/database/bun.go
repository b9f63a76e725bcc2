package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

// guard turns a panic in the deferring method into its returned error.
// It must be deferred directly.
func guard(method string, err *error) {
	if r := recover(); r != nil {
		*err = logger.HandlePanic(method, r)
	}
}

func logFailure(method, statement string, err error) {
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Error("%s failed. SQL: %s. Error: %v", method, statement, err)
	}
}

// QueryDebugHook logs every statement Bun runs, failures at error level.
type QueryDebugHook struct{}

func (h *QueryDebugHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryDebugHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		logger.Error("SQL failed [%s]: %s. Error: %v", elapsed, event.Query, event.Err)
		return
	}
	logger.Debug("SQL [%s]: %s", elapsed, event.Query)
}

// bunConn implements common.Database over anything Bun can run queries
// on, a *bun.DB or a bun.Tx.
type bunConn struct {
	idb    bun.IDB
	driver string
}

func (b *bunConn) NewSelect() common.SelectQuery {
	return &BunSelectQuery{query: b.idb.NewSelect(), db: b.idb}
}

func (b *bunConn) NewInsert() common.InsertQuery {
	return &BunInsertQuery{query: b.idb.NewInsert()}
}

func (b *bunConn) NewUpdate() common.UpdateQuery {
	return &BunUpdateQuery{query: b.idb.NewUpdate()}
}

func (b *bunConn) NewDelete() common.DeleteQuery {
	return &BunDeleteQuery{query: b.idb.NewDelete()}
}

func (b *bunConn) Exec(ctx context.Context, query string, args ...interface{}) (res common.Result, err error) {
	defer guard("BunAdapter.Exec", &err)
	result, err := b.idb.ExecContext(ctx, query, args...)
	return sqlResult{result}, err
}

func (b *bunConn) DriverName() string {
	return b.driver
}

// BunAdapter adapts Bun to work with our Database interface
type BunAdapter struct {
	bunConn
	db *bun.DB
}

// NewBunAdapter creates a new Bun adapter
func NewBunAdapter(db *bun.DB) *BunAdapter {
	return &BunAdapter{
		bunConn: bunConn{idb: db, driver: driverFromDialect(db.Dialect().Name().String())},
		db:      db,
	}
}

// EnableQueryDebug logs every SQL statement at debug level
func (b *BunAdapter) EnableQueryDebug() {
	b.db.AddQueryHook(&QueryDebugHook{})
	logger.Info("Bun query debug enabled")
}

// RunInTransaction commits when fn returns nil and rolls back otherwise,
// including when fn panics.
func (b *BunAdapter) RunInTransaction(ctx context.Context, fn func(common.Database) error) (err error) {
	defer guard("BunAdapter.RunInTransaction", &err)
	return b.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(&bunTx{bunConn{idb: tx, driver: b.driver}, tx})
	})
}

// GetUnderlyingDB returns the *bun.DB.
func (b *BunAdapter) GetUnderlyingDB() interface{} {
	return b.db
}

// bunTx is the Database handed to transaction callbacks. Nested
// transactions run inline.
type bunTx struct {
	bunConn
	tx bun.Tx
}

func (b *bunTx) RunInTransaction(_ context.Context, fn func(common.Database) error) error {
	return fn(b)
}

func (b *bunTx) GetUnderlyingDB() interface{} {
	return b.tx
}

// BunSelectQuery implements SelectQuery for Bun
type BunSelectQuery struct {
	query    *bun.SelectQuery
	db       bun.IDB
	hasModel bool
	alias    string
}

// Model sets the model. Bun addresses the model table by the model's alias,
// which is reported through RootAlias.
func (b *BunSelectQuery) Model(model interface{}) common.SelectQuery {
	b.query = b.query.Model(model)
	b.hasModel = true
	if t := reflection.ModelType(model); t != nil {
		b.alias = b.db.Dialect().Tables().Get(t).Alias
	}
	return b
}

func (b *BunSelectQuery) Table(table string) common.SelectQuery {
	b.query = b.query.Table(table)
	return b
}

// Where adds a condition. Conditions without args are appended verbatim, so
// literal values may contain '?'.
func (b *BunSelectQuery) Where(query string, args ...interface{}) common.SelectQuery {
	b.query = b.query.Where(query, args...)
	return b
}

func (b *BunSelectQuery) Join(query string, args ...interface{}) common.SelectQuery {
	b.query = b.query.Join(query, args...)
	return b
}

func (b *BunSelectQuery) Order(order string) common.SelectQuery {
	b.query = b.query.OrderExpr(order)
	return b
}

func (b *BunSelectQuery) Limit(n int) common.SelectQuery {
	b.query = b.query.Limit(n)
	return b
}

func (b *BunSelectQuery) Offset(n int) common.SelectQuery {
	b.query = b.query.Offset(n)
	return b
}

func (b *BunSelectQuery) RootAlias() string {
	return b.alias
}

func (b *BunSelectQuery) Scan(ctx context.Context, dest interface{}) (err error) {
	defer guard("BunSelectQuery.Scan", &err)
	if dest == nil {
		return fmt.Errorf("destination cannot be nil")
	}
	err = b.query.Scan(ctx, dest)
	logFailure("BunSelectQuery.Scan", b.query.String(), err)
	return err
}

func (b *BunSelectQuery) ScanModel(ctx context.Context) (err error) {
	defer guard("BunSelectQuery.ScanModel", &err)
	if b.query.GetModel() == nil {
		return fmt.Errorf("model is nil")
	}
	err = b.query.Scan(ctx)
	logFailure("BunSelectQuery.ScanModel", b.query.String(), err)
	return err
}

// Count ignores limit and offset. Queries without a model are counted
// through a subquery.
func (b *BunSelectQuery) Count(ctx context.Context) (count int, err error) {
	defer guard("BunSelectQuery.Count", &err)
	if b.hasModel {
		count, err = b.query.Count(ctx)
		logFailure("BunSelectQuery.Count", b.query.String(), err)
		return count, err
	}
	sub := b.db.NewSelect().TableExpr("(?) AS subquery", b.query).ColumnExpr("COUNT(*)")
	err = sub.Scan(ctx, &count)
	logFailure("BunSelectQuery.Count", sub.String(), err)
	return count, err
}

func (b *BunSelectQuery) Exists(ctx context.Context) (exists bool, err error) {
	defer guard("BunSelectQuery.Exists", &err)
	exists, err = b.query.Exists(ctx)
	logFailure("BunSelectQuery.Exists", b.query.String(), err)
	return exists, err
}

// BunInsertQuery implements InsertQuery for Bun
type BunInsertQuery struct {
	query *bun.InsertQuery
}

func (b *BunInsertQuery) Model(model interface{}) common.InsertQuery {
	b.query = b.query.Model(model)
	return b
}

func (b *BunInsertQuery) Exec(ctx context.Context) (res common.Result, err error) {
	defer guard("BunInsertQuery.Exec", &err)
	result, err := b.query.Exec(ctx)
	logFailure("BunInsertQuery.Exec", b.query.String(), err)
	return sqlResult{result}, err
}

// BunUpdateQuery implements UpdateQuery for Bun. With a model and no Set
// calls every column of the model is written.
type BunUpdateQuery struct {
	query *bun.UpdateQuery
	model interface{}
}

func (b *BunUpdateQuery) Model(model interface{}) common.UpdateQuery {
	b.query = b.query.Model(model)
	b.model = model
	return b
}

func (b *BunUpdateQuery) Table(table string) common.UpdateQuery {
	b.query = b.query.Table(table)
	return b
}

// Set writes column unless the model declares it read-only.
func (b *BunUpdateQuery) Set(column string, value interface{}) common.UpdateQuery {
	if columnWritable(b.model, column) {
		b.query = b.query.Set("? = ?", bun.Ident(column), value)
	}
	return b
}

// SetMap sets every column in values except the primary key, in column order.
func (b *BunUpdateQuery) SetMap(values map[string]interface{}) common.UpdateQuery {
	for _, column := range settableColumns(b.model, values) {
		b.Set(column, values[column])
	}
	return b
}

func (b *BunUpdateQuery) Where(query string, args ...interface{}) common.UpdateQuery {
	b.query = b.query.Where(query, args...)
	return b
}

func (b *BunUpdateQuery) Exec(ctx context.Context) (res common.Result, err error) {
	defer guard("BunUpdateQuery.Exec", &err)
	result, err := b.query.Exec(ctx)
	logFailure("BunUpdateQuery.Exec", b.query.String(), err)
	return sqlResult{result}, err
}

// BunDeleteQuery implements DeleteQuery for Bun
type BunDeleteQuery struct {
	query *bun.DeleteQuery
}

func (b *BunDeleteQuery) Model(model interface{}) common.DeleteQuery {
	b.query = b.query.Model(model)
	return b
}

func (b *BunDeleteQuery) Table(table string) common.DeleteQuery {
	b.query = b.query.Table(table)
	return b
}

func (b *BunDeleteQuery) Where(query string, args ...interface{}) common.DeleteQuery {
	b.query = b.query.Where(query, args...)
	return b
}

func (b *BunDeleteQuery) Exec(ctx context.Context) (res common.Result, err error) {
	defer guard("BunDeleteQuery.Exec", &err)
	result, err := b.query.Exec(ctx)
	logFailure("BunDeleteQuery.Exec", b.query.String(), err)
	return sqlResult{result}, err
}

// sqlResult reports rows affected by a database/sql result, 0 when absent.
type sqlResult struct {
	result sql.Result
}

func (r sqlResult) RowsAffected() int64 {
	if r.result == nil {
		return 0
	}
	n, _ := r.result.RowsAffected()
	return n
}
