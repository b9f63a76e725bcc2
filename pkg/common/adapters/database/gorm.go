package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
)

// logGormFailure renders the failing statement with a dry run of build.
func logGormFailure(method string, db *gorm.DB, build func(*gorm.DB) *gorm.DB, err error) {
	if err == nil {
		return
	}
	logger.Error("%s failed. SQL: %s. Error: %v", method, db.ToSQL(build), err)
}

// GormAdapter adapts GORM to work with our Database interface
type GormAdapter struct {
	db *gorm.DB
}

// NewGormAdapter creates a new GORM adapter
func NewGormAdapter(db *gorm.DB) *GormAdapter {
	return &GormAdapter{db: db}
}

// EnableQueryDebug switches the session to GORM's debug logger.
func (g *GormAdapter) EnableQueryDebug() *GormAdapter {
	g.db = g.db.Debug()
	logger.Info("GORM query debug enabled")
	return g
}

func (g *GormAdapter) NewSelect() common.SelectQuery {
	return &GormSelectQuery{db: g.db}
}

func (g *GormAdapter) NewInsert() common.InsertQuery {
	return &GormInsertQuery{db: g.db}
}

func (g *GormAdapter) NewUpdate() common.UpdateQuery {
	return &GormUpdateQuery{db: g.db}
}

func (g *GormAdapter) NewDelete() common.DeleteQuery {
	return &GormDeleteQuery{db: g.db}
}

func (g *GormAdapter) Exec(ctx context.Context, query string, args ...interface{}) (res common.Result, err error) {
	defer guard("GormAdapter.Exec", &err)
	result := g.db.WithContext(ctx).Exec(query, args...)
	return gormResult{result}, result.Error
}

// RunInTransaction hands fn an adapter bound to the transaction. GORM nests
// inner calls as savepoints.
func (g *GormAdapter) RunInTransaction(ctx context.Context, fn func(common.Database) error) (err error) {
	defer guard("GormAdapter.RunInTransaction", &err)
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormAdapter{db: tx})
	})
}

// GetUnderlyingDB returns the *gorm.DB.
func (g *GormAdapter) GetUnderlyingDB() interface{} {
	return g.db
}

func (g *GormAdapter) DriverName() string {
	if g.db.Dialector == nil {
		return ""
	}
	return driverFromDialect(g.db.Dialector.Name())
}

// GormSelectQuery implements SelectQuery for GORM. Ordering and windowing are
// held back until rows are read so Count stays valid on every dialect.
type GormSelectQuery struct {
	db     *gorm.DB
	orders []string
	limit  int
	offset int
}

func (g *GormSelectQuery) Model(model interface{}) common.SelectQuery {
	g.db = g.db.Model(model)
	return g
}

func (g *GormSelectQuery) Table(table string) common.SelectQuery {
	g.db = g.db.Table(table)
	return g
}

// Where adds a condition. GORM leaves '?' untouched when no args are bound.
func (g *GormSelectQuery) Where(query string, args ...interface{}) common.SelectQuery {
	g.db = g.db.Where(query, args...)
	return g
}

func (g *GormSelectQuery) Join(query string, args ...interface{}) common.SelectQuery {
	g.db = g.db.Joins(query, args...)
	return g
}

func (g *GormSelectQuery) Order(order string) common.SelectQuery {
	g.orders = append(g.orders, order)
	return g
}

func (g *GormSelectQuery) Limit(n int) common.SelectQuery {
	g.limit = n
	return g
}

func (g *GormSelectQuery) Offset(n int) common.SelectQuery {
	g.offset = n
	return g
}

// RootAlias is empty: GORM addresses the model table by its name.
func (g *GormSelectQuery) RootAlias() string {
	return ""
}

func (g *GormSelectQuery) windowed(tx *gorm.DB) *gorm.DB {
	for _, o := range g.orders {
		tx = tx.Order(o)
	}
	if g.limit > 0 {
		tx = tx.Limit(g.limit)
	}
	if g.offset > 0 {
		tx = tx.Offset(g.offset)
	}
	return tx
}

func (g *GormSelectQuery) Scan(ctx context.Context, dest interface{}) (err error) {
	defer guard("GormSelectQuery.Scan", &err)
	if dest == nil {
		return fmt.Errorf("destination cannot be nil")
	}
	find := func(tx *gorm.DB) *gorm.DB { return g.windowed(tx).Find(dest) }
	err = find(g.db.WithContext(ctx)).Error
	logGormFailure("GormSelectQuery.Scan", g.db, find, err)
	return err
}

// ScanModel reads into the value passed to Model.
func (g *GormSelectQuery) ScanModel(ctx context.Context) error {
	if g.db.Statement.Model == nil {
		return fmt.Errorf("model is nil")
	}
	return g.Scan(ctx, g.db.Statement.Model)
}

func (g *GormSelectQuery) Count(ctx context.Context) (count int, err error) {
	defer guard("GormSelectQuery.Count", &err)
	var n int64
	count64 := func(tx *gorm.DB) *gorm.DB { return tx.Count(&n) }
	err = count64(g.db.WithContext(ctx)).Error
	logGormFailure("GormSelectQuery.Count", g.db, count64, err)
	return int(n), err
}

func (g *GormSelectQuery) Exists(ctx context.Context) (exists bool, err error) {
	defer guard("GormSelectQuery.Exists", &err)
	var n int64
	probe := func(tx *gorm.DB) *gorm.DB { return tx.Limit(1).Count(&n) }
	err = probe(g.db.WithContext(ctx)).Error
	logGormFailure("GormSelectQuery.Exists", g.db, probe, err)
	return n > 0, err
}

// GormInsertQuery implements InsertQuery for GORM. Generated keys are
// written back into the model.
type GormInsertQuery struct {
	db    *gorm.DB
	model interface{}
}

func (g *GormInsertQuery) Model(model interface{}) common.InsertQuery {
	g.model = model
	return g
}

func (g *GormInsertQuery) Exec(ctx context.Context) (res common.Result, err error) {
	defer guard("GormInsertQuery.Exec", &err)
	if g.model == nil {
		return gormResult{}, fmt.Errorf("insert requires a model")
	}
	create := func(tx *gorm.DB) *gorm.DB { return tx.Create(g.model) }
	result := create(g.db.WithContext(ctx))
	logGormFailure("GormInsertQuery.Exec", g.db, create, result.Error)
	return gormResult{result}, result.Error
}

// GormUpdateQuery implements UpdateQuery for GORM. With a model and no Set
// calls every column of the model is written.
type GormUpdateQuery struct {
	db      *gorm.DB
	model   interface{}
	updates map[string]interface{}
}

func (g *GormUpdateQuery) Model(model interface{}) common.UpdateQuery {
	g.model = model
	g.db = g.db.Model(model)
	return g
}

func (g *GormUpdateQuery) Table(table string) common.UpdateQuery {
	g.db = g.db.Table(table)
	return g
}

// Set writes column unless the model declares it read-only.
func (g *GormUpdateQuery) Set(column string, value interface{}) common.UpdateQuery {
	if !columnWritable(g.model, column) {
		return g
	}
	if g.updates == nil {
		g.updates = make(map[string]interface{})
	}
	g.updates[column] = value
	return g
}

// SetMap sets every column in values except the primary key.
func (g *GormUpdateQuery) SetMap(values map[string]interface{}) common.UpdateQuery {
	for _, column := range settableColumns(g.model, values) {
		g.Set(column, values[column])
	}
	return g
}

func (g *GormUpdateQuery) Where(query string, args ...interface{}) common.UpdateQuery {
	g.db = g.db.Where(query, args...)
	return g
}

func (g *GormUpdateQuery) Exec(ctx context.Context) (res common.Result, err error) {
	defer guard("GormUpdateQuery.Exec", &err)
	apply := func(tx *gorm.DB) *gorm.DB {
		if g.updates == nil && g.model != nil {
			return tx.Select("*").Updates(g.model)
		}
		return tx.Updates(g.updates)
	}
	result := apply(g.db.WithContext(ctx))
	logGormFailure("GormUpdateQuery.Exec", g.db, apply, result.Error)
	return gormResult{result}, result.Error
}

// GormDeleteQuery implements DeleteQuery for GORM
type GormDeleteQuery struct {
	db    *gorm.DB
	model interface{}
}

func (g *GormDeleteQuery) Model(model interface{}) common.DeleteQuery {
	g.model = model
	g.db = g.db.Model(model)
	return g
}

func (g *GormDeleteQuery) Table(table string) common.DeleteQuery {
	g.db = g.db.Table(table)
	return g
}

func (g *GormDeleteQuery) Where(query string, args ...interface{}) common.DeleteQuery {
	g.db = g.db.Where(query, args...)
	return g
}

func (g *GormDeleteQuery) Exec(ctx context.Context) (res common.Result, err error) {
	defer guard("GormDeleteQuery.Exec", &err)
	if g.model == nil {
		return gormResult{}, fmt.Errorf("delete requires a model")
	}
	del := func(tx *gorm.DB) *gorm.DB { return tx.Delete(g.model) }
	result := del(g.db.WithContext(ctx))
	logGormFailure("GormDeleteQuery.Exec", g.db, del, result.Error)
	return gormResult{result}, result.Error
}

type gormResult struct {
	result *gorm.DB
}

func (g gormResult) RowsAffected() int64 {
	if g.result == nil {
		return 0
	}
	return g.result.RowsAffected
}
