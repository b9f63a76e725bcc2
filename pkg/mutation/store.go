package mutation

import (
	"context"
	"fmt"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
	"github.com/bitechdev/ModelSpec/pkg/query"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

// Store is the persistence collaborator of the pipeline.
type Store interface {
	Insert(ctx context.Context, model *metadata.Model, obj interface{}) error
	// Update writes columns of obj, or every column when columns is empty.
	Update(ctx context.Context, model *metadata.Model, obj interface{}, columns []string) error
	// Destroy removes obj and reports whether a row was deleted.
	Destroy(ctx context.Context, model *metadata.Model, obj interface{}) (bool, error)
	// MarkDeleted sets the deleted marker column of obj to value.
	MarkDeleted(ctx context.Context, model *metadata.Model, obj interface{}, value interface{}) error
	// Transaction runs fn against a store bound to one transaction. An error
	// from fn rolls back everything written through that store.
	Transaction(ctx context.Context, fn func(Store) error) error
}

// DBStore persists through a common.Database.
type DBStore struct {
	DB common.Database
}

func NewDBStore(db common.Database) *DBStore {
	return &DBStore{DB: db}
}

func (s *DBStore) Insert(ctx context.Context, model *metadata.Model, obj interface{}) error {
	_, err := s.DB.NewInsert().Model(obj).Exec(ctx)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", model.Name, err)
	}
	return nil
}

func (s *DBStore) Update(ctx context.Context, model *metadata.Model, obj interface{}, columns []string) error {
	pk, err := primaryKey(model, obj)
	if err != nil {
		return err
	}
	q := s.DB.NewUpdate().Model(obj)
	if len(columns) > 0 {
		values := make(map[string]interface{}, len(columns))
		for _, c := range columns {
			if v, ok := reflection.GetFieldByColumn(obj, c); ok {
				values[c] = v
			}
		}
		q = q.SetMap(values)
	}
	if _, err := q.Where(query.QuoteIdent(model.PrimaryKey)+" = ?", pk).Exec(ctx); err != nil {
		return fmt.Errorf("updating %s %v: %w", model.Name, pk, err)
	}
	return nil
}

func (s *DBStore) Destroy(ctx context.Context, model *metadata.Model, obj interface{}) (bool, error) {
	pk, err := primaryKey(model, obj)
	if err != nil {
		return false, err
	}
	res, err := s.DB.NewDelete().Model(obj).Where(query.QuoteIdent(model.PrimaryKey)+" = ?", pk).Exec(ctx)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *DBStore) MarkDeleted(ctx context.Context, model *metadata.Model, obj interface{}, value interface{}) error {
	pk, err := primaryKey(model, obj)
	if err != nil {
		return err
	}
	_, err = s.DB.NewUpdate().
		Table(model.Table).
		Set(model.DeletedColumn, value).
		Where(query.QuoteIdent(model.PrimaryKey)+" = ?", pk).
		Exec(ctx)
	return err
}

func (s *DBStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.DB.RunInTransaction(ctx, func(tx common.Database) error {
		return fn(&DBStore{DB: tx})
	})
}

func primaryKey(model *metadata.Model, obj interface{}) (interface{}, error) {
	v, ok := reflection.GetFieldByColumn(obj, model.PrimaryKey)
	if !ok {
		return nil, fmt.Errorf("%s has no primary key column %q", model.Name, model.PrimaryKey)
	}
	return v, nil
}
