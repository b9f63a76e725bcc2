package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

type bunWidget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Title   string `bun:"title"`
	Deleted bool   `bun:"deleted"`
}

func newBunAdapter(t *testing.T) (*BunAdapter, *bun.DB) {
	t.Helper()
	sqldb, err := sql.Open(sqlite.DriverName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	_, err = db.NewCreateTable().Model((*bunWidget)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return NewBunAdapter(db), db
}

func seedBun(t *testing.T, adapter *BunAdapter, titles ...string) []*bunWidget {
	t.Helper()
	var out []*bunWidget
	for _, title := range titles {
		w := &bunWidget{Title: title}
		_, err := adapter.NewInsert().Model(w).Exec(context.Background())
		require.NoError(t, err)
		out = append(out, w)
	}
	return out
}

func TestBunAdapterSelect(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newBunAdapter(t)
	seedBun(t, adapter, "alpha", "beta", "a?b")

	assert.Equal(t, "sqlite", adapter.DriverName())

	q := adapter.NewSelect().Model(&[]bunWidget{})
	assert.Equal(t, "bun_widget", q.RootAlias())

	t.Run("literal clause keeps question marks", func(t *testing.T) {
		count, err := adapter.NewSelect().Model((*bunWidget)(nil)).
			Where(`"bun_widget"."title" = 'a?b'`).
			Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("bound clause", func(t *testing.T) {
		exists, err := adapter.NewSelect().Model((*bunWidget)(nil)).
			Where(`"bun_widget"."title" = ?`, "beta").
			Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = adapter.NewSelect().Model((*bunWidget)(nil)).
			Where(`"bun_widget"."title" = ?`, "gamma").
			Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("order and window", func(t *testing.T) {
		var rows []bunWidget
		err := adapter.NewSelect().Model(&rows).
			Order(`"bun_widget"."title" DESC`).
			Limit(2).
			Offset(1).
			ScanModel(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "alpha", rows[0].Title)
		assert.Equal(t, "a?b", rows[1].Title)
	})

	t.Run("count ignores window", func(t *testing.T) {
		count, err := adapter.NewSelect().Model((*bunWidget)(nil)).
			Order(`"bun_widget"."title"`).
			Limit(1).
			Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestBunAdapterWrites(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newBunAdapter(t)
	widgets := seedBun(t, adapter, "alpha", "beta")
	require.NotZero(t, widgets[0].ID)

	w := widgets[0]
	w.Title = "renamed"
	_, err := adapter.NewUpdate().Model(w).Where(`"id" = ?`, w.ID).Exec(ctx)
	require.NoError(t, err)

	_, err = adapter.NewUpdate().Table("widgets").
		SetMap(map[string]interface{}{"deleted": true}).
		Where(`"id" = ?`, widgets[1].ID).
		Exec(ctx)
	require.NoError(t, err)

	var rows []bunWidget
	require.NoError(t, adapter.NewSelect().Model(&rows).Order(`"bun_widget"."id"`).ScanModel(ctx))
	require.Len(t, rows, 2)
	assert.Equal(t, "renamed", rows[0].Title)
	assert.True(t, rows[1].Deleted)

	res, err := adapter.NewDelete().Model(w).Where(`"id" = ?`, w.ID).Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected())
}

func TestBunAdapterTransaction(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newBunAdapter(t)
	failure := errors.New("abort")

	err := adapter.RunInTransaction(ctx, func(tx common.Database) error {
		assert.Equal(t, "sqlite", tx.DriverName())
		_, err := tx.NewInsert().Model(&bunWidget{Title: "ghost"}).Exec(ctx)
		require.NoError(t, err)
		return failure
	})
	assert.ErrorIs(t, err, failure)

	count, err := adapter.NewSelect().Model((*bunWidget)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
