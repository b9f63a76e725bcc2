package mutation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/apierror"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
)

type widget struct {
	ID      int64   `bun:"id,pk" json:"id" api:",filter"`
	Name    string  `bun:"name" json:"name" api:",write"`
	Price   float64 `bun:"price" json:"price" api:",write"`
	Type    string  `bun:"type" json:"type" api:",create"`
	Secret  string  `bun:"secret" json:"secret" api:",update=admin"`
	Deleted bool    `bun:"deleted" json:"deleted"`
}

type A struct {
	widget `bun:",extend"`
}

type B struct {
	widget `bun:",extend"`
}

type gadget struct {
	ID   int64  `bun:"id,pk" json:"id"`
	Name string `bun:"name" json:"name" api:",write"`
}

func (g *gadget) ValidateOperation(_ *common.RequestContext, op common.Operation) []common.ErrorEntry {
	if op == common.OperationDestroy && g.Name == "locked" {
		return []common.ErrorEntry{{Error: "Locked", Message: "Locked gadgets cannot be removed"}}
	}
	return nil
}

type checked struct {
	ID    int64  `bun:"id,pk" json:"id"`
	Title string `bun:"title" json:"title" api:",write"`
}

func (c *checked) Validate(context.Context) error {
	if c.Title == "" {
		v := metadata.ValidationErrors{}
		v.Add("title", "can't be blank")
		return v
	}
	return nil
}

type fakeStore struct {
	inserted  []interface{}
	updated   [][]string
	destroyed int
	marked    []interface{}
	txs       int
	rollbacks int

	err        error
	destroyOK  bool
	destroyErr error
	panicOn    string
}

func (s *fakeStore) Insert(_ context.Context, _ *metadata.Model, obj interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, obj)
	return nil
}

func (s *fakeStore) Update(_ context.Context, _ *metadata.Model, _ interface{}, columns []string) error {
	if s.err != nil {
		return s.err
	}
	s.updated = append(s.updated, columns)
	return nil
}

func (s *fakeStore) Destroy(context.Context, *metadata.Model, interface{}) (bool, error) {
	if s.panicOn == "destroy" {
		panic("driver exploded")
	}
	s.destroyed++
	return s.destroyOK, s.destroyErr
}

func (s *fakeStore) MarkDeleted(_ context.Context, _ *metadata.Model, _ interface{}, value interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.marked = append(s.marked, value)
	return nil
}

func (s *fakeStore) Transaction(_ context.Context, fn func(Store) error) error {
	s.txs++
	if err := fn(s); err != nil {
		s.rollbacks++
		return err
	}
	return nil
}

func newRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	require.NoError(t, reg.RegisterSubtypes(widget{}, A{}, B{}))
	return reg
}

func model(t *testing.T, reg *metadata.Registry, v interface{}) *metadata.Model {
	t.Helper()
	m, err := reg.Get(v)
	require.NoError(t, err)
	return m
}

func TestDecodeBody(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		body, err := DecodeBody([]byte(`{"name":"x","price":2.5}`), "json", "widget")
		require.NoError(t, err)
		assert.Equal(t, "x", body["name"])
	})

	for _, in := range []string{`[{"a":1}]`, `"str"`, `{bad`, ``, `{}`} {
		t.Run("json rejects "+in, func(t *testing.T) {
			_, err := DecodeBody([]byte(in), "json", "widget")
			assert.ErrorIs(t, err, apierror.ErrBadPayload)
		})
	}

	t.Run("xml root element", func(t *testing.T) {
		body, err := DecodeBody([]byte(`<widget><name>x</name><tag>a</tag><tag>b</tag></widget>`), "application/xml", "widget")
		require.NoError(t, err)
		assert.Equal(t, "x", body["name"])
		assert.Equal(t, []interface{}{"a", "b"}, body["tag"])
	})

	t.Run("yaml obj wrapper", func(t *testing.T) {
		body, err := DecodeBody([]byte("meta: 1\nobj:\n  name: y\n"), "yaml", "widget")
		require.NoError(t, err)
		assert.Equal(t, "y", body["name"])
	})

	t.Run("yaml sole value", func(t *testing.T) {
		body, err := DecodeBody([]byte("thing:\n  name: z\n"), "yaml", "widget")
		require.NoError(t, err)
		assert.Equal(t, "z", body["name"])
	})

	t.Run("yaml list", func(t *testing.T) {
		_, err := DecodeBody([]byte("- name: z\n"), "yaml", "widget")
		assert.ErrorIs(t, err, apierror.ErrBadPayload)
	})

	t.Run("no matching element", func(t *testing.T) {
		_, err := DecodeBody([]byte("a:\n  x: 1\nb:\n  y: 2\n"), "yaml", "widget")
		assert.ErrorIs(t, err, apierror.ErrBadPayload)
	})
}

func TestResolveSubtype(t *testing.T) {
	reg := newRegistry(t)
	base := model(t, reg, widget{})

	assert.Equal(t, "A", ResolveSubtype(base, map[string]interface{}{"type": "A"}, nil).Name)
	assert.Equal(t, "B", ResolveSubtype(base, map[string]interface{}{"type": "b"}, nil).Name)
	assert.Same(t, base, ResolveSubtype(base, map[string]interface{}{"type": "C"}, nil))
	assert.Same(t, base, ResolveSubtype(base, map[string]interface{}{"name": "n"}, nil))
}

func TestCreate(t *testing.T) {
	reg := newRegistry(t)
	base := model(t, reg, widget{})

	t.Run("ok", func(t *testing.T) {
		store := &fakeStore{}
		out := New(store, nil).Create(context.Background(), Request{
			Model: base,
			Body:  []byte(`{"name":"w","price":3,"id":9,"bogus":1}`),
		})
		require.True(t, out.OK(), out.Errors)
		assert.Empty(t, out.Errors)
		require.Len(t, store.inserted, 1)
		w := store.inserted[0].(*widget)
		assert.Equal(t, "w", w.Name)
		assert.Equal(t, 3.0, w.Price)
		assert.Zero(t, w.ID)
		assert.Equal(t, []string{"bogus", "id"}, out.Ignored)
	})

	t.Run("subtype", func(t *testing.T) {
		store := &fakeStore{}
		out := New(store, nil).Create(context.Background(), Request{Model: base, Body: []byte(`{"name":"w","type":"A"}`)})
		require.True(t, out.OK())
		assert.Equal(t, "A", out.Model.Name)
		assert.IsType(t, &A{}, store.inserted[0])
	})

	t.Run("list body never persists", func(t *testing.T) {
		store := &fakeStore{}
		out := New(store, nil).Create(context.Background(), Request{Model: base, Body: []byte(`[{"a":1}]`)})
		assert.Equal(t, apierror.KindBadPayload, out.Kind)
		assert.Equal(t, common.StatusBadRequest, out.Status)
		assert.Empty(t, store.inserted)
	})

	t.Run("persistence failure", func(t *testing.T) {
		store := &fakeStore{err: errors.New("disk full")}
		out := New(store, nil).Create(context.Background(), Request{Model: base, Body: []byte(`{"name":"w","price":3}`)})
		assert.Equal(t, common.StatusBadRequest, out.Status)
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "Unspecified error", out.Errors[0].Error)
		assert.Equal(t, 1, store.rollbacks)
	})

	t.Run("row gone while saving", func(t *testing.T) {
		store := &fakeStore{err: fmt.Errorf("updating widget 1: %w", sql.ErrNoRows)}
		out := New(store, nil).Update(context.Background(), Request{Model: base, Target: &widget{ID: 1}, Body: []byte(`{"name":"n"}`)})
		assert.Equal(t, common.StatusBadRequest, out.Status)
		assert.Equal(t, apierror.KindBadRequest, out.Kind)
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "Unspecified error", out.Errors[0].Error)
	})

	t.Run("saves in one transaction", func(t *testing.T) {
		store := &fakeStore{}
		out := New(store, nil).Create(context.Background(), Request{Model: base, Body: []byte(`{"name":"w","price":3}`)})
		require.True(t, out.OK())
		assert.Equal(t, 1, store.txs)
		assert.Zero(t, store.rollbacks)
	})

	t.Run("unparsable value", func(t *testing.T) {
		store := &fakeStore{}
		out := New(store, nil).Create(context.Background(), Request{Model: base, Body: []byte(`{"price":"cheap"}`)})
		assert.Equal(t, apierror.KindValidationFailed, out.Kind)
		assert.Equal(t, "price", out.Errors[0].Field)
		assert.Empty(t, store.inserted)
	})

	t.Run("validator", func(t *testing.T) {
		store := &fakeStore{}
		m := model(t, reg, checked{})
		out := New(store, nil).Create(context.Background(), Request{Model: m, Body: []byte(`{"title":""}`)})
		assert.Equal(t, common.StatusBadRequest, out.Status)
		assert.Equal(t, "Title can't be blank", out.Errors[0].Message)
	})
}

func TestUpdateAndPatch(t *testing.T) {
	reg := newRegistry(t)
	base := model(t, reg, widget{})

	t.Run("missing target", func(t *testing.T) {
		out := New(&fakeStore{}, nil).Update(context.Background(), Request{Model: base, Body: []byte(`[]`)})
		assert.Equal(t, common.StatusNotFound, out.Status)
	})

	t.Run("update writes all columns", func(t *testing.T) {
		store := &fakeStore{}
		target := &widget{ID: 1, Name: "old", Price: 1}
		out := New(store, nil).Update(context.Background(), Request{Model: base, Target: target, Body: []byte(`{"name":"new","type":"B"}`)})
		require.True(t, out.OK())
		assert.Equal(t, "new", target.Name)
		assert.Empty(t, target.Type)
		assert.Equal(t, []string{"type"}, out.Ignored)
		assert.Equal(t, [][]string{nil}, store.updated)
	})

	t.Run("patch writes present columns", func(t *testing.T) {
		store := &fakeStore{}
		target := &widget{ID: 1, Name: "old", Price: 1}
		out := New(store, nil).Update(context.Background(), Request{
			Model: base, Target: target, Operation: common.OperationPatch, Body: []byte(`{"price":4}`),
		})
		require.True(t, out.OK())
		assert.Equal(t, [][]string{{"price"}}, store.updated)
		assert.Equal(t, "old", target.Name)
	})

	t.Run("admin only field", func(t *testing.T) {
		target := &widget{ID: 1}
		body := []byte(`{"secret":"s"}`)
		New(&fakeStore{}, nil).Update(context.Background(), Request{Model: base, Target: target, Body: body})
		assert.Empty(t, target.Secret)

		ctx := &common.RequestContext{Principal: &common.Principal{ID: 1, Elevated: true}}
		New(&fakeStore{}, nil).Update(context.Background(), Request{Ctx: ctx, Model: base, Target: target, Body: body})
		assert.Equal(t, "s", target.Secret)
	})

	t.Run("operation from action", func(t *testing.T) {
		store := &fakeStore{}
		ctx := &common.RequestContext{Action: "patch_widget"}
		out := New(store, nil).Run(context.Background(), Request{Ctx: ctx, Model: base, Target: &widget{ID: 1}, Body: []byte(`{"name":"n"}`)})
		assert.Equal(t, common.OperationPatch, out.Operation)
		assert.Equal(t, [][]string{{"name"}}, store.updated)
	})
}

func TestDestroy(t *testing.T) {
	reg := newRegistry(t)

	t.Run("soft delete", func(t *testing.T) {
		store := &fakeStore{}
		target := &widget{ID: 1}
		out := New(store, nil).Destroy(context.Background(), Request{Model: model(t, reg, widget{}), Target: target})
		require.True(t, out.OK())
		assert.True(t, out.SoftDeleted)
		assert.True(t, target.Deleted)
		assert.Equal(t, []interface{}{true}, store.marked)
		assert.Zero(t, store.destroyed)
	})

	t.Run("hard delete", func(t *testing.T) {
		store := &fakeStore{destroyOK: true}
		out := New(store, nil).Destroy(context.Background(), Request{Model: model(t, reg, gadget{}), Target: &gadget{ID: 2}})
		require.True(t, out.OK())
		assert.False(t, out.SoftDeleted)
		assert.Equal(t, 1, store.destroyed)
	})

	t.Run("hard delete without confirmation", func(t *testing.T) {
		store := &fakeStore{destroyErr: errors.New("timeout")}
		out := New(store, nil).Destroy(context.Background(), Request{Model: model(t, reg, gadget{}), Target: &gadget{ID: 2}})
		assert.Equal(t, common.StatusInternalError, out.Status)
		require.Len(t, out.Errors, 1)
		assert.True(t, strings.HasPrefix(out.Errors[0].Message, "Unspecified error processing destroy"))
	})

	t.Run("panic is contained", func(t *testing.T) {
		store := &fakeStore{panicOn: "destroy"}
		out := New(store, nil).Destroy(context.Background(), Request{Model: model(t, reg, gadget{}), Target: &gadget{ID: 2}})
		assert.Equal(t, common.StatusInternalError, out.Status)
	})

	t.Run("validation error from destroy", func(t *testing.T) {
		v := metadata.ValidationErrors{}
		v.Add("base", "has dependents")
		store := &fakeStore{destroyErr: v}
		out := New(store, nil).Destroy(context.Background(), Request{Model: model(t, reg, gadget{}), Target: &gadget{ID: 2}})
		assert.Equal(t, common.StatusBadRequest, out.Status)
		assert.Equal(t, "base", out.Errors[0].Field)
	})

	t.Run("operation validator", func(t *testing.T) {
		store := &fakeStore{destroyOK: true}
		out := New(store, nil).Destroy(context.Background(), Request{Model: model(t, reg, gadget{}), Target: &gadget{ID: 2, Name: "locked"}})
		assert.Equal(t, common.StatusBadRequest, out.Status)
		assert.Equal(t, "Locked", out.Errors[0].Error)
		assert.Zero(t, store.destroyed)
	})

	t.Run("not found", func(t *testing.T) {
		out := New(&fakeStore{}, nil).Destroy(context.Background(), Request{Model: model(t, reg, gadget{})})
		assert.Equal(t, common.StatusNotFound, out.Status)
	})
}
