package query

import (
	"context"
	"fmt"
	"time"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
)

// Builder composes the read queries of one request against one model.
type Builder struct {
	Model     *metadata.Model
	Ctx       *common.RequestContext
	Ownership Ownership
	// IDAttribute names the attribute objects are addressed by, default the primary key.
	IDAttribute string
	// Driver is the database driver name; it selects dialect specific literals.
	Driver string

	loc *time.Location
}

// NewBuilder resolves the request time zone once, falling back to defaultZone.
func NewBuilder(model *metadata.Model, ctx *common.RequestContext, defaultZone string) *Builder {
	return &Builder{
		Model: model,
		Ctx:   ctx,
		loc:   ResolveLocation(ctx, defaultZone),
	}
}

// Location is the zone date filters are parsed in.
func (b *Builder) Location() *time.Location {
	return b.loc
}

// Base wraps q with soft-delete narrowing and the context scope.
func (b *Builder) Base(q common.SelectQuery) *Scope {
	s := NewScope(q, b.Model, b.Ctx, b.loc)
	s.driver = b.Driver
	return s.ApplySoftDelete().ApplyContext()
}

// Collection builds the index query: base, ownership, filters, then sorts.
// Only the base narrowing counts as foreign key scoping; request filters
// never lift ownership.
func (b *Builder) Collection(q common.SelectQuery, filters []common.FilterPredicate, sorts []common.SortSpec) (*Scope, error) {
	s := b.Base(q)
	if err := s.ApplyOwnership(b.Ownership); err != nil {
		return nil, err
	}
	return s.ApplyFilters(filters).ApplySorts(sorts), nil
}

// IDColumn returns the column objects are looked up by.
func (b *Builder) IDColumn() string {
	name := b.IDAttribute
	if name == "" {
		return b.Model.PrimaryKey
	}
	if attr, ok := b.Model.Lookup(name); ok && attr.QueryColumn() != "" {
		return attr.QueryColumn()
	}
	if b.Model.HasColumn(name) {
		return name
	}
	logger.Warn("Unknown id attribute %s on %s, using %s", name, b.Model.Name, b.Model.PrimaryKey)
	return b.Model.PrimaryKey
}

// Object builds the show/update/destroy query for id. Principals without
// elevated access are always scoped to their own rows unless the context opts out.
// For elevated principals addressing objects by an alternate id attribute,
// a miss falls back to the primary key "id".
func (b *Builder) Object(ctx context.Context, newQuery func() common.SelectQuery, id string) (*Scope, error) {
	column := b.IDColumn()
	build := func(col string) (*Scope, error) {
		s := b.Base(newQuery()).WhereEqual(col, id)
		if !b.Ctx.Elevated() && (b.Ctx == nil || !b.Ctx.SkipOwnership) {
			if err := s.ScopeToPrincipal(b.Ownership); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	s, err := build(column)
	if err != nil {
		return nil, err
	}
	if !b.Ctx.Elevated() || column == "id" || !b.Model.HasColumn("id") {
		return s, nil
	}
	var found bool
	err = metrics.TimeQuery(b.Model.Table, "exists", func() (err error) {
		found, err = s.Query.Exists(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("checking %s %s=%s: %w", b.Model.Name, column, id, err)
	}
	if found {
		return s, nil
	}
	logger.Debug("No %s with %s=%s, retrying by id", b.Model.Name, column, id)
	return build("id")
}
