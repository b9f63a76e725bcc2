package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

// Scope is a query under construction. It remembers which associations have
// been joined and which root columns are already narrowed by equality.
type Scope struct {
	Query common.SelectQuery
	Model *metadata.Model
	// Table is the alias of the root table in the query.
	Table string

	// ResultFilters were accepted but have no backing column; collaborators apply them.
	ResultFilters []common.FilterPredicate
	// ResultSorts are sortable attributes without a backing column.
	ResultSorts []common.SortSpec

	ctx        *common.RequestContext
	loc        *time.Location
	driver     string
	joined     map[string]joinedModel
	equalities map[string]bool
}

type joinedModel struct {
	alias string
	model *metadata.Model
}

// NewScope wraps q. The root table is addressed by the query's alias, or
// by its own name when the query has none.
func NewScope(q common.SelectQuery, model *metadata.Model, ctx *common.RequestContext, loc *time.Location) *Scope {
	if loc == nil {
		loc = ResolveLocation(ctx, "")
	}
	table := q.RootAlias()
	if table == "" {
		table = model.Table
	}
	return &Scope{
		Query:      q,
		Model:      model,
		Table:      table,
		ctx:        ctx,
		loc:        loc,
		joined:     make(map[string]joinedModel),
		equalities: make(map[string]bool),
	}
}

// Where adds a raw condition.
func (s *Scope) Where(query string, args ...interface{}) *Scope {
	s.Query = s.Query.Where(query, args...)
	return s
}

// WhereEqual narrows a root column by equality and records it.
func (s *Scope) WhereEqual(column string, value interface{}) *Scope {
	s.equalities[column] = true
	return s.Where(Qualify(s.Table, column)+" = ?", value)
}

// HasEquality reports whether column was narrowed by equality on the root table.
func (s *Scope) HasEquality(column string) bool {
	return s.equalities[column]
}

// FilteredByForeignKey reports whether any belongs-to foreign key is already
// narrowed by equality, which makes ownership scoping redundant for elevated principals.
func (s *Scope) FilteredByForeignKey() bool {
	for _, c := range s.Model.BelongsToColumns() {
		if s.equalities[c] {
			return true
		}
	}
	return false
}

// Joined reports whether the association path has been joined.
func (s *Scope) Joined(path string) bool {
	_, ok := s.joined[path]
	return ok
}

// HasJoins reports whether any association was joined into the query.
func (s *Scope) HasJoins() bool {
	return len(s.joined) > 0
}

// joinPath LEFT JOINs every association on path, each at most once, and
// returns the alias and model at the end of it.
func (s *Scope) joinPath(path []string) (string, *metadata.Model, error) {
	alias, current := s.Table, s.Model
	for i, name := range path {
		key := strings.Join(path[:i+1], ".")
		if j, ok := s.joined[key]; ok {
			alias, current = j.alias, j.model
			continue
		}
		field, related, err := association(current, name)
		if err != nil {
			return "", nil, err
		}
		nextAlias := strings.ReplaceAll(key, ".", "__")
		if err := s.join(alias, nextAlias, related, field.Relation); err != nil {
			return "", nil, err
		}
		s.joined[key] = joinedModel{alias: nextAlias, model: related}
		alias, current = nextAlias, related
	}
	return alias, current, nil
}

func (s *Scope) join(parentAlias, alias string, related *metadata.Model, rel *reflection.Relation) error {
	switch rel.Type {
	case reflection.RelationBelongsTo, reflection.RelationHasOne, reflection.RelationHasMany:
	default:
		return fmt.Errorf("cannot join %s relation to %s", rel.Type, related.Table)
	}
	clause := fmt.Sprintf("LEFT JOIN %s AS %s ON %s = %s",
		QuoteIdent(related.Table), QuoteIdent(alias),
		Qualify(alias, rel.RelatedColumn), Qualify(parentAlias, rel.BaseColumn))
	s.Query = s.Query.Join(clause)
	logger.Debug("Joined %s as %s", related.Table, alias)
	return nil
}

// ApplyContext applies the static equality narrowing carried by the request context.
func (s *Scope) ApplyContext() *Scope {
	if s.ctx == nil {
		return s
	}
	for _, column := range sortedKeys(s.ctx.Scope) {
		if !s.Model.HasColumn(column) {
			logger.Warn("Ignoring scope on unknown column %s.%s", s.Model.Table, column)
			continue
		}
		s.WhereEqual(column, s.ctx.Scope[column])
	}
	return s
}

// ApplySoftDelete hides rows flagged deleted when the model carries the marker.
func (s *Scope) ApplySoftDelete() *Scope {
	switch s.Model.DeletedKind {
	case reflection.KindBool:
		return s.Where(Qualify(s.Table, s.Model.DeletedColumn)+" = ?", false)
	case reflection.KindInteger:
		return s.Where(Qualify(s.Table, s.Model.DeletedColumn)+" = ?", 0)
	}
	return s
}

// ApplyFilters narrows the scope by predicates. Root equality uses a bound
// parameter; every other comparison is a type-aware literal clause. Predicates
// on attributes without a backing column are collected in ResultFilters.
func (s *Scope) ApplyFilters(predicates []common.FilterPredicate) *Scope {
	for _, p := range predicates {
		if err := s.applyFilter(p); err != nil {
			logger.Warn("Skipping filter %s: %v", p.FullKey(), err)
		}
	}
	return s
}

func (s *Scope) applyFilter(p common.FilterPredicate) error {
	alias, model := s.Table, s.Model
	if len(p.Path) > 0 {
		if target, err := s.resolveOnly(p.Path); err != nil {
			return err
		} else if attr, ok := target.Attribute(p.Key); !ok || attr.QueryColumn() == "" {
			s.ResultFilters = append(s.ResultFilters, p)
			return nil
		}
		var err error
		if alias, model, err = s.joinPath(p.Path); err != nil {
			return err
		}
	}

	attr, ok := model.Attribute(p.Key)
	if !ok {
		return fmt.Errorf("unknown attribute %q on %s", p.Key, model.Name)
	}
	column := attr.QueryColumn()
	if column == "" {
		s.ResultFilters = append(s.ResultFilters, p)
		return nil
	}

	if p.Operator == common.OpEqual && len(p.Path) == 0 {
		s.WhereEqual(column, p.Value)
		return nil
	}

	kind := model.ColumnKind(column)
	if p.Operator == common.OpIn {
		literals := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			lit, err := s.literal(kind, v)
			if err != nil {
				return err
			}
			literals = append(literals, lit)
		}
		if len(literals) == 0 {
			return nil
		}
		s.Where(fmt.Sprintf("%s IN (%s)", Qualify(alias, column), strings.Join(literals, ", ")))
		return nil
	}

	op, err := sqlOperator(p.Operator)
	if err != nil {
		return err
	}
	lit, err := s.literal(kind, p.Value)
	if err != nil {
		return err
	}
	s.Where(fmt.Sprintf("%s %s %s", Qualify(alias, column), op, lit))
	return nil
}

// literal formats value for the scope's driver. SQL Server has no boolean
// literals and compares bit columns with 1 and 0.
func (s *Scope) literal(kind reflection.ColumnKind, value interface{}) (string, error) {
	lit, err := FormatLiteral(kind, value, s.loc)
	if err != nil || kind != reflection.KindBool || s.driver != "mssql" {
		return lit, err
	}
	switch lit {
	case "true":
		return "1", nil
	case "false":
		return "0", nil
	}
	return lit, nil
}

// resolveOnly walks path without joining.
func (s *Scope) resolveOnly(path []string) (*metadata.Model, error) {
	current := s.Model
	for _, name := range path {
		_, related, err := association(current, name)
		if err != nil {
			return nil, err
		}
		current = related
	}
	return current, nil
}

func association(m *metadata.Model, name string) (reflection.Field, *metadata.Model, error) {
	field, ok := m.Association(name)
	if !ok {
		if attr, found := m.Lookup(name); found && attr.IsAssociation() {
			field, ok = *attr.Field(), true
		}
	}
	if !ok || field.Relation == nil {
		return reflection.Field{}, nil, fmt.Errorf("%s has no association %q", m.Name, name)
	}
	related, err := m.Registry().Get(field.Relation.Model)
	if err != nil {
		return reflection.Field{}, nil, fmt.Errorf("association %s.%s: %w", m.Name, name, err)
	}
	return field, related, nil
}

func sqlOperator(op common.Operator) (string, error) {
	switch op {
	case common.OpEqual, common.OpGreater, common.OpLess, common.OpGreaterEqual, common.OpLessEqual:
		return string(op), nil
	case common.OpNotEqual:
		return "<>", nil
	}
	return "", fmt.Errorf("unsupported operator %q", op)
}

// ApplySorts orders the scope in the given order. Sorts through an association are
// qualified with the joined alias; sortable attributes without a column are
// collected in ResultSorts.
func (s *Scope) ApplySorts(specs []common.SortSpec) *Scope {
	for _, spec := range specs {
		alias, model := s.Table, s.Model
		if len(spec.Path) > 0 {
			target, err := s.resolveOnly(spec.Path)
			if err != nil {
				logger.Warn("Skipping sort %s: %v", spec.FullKey(), err)
				continue
			}
			if attr, ok := target.Attribute(spec.Key); !ok || attr.QueryColumn() == "" {
				s.ResultSorts = append(s.ResultSorts, spec)
				continue
			}
			if alias, model, err = s.joinPath(spec.Path); err != nil {
				logger.Warn("Skipping sort %s: %v", spec.FullKey(), err)
				continue
			}
		}
		attr, ok := model.Attribute(spec.Key)
		if !ok {
			continue
		}
		column := attr.QueryColumn()
		if column == "" {
			s.ResultSorts = append(s.ResultSorts, spec)
			continue
		}
		direction := spec.Direction
		if direction == common.DirectionDefault || direction == "" {
			direction = attr.SortOrder()
		}
		s.Query = s.Query.Order(Qualify(alias, column) + " " + direction.SQL())
	}
	return s
}
