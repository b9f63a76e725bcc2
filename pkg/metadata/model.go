package metadata

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

// Provider lets a model declare its API attributes explicitly instead of
// through api struct tags.
type Provider interface {
	APIAttributes() []Attribute
}

// HookProvider lets a model declare lifecycle hooks.
type HookProvider interface {
	APIHooks() Hooks
}

// AfterInitializer is called on a new or updated object once request values
// have been applied and before it is persisted.
type AfterInitializer interface {
	AfterInitialize(ctx *common.RequestContext) error
}

// Validator is implemented by models that validate themselves before saving.
// Returning ValidationErrors yields field-tagged error entries.
type Validator interface {
	Validate(ctx context.Context) error
}

// OperationValidator lets a model reject an operation given its current state.
type OperationValidator interface {
	ValidateOperation(ctx *common.RequestContext, op common.Operation) []common.ErrorEntry
}

// ValidationErrors maps a field to its validation messages.
type ValidationErrors map[string][]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+" "+strings.Join(v[f], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a message for field.
func (v ValidationErrors) Add(field, message string) {
	v[field] = append(v[field], message)
}

// Hooks are lifecycle callbacks declared for a model.
type Hooks struct {
	AfterInitialize func(obj interface{}, ctx *common.RequestContext) error
}

// Model is the immutable attribute metadata of one model type.
type Model struct {
	Name       string
	Table      string
	Type       reflect.Type
	PrimaryKey string
	// DeletedColumn is set when the model carries a bool or integer deleted marker.
	DeletedColumn string
	DeletedKind   reflection.ColumnKind
	Hooks         Hooks

	attributes map[string]*Attribute
	byName     map[string]*Attribute
	keys       []string
	columns    map[string]reflection.Field
	relations  map[string]reflection.Field
	belongsTo  []string
	registry   *Registry
}

// Attribute returns the attribute with internal key.
func (m *Model) Attribute(key string) (*Attribute, bool) {
	a, ok := m.attributes[key]
	return a, ok
}

// Lookup finds an attribute by internal key, then by wire name.
func (m *Model) Lookup(name string) (*Attribute, bool) {
	name = strings.TrimSpace(name)
	if a, ok := m.attributes[name]; ok {
		return a, true
	}
	a, ok := m.byName[name]
	return a, ok
}

// Attributes returns every attribute in declaration order.
func (m *Model) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.attributes[k])
	}
	return out
}

// HasColumn reports whether column is a real column of the model.
func (m *Model) HasColumn(column string) bool {
	_, ok := m.columns[column]
	return ok
}

// ColumnKind returns the kind of a column, KindOther when unknown.
func (m *Model) ColumnKind(column string) reflection.ColumnKind {
	if f, ok := m.columns[column]; ok {
		return f.Kind
	}
	return reflection.KindOther
}

// Association finds a relation field by wire name, field name or snake_case
// field name, whether or not it is exposed as an attribute.
func (m *Model) Association(name string) (reflection.Field, bool) {
	f, ok := m.relations[name]
	return f, ok
}

// BelongsToColumns lists the foreign key columns of the model's belongs-to
// associations. Computed once when the model is built.
func (m *Model) BelongsToColumns() []string {
	return m.belongsTo
}

// IsForeignKey reports whether column is a belongs-to foreign key.
func (m *Model) IsForeignKey(column string) bool {
	for _, c := range m.belongsTo {
		if c == column {
			return true
		}
	}
	return false
}

// Related returns the metadata of an association attribute's model.
func (m *Model) Related(attr *Attribute) (*Model, error) {
	if attr == nil || attr.relation == nil {
		return nil, ErrNotAssociation
	}
	return m.registry.Get(attr.relation.Model)
}

// Registry returns the registry that built the model.
func (m *Model) Registry() *Registry {
	return m.registry
}

// New returns a pointer to a new zero instance of the model.
func (m *Model) New() interface{} {
	return reflect.New(m.Type).Interface()
}

// NewSlice returns a pointer to an empty slice of model pointers.
func (m *Model) NewSlice() interface{} {
	return reflect.New(reflect.SliceOf(reflect.PointerTo(m.Type))).Interface()
}

// Filtered returns the attributes whose capability for purpose holds for ctx.
func (m *Model) Filtered(purpose Purpose, ctx *common.RequestContext) map[string]*Attribute {
	out := make(map[string]*Attribute)
	for _, k := range m.keys {
		if a := m.attributes[k]; a.Allowed(purpose, ctx) {
			out[k] = a
		}
	}
	return out
}

// Render builds the wire representation of obj: wire name to rendered value.
// Loaded associations are rendered with their own metadata.
func (m *Model) Render(obj interface{}, ctx *common.RequestContext) map[string]interface{} {
	out := make(map[string]interface{}, len(m.keys))
	for _, k := range m.keys {
		a := m.attributes[k]
		if a.Hidden || a.field == nil {
			continue
		}
		fv, ok := reflection.FieldValue(obj, *a.field)
		if !ok || !fv.CanInterface() {
			continue
		}
		if a.relation == nil {
			out[a.Name] = a.RenderValue(fv.Interface(), ctx)
			continue
		}
		if rendered, ok := m.renderAssociation(a, fv, ctx); ok {
			out[a.Name] = a.RenderValue(rendered, ctx)
		}
	}
	return out
}

func (m *Model) renderAssociation(a *Attribute, fv reflect.Value, ctx *common.RequestContext) (interface{}, bool) {
	related, err := m.Related(a)
	if err != nil {
		return nil, false
	}
	switch fv.Kind() {
	case reflect.Pointer:
		if fv.IsNil() {
			return nil, false
		}
		return related.Render(fv.Interface(), ctx), true
	case reflect.Slice:
		if fv.IsNil() {
			return nil, false
		}
		items := make([]map[string]interface{}, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			item := fv.Index(i)
			if item.Kind() != reflect.Pointer {
				item = item.Addr()
			} else if item.IsNil() {
				continue
			}
			items = append(items, related.Render(item.Interface(), ctx))
		}
		return items, true
	case reflect.Struct:
		if fv.CanAddr() {
			return related.Render(fv.Addr().Interface(), ctx), true
		}
	}
	return nil, false
}
