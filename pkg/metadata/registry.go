package metadata

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

var (
	ErrNotAssociation = errors.New("attribute is not an association")
	ErrNotModel       = errors.New("model must be a struct or pointer to struct")
)

// Registry builds and caches Model metadata per concrete type.
// Each type is built exactly once, even under concurrent first access;
// built models live for the lifetime of the registry.
type Registry struct {
	entries sync.Map // reflect.Type -> *entry

	mu       sync.RWMutex
	subtypes map[reflect.Type]map[string]reflect.Type
}

type entry struct {
	once  sync.Once
	model *Model
	err   error
}

func NewRegistry() *Registry {
	return &Registry{subtypes: make(map[reflect.Type]map[string]reflect.Type)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Get returns the metadata of model, which may be an instance, a pointer,
// a slice or a reflect.Type.
func (r *Registry) Get(model interface{}) (*Model, error) {
	t := reflection.ModelType(model)
	if t == nil {
		return nil, fmt.Errorf("%w, got %T", ErrNotModel, model)
	}
	v, _ := r.entries.LoadOrStore(t, &entry{})
	e := v.(*entry)
	e.once.Do(func() {
		e.model, e.err = r.build(t)
	})
	return e.model, e.err
}

// Filtered returns the attributes of model allowed for purpose under ctx.
func (r *Registry) Filtered(model interface{}, purpose Purpose, ctx *common.RequestContext) (map[string]*Attribute, error) {
	m, err := r.Get(model)
	if err != nil {
		return nil, err
	}
	return m.Filtered(purpose, ctx), nil
}

// RegisterSubtypes declares the single-table subtypes of base. A subtype is
// selected on create by its bare type name. Register before serving requests.
func (r *Registry) RegisterSubtypes(base interface{}, subtypes ...interface{}) error {
	bt := reflection.ModelType(base)
	if bt == nil {
		return fmt.Errorf("%w, got %T", ErrNotModel, base)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	family := r.subtypes[bt]
	if family == nil {
		family = make(map[string]reflect.Type)
		r.subtypes[bt] = family
	}
	for _, s := range subtypes {
		st := reflection.ModelType(s)
		if st == nil {
			return fmt.Errorf("%w, got %T", ErrNotModel, s)
		}
		family[st.Name()] = st
	}
	return nil
}

// ResolveSubtype returns the subtype of base named name. Unknown names and
// the base's own name resolve to base with ok=false.
func (r *Registry) ResolveSubtype(base *Model, name string) (*Model, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == base.Name {
		return base, false
	}
	r.mu.RLock()
	family := r.subtypes[base.Type]
	st, found := family[name]
	if !found {
		st, found = family[camelize(name)]
	}
	r.mu.RUnlock()
	if !found {
		return base, false
	}
	m, err := r.Get(st)
	if err != nil {
		return base, false
	}
	return m, true
}

// camelize turns "special_widget" into "SpecialWidget".
func camelize(s string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func (r *Registry) build(t reflect.Type) (*Model, error) {
	proto := reflect.New(t).Interface()
	fields := reflection.Fields(t)

	m := &Model{
		Name:       t.Name(),
		Table:      reflection.TableName(t),
		Type:       t,
		PrimaryKey: reflection.GetPrimaryKeyName(proto),
		attributes: make(map[string]*Attribute),
		byName:     make(map[string]*Attribute),
		columns:    make(map[string]reflection.Field),
		relations:  make(map[string]reflection.Field),
		registry:   r,
	}

	byField := make(map[string]reflection.Field)
	for _, f := range fields {
		byField[f.Name] = f
		if f.Relation == nil {
			m.columns[f.Column] = f
			if f.Column == "deleted" && (f.Kind == reflection.KindBool || f.Kind == reflection.KindInteger) {
				m.DeletedColumn = f.Column
				m.DeletedKind = f.Kind
			}
			continue
		}
		for _, name := range []string{f.JSONName, f.Name, reflection.ToSnakeCase(f.Name)} {
			if _, taken := m.relations[name]; name != "" && !taken {
				m.relations[name] = f
			}
		}
		if f.Relation.Type == reflection.RelationBelongsTo {
			m.belongsTo = append(m.belongsTo, f.Relation.BaseColumn)
		}
	}

	var attrs []Attribute
	if p, ok := proto.(Provider); ok {
		attrs = p.APIAttributes()
	} else {
		var err error
		if attrs, err = attributesFromTags(fields); err != nil {
			return nil, fmt.Errorf("model %s: %w", t.Name(), err)
		}
	}

	for i := range attrs {
		a := attrs[i]
		if a.Key == "" {
			return nil, fmt.Errorf("model %s: attribute without key", t.Name())
		}
		if a.Name == "" {
			a.Name = a.Key
		}
		if err := m.bind(&a, fields, byField); err != nil {
			return nil, fmt.Errorf("model %s: %w", t.Name(), err)
		}
		if _, dup := m.attributes[a.Key]; dup {
			return nil, fmt.Errorf("model %s: duplicate attribute key %q", t.Name(), a.Key)
		}
		if _, dup := m.byName[a.Name]; dup {
			return nil, fmt.Errorf("model %s: duplicate attribute name %q", t.Name(), a.Name)
		}
		attr := a
		m.attributes[a.Key] = &attr
		m.byName[a.Name] = &attr
		m.keys = append(m.keys, a.Key)
	}

	if hp, ok := proto.(HookProvider); ok {
		m.Hooks = hp.APIHooks()
	}
	if m.Hooks.AfterInitialize == nil {
		if _, ok := proto.(AfterInitializer); ok {
			m.Hooks.AfterInitialize = func(obj interface{}, ctx *common.RequestContext) error {
				if ai, ok := obj.(AfterInitializer); ok {
					return ai.AfterInitialize(ctx)
				}
				return nil
			}
		}
	}
	return m, nil
}

// bind attaches the struct field, relation and column kind to a declared attribute.
func (m *Model) bind(a *Attribute, fields []reflection.Field, byField map[string]reflection.Field) error {
	if a.Association != "" {
		f, ok := byField[a.Association]
		if !ok || f.Relation == nil {
			return fmt.Errorf("attribute %q: %s is not an association field", a.Key, a.Association)
		}
		a.field = &f
		a.relation = f.Relation
		return nil
	}

	if a.Column == "" && m.HasColumn(a.Key) {
		a.Column = a.Key
	}
	if a.Column != "" {
		f, ok := m.columns[a.Column]
		if !ok {
			return fmt.Errorf("attribute %q: unknown column %q", a.Key, a.Column)
		}
		a.field = &f
		a.kind = f.Kind
		return nil
	}
	if a.RenderColumn != "" {
		f, ok := m.columns[a.RenderColumn]
		if !ok {
			a.RenderColumn = ""
		} else {
			a.field = &f
			a.kind = f.Kind
			return nil
		}
	}

	// association declared by key only
	for _, f := range fields {
		if f.Relation != nil && (f.JSONName == a.Key || f.Name == a.Key) {
			f := f
			a.field = &f
			a.relation = f.Relation
			a.Association = f.Name
			return nil
		}
	}
	return nil
}

func attributesFromTags(fields []reflection.Field) ([]Attribute, error) {
	attrs := make([]Attribute, 0, len(fields))
	for _, f := range fields {
		tag, tagged := f.Tag.Lookup("api")
		if tag == "-" {
			continue
		}
		a := Attribute{Name: f.JSONName}
		if f.Relation != nil {
			a.Key = f.JSONName
			a.Association = f.Name
		} else {
			a.Key = f.Column
			a.Column = f.Column
		}
		if a.Name == "" {
			a.Name = a.Key
		}
		if tagged {
			if err := parseTag(tag, &a); err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}
