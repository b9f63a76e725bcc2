// Package modelregistry keeps the entities a handler exposes, keyed by
// collection name, together with the rules guarding them.
package modelregistry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

// ModelRules defines which operations an entity exposes and how it is protected
type ModelRules struct {
	CanRead   bool // index and show
	CanCreate bool
	CanUpdate bool // update and patch
	CanDelete bool
	// AdminOnly entities answer NotFound to principals without elevated access
	AdminOnly bool
	// SkipOwnership disables ownership scoping for every request on the entity
	SkipOwnership bool
}

// DefaultModelRules returns the default rules for a model (all operations allowed, ownership enforced)
func DefaultModelRules() ModelRules {
	return ModelRules{
		CanRead:   true,
		CanCreate: true,
		CanUpdate: true,
		CanDelete: true,
	}
}

// OrDefault returns DefaultModelRules for the zero value and r otherwise.
func (r ModelRules) OrDefault() ModelRules {
	if r == (ModelRules{}) {
		return DefaultModelRules()
	}
	return r
}

// Allows reports whether op may run on the entity.
func (r ModelRules) Allows(op common.Operation) bool {
	switch op {
	case common.OperationIndex, common.OperationShow:
		return r.CanRead
	case common.OperationCreate:
		return r.CanCreate
	case common.OperationUpdate, common.OperationPatch:
		return r.CanUpdate
	case common.OperationDestroy:
		return r.CanDelete
	}
	return false
}

// VisibleTo reports whether the entity exists at all for a principal.
func (r ModelRules) VisibleTo(elevated bool) bool {
	return !r.AdminOnly || elevated
}

// Operations lists the allowed operations in routing order.
func (r ModelRules) Operations() []common.Operation {
	all := []common.Operation{
		common.OperationIndex, common.OperationShow, common.OperationCreate,
		common.OperationUpdate, common.OperationPatch, common.OperationDestroy,
	}
	ops := make([]common.Operation, 0, len(all))
	for _, op := range all {
		if r.Allows(op) {
			ops = append(ops, op)
		}
	}
	return ops
}

type registration struct {
	prototype interface{}
	rules     ModelRules
}

// DefaultModelRegistry maps entity names to model prototypes and their rules
type DefaultModelRegistry struct {
	mutex   sync.RWMutex
	entries map[string]registration
}

// NewModelRegistry creates a new model registry
func NewModelRegistry() *DefaultModelRegistry {
	return &DefaultModelRegistry{entries: make(map[string]registration)}
}

// RegisterModel stores a zero-value struct prototype under name with the
// default rules. Pointers, slices and arrays are unwrapped to their struct element.
func (r *DefaultModelRegistry) RegisterModel(name string, model interface{}) error {
	return r.RegisterModelWithRules(name, model, DefaultModelRules())
}

// RegisterModelWithRules registers a model with specific rules
func (r *DefaultModelRegistry) RegisterModelWithRules(name string, model interface{}, rules ModelRules) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	prototype, err := prototypeOf(model)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("model %s already registered", name)
	}
	r.entries[name] = registration{prototype: prototype, rules: rules}
	return nil
}

func prototypeOf(model interface{}) (interface{}, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	original := t
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct or pointer to struct, got %s", original)
	}
	return reflect.New(t).Elem().Interface(), nil
}

func (r *DefaultModelRegistry) lookup(name string) (registration, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return registration{}, fmt.Errorf("model %s not found", name)
	}
	return e, nil
}

func (r *DefaultModelRegistry) GetModel(name string) (interface{}, error) {
	e, err := r.lookup(name)
	return e.prototype, err
}

// GetModelRules retrieves the rules for a specific model
func (r *DefaultModelRegistry) GetModelRules(name string) (ModelRules, error) {
	e, err := r.lookup(name)
	return e.rules, err
}

// SetModelRules replaces the rules of a registered model. Requests already
// dispatched keep the rules they started with.
func (r *DefaultModelRegistry) SetModelRules(name string, rules ModelRules) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("model %s not found", name)
	}
	e.rules = rules
	r.entries[name] = e
	return nil
}

// Names returns the registered entity names in sorted order
func (r *DefaultModelRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
