package common

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Operator is a comparison applied by a filter predicate.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpIn           Operator = "IN"
)

// Direction of a sort. DirectionDefault resolves to the attribute's configured order.
type Direction string

const (
	DirectionAsc     Direction = "asc"
	DirectionDesc    Direction = "desc"
	DirectionDefault Direction = "default"
)

// SQL returns the ORDER BY keyword for the direction.
func (d Direction) SQL() string {
	if d == DirectionDesc {
		return "DESC"
	}
	return "ASC"
}

// FilterPredicate is a single parsed filter. Path holds the association
// names traversed before reaching Key, empty for attributes of the root model.
type FilterPredicate struct {
	Path     []string      `json:"path,omitempty"`
	Key      string        `json:"key"`
	Operator Operator      `json:"operator"`
	Value    interface{}   `json:"value,omitempty"`
	Values   []interface{} `json:"values,omitempty"`
}

// FullKey returns the dotted path of the predicate, e.g. "owner.name".
func (p FilterPredicate) FullKey() string {
	return joinPath(p.Path, p.Key)
}

// SortSpec is a single parsed sort. Order of specs in a set is significant.
type SortSpec struct {
	Path      []string  `json:"path,omitempty"`
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

func (s SortSpec) FullKey() string {
	return joinPath(s.Path, s.Key)
}

func joinPath(path []string, key string) string {
	if len(path) == 0 {
		return key
	}
	return strings.Join(path, ".") + "." + key
}

// Principal is the acting user resolved by the surrounding application.
type Principal struct {
	ID       interface{} `json:"id"`
	Elevated bool        `json:"elevated"`
	TimeZone string      `json:"time_zone,omitempty"`
}

// Operation is the kind of work a request performs.
type Operation string

const (
	OperationIndex   Operation = "index"
	OperationShow    Operation = "show"
	OperationCreate  Operation = "create"
	OperationUpdate  Operation = "update"
	OperationPatch   Operation = "patch"
	OperationDestroy Operation = "destroy"
)

// IsWrite reports whether the operation mutates data.
func (o Operation) IsWrite() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationPatch, OperationDestroy:
		return true
	}
	return false
}

// OperationFromAction derives the operation from an action name such as
// "create_batch" or "update". An empty result means no write intent.
func OperationFromAction(action string) Operation {
	action = strings.ToLower(action)
	for _, op := range []Operation{OperationCreate, OperationUpdate, OperationPatch, OperationDestroy, OperationIndex, OperationShow} {
		if strings.HasPrefix(action, string(op)) {
			return op
		}
	}
	if strings.HasPrefix(action, "delete") {
		return OperationDestroy
	}
	return ""
}

// Status is the normalized result kind of an operation.
type Status string

const (
	StatusOK             Status = "ok"
	StatusBadRequest     Status = "bad_request"
	StatusNotFound       Status = "not_found"
	StatusUnauthorized   Status = "unauthorized"
	StatusInternalError  Status = "internal_error"
	StatusNotImplemented Status = "not_implemented"
)

// ErrorEntry is the canonical error representation in responses.
type ErrorEntry struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`

	// Backtrace is only filled for internal errors outside production.
	Backtrace []string `json:"backtrace,omitempty"`
}

// Route describes a link target: a named route plus its parameters.
// Href is filled in when a resolver knows the route.
type Route struct {
	Name   string            `json:"route"`
	Params map[string]string `json:"params,omitempty"`
	Href   string            `json:"href,omitempty"`
}

// WithParam returns a copy of the route with key set to value.
func (r Route) WithParam(key, value string) Route {
	params := make(map[string]string, len(r.Params)+1)
	for k, v := range r.Params {
		params[k] = v
	}
	params[key] = value
	r.Params = params
	return r
}

// LinkSet is an insertion-ordered mapping of relation name to route.
type LinkSet struct {
	keys   []string
	routes map[string]Route
}

func NewLinkSet() *LinkSet {
	return &LinkSet{routes: make(map[string]Route)}
}

// Set adds or replaces a relation. Replacing keeps the original position.
func (l *LinkSet) Set(rel string, route Route) {
	if l.routes == nil {
		l.routes = make(map[string]Route)
	}
	if _, ok := l.routes[rel]; !ok {
		l.keys = append(l.keys, rel)
	}
	l.routes[rel] = route
}

func (l *LinkSet) Get(rel string) (Route, bool) {
	if l == nil {
		return Route{}, false
	}
	r, ok := l.routes[rel]
	return r, ok
}

func (l *LinkSet) Has(rel string) bool {
	_, ok := l.Get(rel)
	return ok
}

func (l *LinkSet) Delete(rel string) {
	if l == nil {
		return
	}
	if _, ok := l.routes[rel]; !ok {
		return
	}
	delete(l.routes, rel)
	for i, k := range l.keys {
		if k == rel {
			l.keys = append(l.keys[:i], l.keys[i+1:]...)
			break
		}
	}
}

// Keys returns relation names in insertion order.
func (l *LinkSet) Keys() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.keys))
	copy(out, l.keys)
	return out
}

func (l *LinkSet) Len() int {
	if l == nil {
		return 0
	}
	return len(l.keys)
}

// Merge copies every relation of other into l, overriding existing ones.
func (l *LinkSet) Merge(other *LinkSet) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		l.Set(k, other.routes[k])
	}
}

func (l *LinkSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if l != nil {
		for i, k := range l.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(l.routes[k])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RequestContext carries everything recognized about one request.
// It is built once by the handler and must not be mutated afterwards.
type RequestContext struct {
	// Model is the registered entity name.
	Model string
	// Action is the invoked action name; Operation is derived from it unless set.
	Action    string
	Operation Operation
	Principal *Principal

	// AdminContent marks a request for privileged content (the admin param).
	AdminContent bool
	// SkipOwnership opts out of ownership scoping.
	SkipOwnership bool
	// Scope is a static equality narrowing applied before any filter.
	Scope map[string]interface{}

	// Page and PageSize override the request parameters when > 0.
	Page     int
	PageSize int

	// Route is the current route; ObjectRoute the per-object route for collections.
	Route       Route
	ObjectRoute string
	// DefaultObjectRoute is used when no object route resolves.
	DefaultObjectRoute string
	// Links are caller-supplied links merged into every response.
	Links *LinkSet

	// Format names the body format: json, xml or yaml.
	Format string
	// RootElement names the wrapper element of non-json bodies.
	RootElement string
}

// Elevated reports whether the acting principal has elevated access.
func (c *RequestContext) Elevated() bool {
	return c != nil && c.Principal != nil && c.Principal.Elevated
}

// ResolvedOperation returns the explicit operation or the one implied by the action.
func (c *RequestContext) ResolvedOperation() Operation {
	if c == nil {
		return ""
	}
	if c.Operation != "" {
		return c.Operation
	}
	return OperationFromAction(c.Action)
}
