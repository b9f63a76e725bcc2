package metadata

import (
	"fmt"
	"strings"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

// Purpose selects which capability flag an attribute is filtered by.
type Purpose string

const (
	PurposeFilter Purpose = "filter"
	PurposeSort   Purpose = "sort"
	PurposeCreate Purpose = "create"
	PurposeUpdate Purpose = "update"
	PurposeRender Purpose = "render"
)

// PurposeFor maps an operation to the metadata purpose used to write it.
func PurposeFor(op common.Operation) Purpose {
	if op == common.OperationCreate {
		return PurposeCreate
	}
	return PurposeUpdate
}

// ParseFunc converts a raw request value into the value stored on the model.
type ParseFunc func(value interface{}, ctx *common.RequestContext) (interface{}, error)

// RenderFunc converts a stored value into its wire representation.
type RenderFunc func(value interface{}, ctx *common.RequestContext) interface{}

const DefaultFilterDelimiter = ","

// Attribute describes one API-visible attribute of a model.
type Attribute struct {
	// Key is the internal key, unique within a model.
	Key string
	// Name is the external (wire) name. Defaults to Key.
	Name string
	// Column is the backing column, empty when no column backs the attribute.
	Column string
	// RenderColumn is consulted when Column is empty, mirroring a render
	// method that reads a different column.
	RenderColumn string

	Filter Flag
	Sort   Flag
	Create Flag
	Update Flag
	// Hidden attributes are never rendered.
	Hidden bool

	DefaultSortOrder common.Direction
	// FilterDelimiter overrides the multi-value delimiter; nil means ",".
	FilterDelimiter *string

	Parse  ParseFunc
	Render RenderFunc

	// Association names the struct field of a related model; set for association attributes.
	Association string

	field    *reflection.Field
	relation *reflection.Relation
	kind     reflection.ColumnKind
}

// IsAssociation reports whether the attribute traverses to a related model.
func (a *Attribute) IsAssociation() bool {
	return a.relation != nil
}

// Relation returns the association description, nil for plain attributes.
func (a *Attribute) Relation() *reflection.Relation {
	return a.relation
}

// Field returns the struct field backing the attribute, nil when none.
func (a *Attribute) Field() *reflection.Field {
	return a.field
}

// Kind returns the column kind of the backing column.
func (a *Attribute) Kind() reflection.ColumnKind {
	if a.kind == "" {
		return reflection.KindOther
	}
	return a.kind
}

// QueryColumn returns the column filters and sorts run against, "" when none.
func (a *Attribute) QueryColumn() string {
	if a.Column != "" {
		return a.Column
	}
	return a.RenderColumn
}

// Delimiter returns the filter delimiter for multi-value input.
func (a *Attribute) Delimiter() string {
	if a.FilterDelimiter != nil {
		return *a.FilterDelimiter
	}
	return DefaultFilterDelimiter
}

// SortOrder resolves the default direction, falling back to ascending.
func (a *Attribute) SortOrder() common.Direction {
	if a.DefaultSortOrder == common.DirectionDesc {
		return common.DirectionDesc
	}
	return common.DirectionAsc
}

// Allowed evaluates the capability flag for purpose.
func (a *Attribute) Allowed(purpose Purpose, ctx *common.RequestContext) bool {
	switch purpose {
	case PurposeFilter:
		return a.Filter.Eval(ctx)
	case PurposeSort:
		return a.Sort.Eval(ctx)
	case PurposeCreate:
		return a.Create.Eval(ctx)
	case PurposeUpdate:
		return a.Update.Eval(ctx)
	case PurposeRender:
		return !a.Hidden
	}
	return false
}

// ParseValue applies the parse transform, or returns value unchanged.
func (a *Attribute) ParseValue(value interface{}, ctx *common.RequestContext) (interface{}, error) {
	if a.Parse == nil {
		return value, nil
	}
	return a.Parse(value, ctx)
}

// RenderValue applies the render transform, or returns value unchanged.
func (a *Attribute) RenderValue(value interface{}, ctx *common.RequestContext) interface{} {
	if a.Render == nil {
		return value
	}
	return a.Render(value, ctx)
}

// parseTag reads the api struct tag:
//
//	api:"name,filter,sort,create,update,desc,delim=|,key=k,column=c"
//
// write is shorthand for create and update; a flag written as filter=admin
// is only granted to elevated principals.
func parseTag(tag string, attr *Attribute) error {
	parts := strings.Split(tag, ",")
	if name := strings.TrimSpace(parts[0]); name != "" {
		attr.Name = name
	}
	for _, raw := range parts[1:] {
		opt, val, hasVal := strings.Cut(strings.TrimSpace(raw), "=")
		flag := Always
		if hasVal && (opt == "filter" || opt == "sort" || opt == "create" || opt == "update" || opt == "write") {
			switch val {
			case "admin":
				flag = ElevatedOnly
			case "false":
				flag = Never
			case "true":
			default:
				return fmt.Errorf("unknown flag value %q for %s", val, opt)
			}
		}
		switch opt {
		case "":
		case "filter":
			attr.Filter = flag
		case "sort":
			attr.Sort = flag
		case "create":
			attr.Create = flag
		case "update":
			attr.Update = flag
		case "write":
			attr.Create = flag
			attr.Update = flag
		case "asc":
			attr.DefaultSortOrder = common.DirectionAsc
		case "desc":
			attr.DefaultSortOrder = common.DirectionDesc
		case "delim":
			d := val
			attr.FilterDelimiter = &d
		case "key":
			attr.Key = val
		case "column":
			attr.RenderColumn = val
		case "hidden":
			attr.Hidden = true
		default:
			return fmt.Errorf("unknown api tag option %q", opt)
		}
	}
	return nil
}
