package reflection

import (
	"database/sql"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

// ColumnKind classifies a column for literal formatting and value parsing.
type ColumnKind string

const (
	KindString  ColumnKind = "string"
	KindInteger ColumnKind = "integer"
	KindFloat   ColumnKind = "float"
	KindBool    ColumnKind = "bool"
	KindTime    ColumnKind = "time"
	KindUUID    ColumnKind = "uuid"
	KindOther   ColumnKind = "other"
)

// IsNumeric reports whether the kind renders as an unquoted number.
func (k ColumnKind) IsNumeric() bool {
	return k == KindInteger || k == KindFloat
}

// RelationType represents the type of database relationship
type RelationType string

const (
	RelationHasMany    RelationType = "has-many"
	RelationBelongsTo  RelationType = "belongs-to"
	RelationHasOne     RelationType = "has-one"
	RelationManyToMany RelationType = "many-to-many"
	RelationUnknown    RelationType = "unknown"
)

// Relation describes how a struct field links to another model.
// BaseColumn lives on the owning table, RelatedColumn on the related table.
type Relation struct {
	Type          RelationType
	Model         reflect.Type
	BaseColumn    string
	RelatedColumn string
}

// Field is one flattened struct field of a model.
type Field struct {
	Name       string
	Index      []int
	Type       reflect.Type
	Column     string
	JSONName   string
	Kind       ColumnKind
	PrimaryKey bool
	ReadOnly   bool
	Relation   *Relation
	Tag        reflect.StructTag
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	uuidType       = reflect.TypeOf(uuid.UUID{})
	nullStringType = reflect.TypeOf(sql.NullString{})
	nullInt64Type  = reflect.TypeOf(sql.NullInt64{})
	nullInt32Type  = reflect.TypeOf(sql.NullInt32{})
	nullFloatType  = reflect.TypeOf(sql.NullFloat64{})
	nullBoolType   = reflect.TypeOf(sql.NullBool{})
	nullTimeType   = reflect.TypeOf(sql.NullTime{})
)

// ModelType unwraps pointers, slices and arrays down to the struct type.
// It returns nil when model is not a struct.
func ModelType(model any) reflect.Type {
	var t reflect.Type
	switch m := model.(type) {
	case reflect.Type:
		t = m
	default:
		t = reflect.TypeOf(model)
	}
	for t != nil && (t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// NewModel returns a pointer to a new zero value of the model's struct type.
func NewModel(model any) any {
	t := ModelType(model)
	if t == nil {
		return nil
	}
	return reflect.New(t).Interface()
}

// TableName returns the table of a model: TableName() when implemented, then the
// bun "table:" tag, then the pluralized snake_case type name.
func TableName(model any) string {
	t := ModelType(model)
	if t == nil {
		return ""
	}
	if provider, ok := reflect.New(t).Interface().(common.TableNameProvider); ok {
		return provider.TableName()
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Name == "BaseModel" {
			for _, part := range strings.Split(f.Tag.Get("bun"), ",") {
				if name, ok := strings.CutPrefix(strings.TrimSpace(part), "table:"); ok && strings.TrimSpace(name) != "" {
					return strings.TrimSpace(name)
				}
			}
		}
	}
	return inflection.Plural(ToSnakeCase(t.Name()))
}

// Fields returns the flattened fields of a model, embedded structs included.
// Fields tagged "-" for both bun and gorm are skipped.
func Fields(model any) []Field {
	t := ModelType(model)
	if t == nil {
		return nil
	}
	var out []Field
	collectFields(t, nil, &out)
	return out
}

func collectFields(typ reflect.Type, index []int, out *[]Field) {
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		idx := append(append([]int{}, index...), i)

		if sf.Anonymous {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && ft.Name() != "BaseModel" && ft != timeType {
				collectFields(ft, idx, out)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		bunTag := sf.Tag.Get("bun")
		gormTag := sf.Tag.Get("gorm")
		if bunTag == "-" || gormTag == "-" {
			continue
		}

		f := Field{
			Name:     sf.Name,
			Index:    idx,
			Type:     sf.Type,
			JSONName: jsonName(sf),
			Tag:      sf.Tag,
		}

		if rel := relationFromField(typ, sf); rel != nil {
			f.Relation = rel
			*out = append(*out, f)
			continue
		}

		f.Column = columnFromField(sf)
		f.Kind = KindOf(sf.Type)
		f.PrimaryKey = hasBunOption(bunTag, "pk") || strings.Contains(gormTag, "primaryKey")
		f.ReadOnly = hasBunOption(bunTag, "scanonly") || strings.Contains(gormTag, "->") || strings.Contains(gormTag, "<-:false")
		*out = append(*out, f)
	}
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name := strings.Split(tag, ",")[0]; name != "" {
		return name
	}
	return ToSnakeCase(sf.Name)
}

// columnFromField extracts the column name: bun tag, gorm tag, then snake_case field name.
func columnFromField(sf reflect.StructField) string {
	if col := ExtractColumnFromBunTag(sf.Tag.Get("bun")); col != "" {
		return col
	}
	if col := ExtractColumnFromGormTag(sf.Tag.Get("gorm")); col != "" {
		return col
	}
	return ToSnakeCase(sf.Name)
}

func hasBunOption(tag, option string) bool {
	parts := strings.Split(tag, ",")
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) == option {
			return true
		}
	}
	return false
}

// ExtractColumnFromGormTag extracts the column name from a gorm tag
// Example: "column:id;primaryKey" -> "id"
func ExtractColumnFromGormTag(tag string) string {
	for _, part := range strings.Split(tag, ";") {
		if colName, found := strings.CutPrefix(strings.TrimSpace(part), "column:"); found {
			return colName
		}
	}
	return ""
}

// ExtractColumnFromBunTag extracts the column name from a bun tag
// Example: "id,pk" -> "id"
// Example: ",pk" -> ""
func ExtractColumnFromBunTag(tag string) string {
	lower := strings.ToLower(tag)
	if strings.HasPrefix(lower, "table:") || strings.HasPrefix(lower, "rel:") || strings.HasPrefix(lower, "join:") {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

// KindOf classifies a Go type into a column kind.
func KindOf(t reflect.Type) ColumnKind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType, nullTimeType:
		return KindTime
	case uuidType:
		return KindUUID
	case nullStringType:
		return KindString
	case nullInt64Type, nullInt32Type:
		return KindInteger
	case nullFloatType:
		return KindFloat
	case nullBoolType:
		return KindBool
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInteger
	case reflect.Float32, reflect.Float64:
		return KindFloat
	}
	return KindOther
}

// relationFromField inspects bun and gorm tags plus the field type to decide
// whether the field is an association, and resolves its join columns.
func relationFromField(owner reflect.Type, sf reflect.StructField) *Relation {
	bunTag := sf.Tag.Get("bun")
	gormTag := sf.Tag.Get("gorm")

	target := sf.Type
	isSlice := false
	for target.Kind() == reflect.Pointer || target.Kind() == reflect.Slice {
		if target.Kind() == reflect.Slice {
			isSlice = true
		}
		target = target.Elem()
	}
	if target.Kind() != reflect.Struct || target == timeType || target == uuidType || strings.HasPrefix(target.PkgPath(), "database/sql") {
		return nil
	}

	rel := &Relation{Type: RelationUnknown, Model: target}

	for _, part := range strings.Split(bunTag, ",") {
		part = strings.TrimSpace(part)
		if relType, ok := strings.CutPrefix(part, "rel:"); ok {
			switch relType {
			case "has-many":
				rel.Type = RelationHasMany
			case "belongs-to":
				rel.Type = RelationBelongsTo
			case "has-one":
				rel.Type = RelationHasOne
			case "many-to-many", "m2m":
				rel.Type = RelationManyToMany
			}
		}
		if join, ok := strings.CutPrefix(part, "join:"); ok {
			if base, related, found := strings.Cut(join, "="); found {
				rel.BaseColumn = base
				rel.RelatedColumn = related
			}
		}
	}

	if rel.Type == RelationUnknown && gormTag != "" {
		switch {
		case strings.Contains(gormTag, "many2many:"):
			rel.Type = RelationManyToMany
		case isSlice:
			rel.Type = RelationHasMany
		case gormOption(gormTag, "foreignKey") != "" && hasField(owner, gormOption(gormTag, "foreignKey")):
			rel.Type = RelationBelongsTo
		case gormOption(gormTag, "foreignKey") != "":
			rel.Type = RelationHasOne
		}
	}
	if rel.Type == RelationUnknown {
		if bunTag == "" && gormTag == "" && !isSlice && sf.Type.Kind() != reflect.Pointer {
			// plain embedded-by-value structs are rendered, not joined
			return nil
		}
		if isSlice {
			rel.Type = RelationHasMany
		} else {
			rel.Type = RelationBelongsTo
		}
	}

	if rel.BaseColumn == "" || rel.RelatedColumn == "" {
		fk := gormOption(gormTag, "foreignKey")
		ref := gormOption(gormTag, "references")
		switch rel.Type {
		case RelationBelongsTo:
			rel.BaseColumn = ToSnakeCase(sf.Name) + "_id"
			if fk != "" {
				rel.BaseColumn = fieldColumn(owner, fk)
			}
			rel.RelatedColumn = "id"
			if ref != "" {
				rel.RelatedColumn = fieldColumn(target, ref)
			}
		default:
			rel.BaseColumn = "id"
			if ref != "" {
				rel.BaseColumn = fieldColumn(owner, ref)
			}
			rel.RelatedColumn = ToSnakeCase(owner.Name()) + "_id"
			if fk != "" {
				rel.RelatedColumn = fieldColumn(target, fk)
			}
		}
	}
	return rel
}

func gormOption(tag, key string) string {
	for _, part := range strings.Split(tag, ";") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), key+":"); ok {
			return v
		}
	}
	return ""
}

func hasField(t reflect.Type, name string) bool {
	_, ok := t.FieldByName(name)
	return ok
}

// fieldColumn maps a Go field name of t to its column.
func fieldColumn(t reflect.Type, name string) string {
	if sf, ok := t.FieldByName(name); ok {
		return columnFromField(sf)
	}
	return ToSnakeCase(name)
}

// GetPrimaryKeyName extracts the primary key column name from a model.
// GetIDName() wins, then bun pk / gorm primaryKey tags, then "id".
func GetPrimaryKeyName(model any) string {
	if provider, ok := model.(common.PrimaryKeyNameProvider); ok {
		return provider.GetIDName()
	}
	if t := ModelType(model); t != nil {
		if provider, ok := reflect.New(t).Interface().(common.PrimaryKeyNameProvider); ok {
			return provider.GetIDName()
		}
	}
	for _, f := range Fields(model) {
		if f.PrimaryKey {
			return f.Column
		}
	}
	return "id"
}

// GetPrimaryKeyValue returns the primary key value of a model instance.
func GetPrimaryKeyValue(model any) any {
	v, _ := GetFieldByColumn(model, GetPrimaryKeyName(model))
	return v
}

// FieldByColumn finds the field backing a column.
func FieldByColumn(model any, column string) (Field, bool) {
	for _, f := range Fields(model) {
		if f.Relation == nil && strings.EqualFold(f.Column, column) {
			return f, true
		}
	}
	return Field{}, false
}

// GetFieldByColumn reads the value stored in the field backing column.
func GetFieldByColumn(model any, column string) (any, bool) {
	f, ok := FieldByColumn(model, column)
	if !ok {
		return nil, false
	}
	v := structValue(model)
	if !v.IsValid() {
		return nil, false
	}
	fv, err := v.FieldByIndexErr(f.Index)
	if err != nil || !fv.CanInterface() {
		return nil, false
	}
	return fv.Interface(), true
}

// SetFieldByColumn assigns value to the field backing column, converting as needed.
func SetFieldByColumn(model any, column string, value any) error {
	f, ok := FieldByColumn(model, column)
	if !ok {
		return &FieldError{Column: column, Reason: "unknown column"}
	}
	return SetField(model, f, value)
}

// SetField assigns value to f on model, which must be a pointer to struct.
func SetField(model any, f Field, value any) error {
	v := structValue(model)
	if !v.IsValid() || !v.CanSet() {
		return &FieldError{Column: f.Column, Reason: "model is not addressable"}
	}
	fv, err := v.FieldByIndexErr(f.Index)
	if err != nil {
		return &FieldError{Column: f.Column, Reason: err.Error()}
	}
	if err := AssignValue(fv, value); err != nil {
		return &FieldError{Column: f.Column, Reason: err.Error()}
	}
	return nil
}

// FieldValue returns the reflect.Value of f on model.
func FieldValue(model any, f Field) (reflect.Value, bool) {
	v := structValue(model)
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	fv, err := v.FieldByIndexErr(f.Index)
	if err != nil {
		return reflect.Value{}, false
	}
	return fv, true
}

func structValue(model any) reflect.Value {
	v := reflect.ValueOf(model)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return v
}

// TypeName returns the bare struct type name of a model.
func TypeName(model any) string {
	if t := ModelType(model); t != nil {
		return t.Name()
	}
	return ""
}

// ToSnakeCase converts a string from CamelCase to snake_case
func ToSnakeCase(s string) string {
	var result strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') || (prev >= 'A' && prev <= 'Z' && nextLower) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
