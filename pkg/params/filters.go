package params

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
)

// ReservedParams are never treated as filters.
var ReservedParams = map[string]bool{
	"access_token": true,
	"sort_by":      true,
	"admin":        true,
	"page":         true,
	"page_size":    true,
}

// MaxAssociationDepth bounds how many associations a dotted filter or sort may traverse.
const MaxAssociationDepth = 1

// FilterSet is the parsed form of a request's filter parameters.
type FilterSet struct {
	Predicates []common.FilterPredicate
}

// Empty reports whether no predicate was parsed.
func (f FilterSet) Empty() bool {
	return len(f.Predicates) == 0
}

var indexedParam = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// input is one attribute's raw filter input: a single value, or a list when
// the parameter arrived as key[0], key[1], ...
type input struct {
	values  []string
	isArray bool
}

// ParseFilters turns raw query parameters into predicates against model.
// Unknown or non-filterable attributes are dropped; parsing never fails.
func ParseFilters(model *metadata.Model, raw map[string]string, ctx *common.RequestContext) FilterSet {
	inputs := gatherInputs(raw)

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	type target struct {
		path       []string
		attr       *metadata.Attribute
		candidates []string
		isArray    bool
	}
	targets := make(map[string]*target)
	var order []string

	for _, name := range names {
		in := inputs[name]
		attrName := strings.TrimSpace(name)
		values := in.values
		if n := len(attrName); n > 1 && strings.ContainsAny(attrName[n-1:], "><!=") && !in.isArray {
			// key>=v arrives as "key>" = "v"
			values = []string{attrName[n-1:] + "=" + values[0]}
			attrName = strings.TrimSpace(attrName[:n-1])
		}

		path, attr, ok := resolve(model, attrName, metadata.PurposeFilter, ctx)
		if !ok {
			continue
		}
		fullKey := strings.Join(append(append([]string{}, path...), attr.Key), ".")
		t, seen := targets[fullKey]
		if !seen {
			t = &target{path: path, attr: attr}
			targets[fullKey] = t
			order = append(order, fullKey)
		}

		if in.isArray {
			t.isArray = true
			t.candidates = append(t.candidates, values...)
			continue
		}
		parts, multi := splitValue(values[0], attr.Delimiter())
		if multi || seen {
			t.isArray = true
		}
		t.candidates = append(t.candidates, parts...)
	}

	var set FilterSet
	for _, key := range order {
		t := targets[key]
		set.Predicates = append(set.Predicates, buildPredicates(t.path, t.attr, t.candidates, t.isArray || len(t.candidates) > 1, ctx)...)
	}
	return set
}

// gatherInputs drops reserved params and folds key[0], key[1], ... into one list.
func gatherInputs(raw map[string]string) map[string]input {
	inputs := make(map[string]input)
	indexed := make(map[string]map[int]string)
	for k, v := range raw {
		if ReservedParams[k] {
			continue
		}
		if m := indexedParam.FindStringSubmatch(k); m != nil {
			idx, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			if indexed[m[1]] == nil {
				indexed[m[1]] = make(map[int]string)
			}
			indexed[m[1]][idx] = v
			continue
		}
		inputs[k] = input{values: []string{v}}
	}
	for k, byIndex := range indexed {
		if ReservedParams[k] {
			continue
		}
		var values []string
		for i := 0; ; i++ {
			v, ok := byIndex[i]
			if !ok {
				break
			}
			values = append(values, v)
		}
		if len(values) > 0 {
			inputs[k] = input{values: values, isArray: true}
		}
	}
	return inputs
}

// splitValue splits a raw value that is a JSON array or contains delimiter.
func splitValue(raw, delimiter string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") && gjson.Valid(raw) {
		if res := gjson.Parse(raw); res.IsArray() {
			var out []string
			for _, item := range res.Array() {
				out = append(out, item.String())
			}
			return out, true
		}
	}
	if delimiter != "" && strings.Contains(raw, delimiter) {
		return strings.Split(raw, delimiter), true
	}
	return []string{raw}, false
}

// buildPredicates parses operator prefixes. In list form every "=" candidate
// merges into a single IN predicate with duplicates removed.
func buildPredicates(path []string, attr *metadata.Attribute, candidates []string, list bool, ctx *common.RequestContext) []common.FilterPredicate {
	var out []common.FilterPredicate
	var equals []interface{}
	seen := make(map[string]bool)

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if list && c == "" {
			continue
		}
		op, v := ParseOperator(c)
		value, err := attr.ParseValue(v, ctx)
		if err != nil {
			logger.Debug("Dropping filter value %q for %s: %v", v, attr.Key, err)
			continue
		}
		if op != common.OpEqual {
			out = append(out, common.FilterPredicate{Path: path, Key: attr.Key, Operator: op, Value: value})
			continue
		}
		if !list {
			out = append(out, common.FilterPredicate{Path: path, Key: attr.Key, Operator: common.OpEqual, Value: value})
			continue
		}
		if k := fmt.Sprint(value); !seen[k] {
			seen[k] = true
			equals = append(equals, value)
		}
	}
	if len(equals) > 0 {
		out = append(out, common.FilterPredicate{Path: path, Key: attr.Key, Operator: common.OpIn, Values: equals})
	}
	return out
}

var (
	twoCharOperator = regexp.MustCompile(`^(>=|<=|!=|<>)\s*\w`)
	oneCharOperator = regexp.MustCompile(`^(>|<|=)\s*\w`)
)

// ParseOperator splits a leading comparison operator from value. The operator
// must be followed by a word character; "<>" normalizes to "!=" and a missing
// operator means "=".
func ParseOperator(value string) (common.Operator, string) {
	value = strings.TrimSpace(value)
	if m := twoCharOperator.FindStringSubmatch(value); m != nil {
		op := common.Operator(m[1])
		if m[1] == "<>" {
			op = common.OpNotEqual
		}
		return op, strings.TrimSpace(value[2:])
	}
	if m := oneCharOperator.FindStringSubmatch(value); m != nil {
		return common.Operator(m[1]), strings.TrimSpace(value[1:])
	}
	if rest, ok := strings.CutPrefix(value, "=="); ok {
		return common.OpEqual, strings.TrimSpace(rest)
	}
	return common.OpEqual, value
}

// resolve walks a dotted name through association attributes allowed for purpose.
func resolve(model *metadata.Model, name string, purpose metadata.Purpose, ctx *common.RequestContext) ([]string, *metadata.Attribute, bool) {
	elems := strings.Split(name, ".")
	if len(elems)-1 > MaxAssociationDepth {
		return nil, nil, false
	}
	var path []string
	current := model
	for i, elem := range elems {
		attr, ok := current.Lookup(elem)
		if !ok || !attr.Allowed(purpose, ctx) {
			return nil, nil, false
		}
		if i == len(elems)-1 {
			if attr.IsAssociation() {
				return nil, nil, false
			}
			return path, attr, true
		}
		if !attr.IsAssociation() {
			return nil, nil, false
		}
		related, err := current.Related(attr)
		if err != nil {
			logger.Warn("Failed to resolve association %s of %s: %v", attr.Key, current.Name, err)
			return nil, nil, false
		}
		path = append(path, attr.Key)
		current = related
	}
	return nil, nil, false
}
