package params

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
)

// SortSet is the ordered list of parsed sorts.
type SortSet struct {
	Specs []common.SortSpec
}

func (s SortSet) Empty() bool {
	return len(s.Specs) == 0
}

// RawSort is one requested sort before it is matched against metadata.
type RawSort struct {
	Name      string
	Direction common.Direction
}

// directionSuffixes are checked longest first so "_desc" never matches as "_d".
var directionSuffixes = []struct {
	suffix    string
	direction common.Direction
}{
	{"descending", common.DirectionDesc},
	{"ascending", common.DirectionAsc},
	{"desc", common.DirectionDesc},
	{"asc", common.DirectionAsc},
	{"d", common.DirectionDesc},
	{"a", common.DirectionAsc},
}

// ParseSortParam reads a sort_by value: a JSON object of name to direction,
// a JSON array of names, or a comma list of names with optional direction
// suffixes. Malformed JSON yields no sorts.
func ParseSortParam(sortBy string) []RawSort {
	sortBy = strings.TrimSpace(sortBy)
	if sortBy == "" {
		return nil
	}
	if strings.HasPrefix(sortBy, "{") || strings.HasPrefix(sortBy, "[") {
		return parseJSONSort(sortBy)
	}

	var out []RawSort
	for _, token := range strings.Split(sortBy, ",") {
		name, dir := StripDirection(token)
		if name == "" {
			continue
		}
		out = append(out, RawSort{Name: name, Direction: dir})
	}
	return out
}

func parseJSONSort(sortBy string) []RawSort {
	if !gjson.Valid(sortBy) {
		return nil
	}
	var out []RawSort
	res := gjson.Parse(sortBy)
	switch {
	case res.IsObject():
		res.ForEach(func(key, value gjson.Result) bool {
			if name := strings.TrimSpace(key.String()); name != "" {
				out = append(out, RawSort{Name: name, Direction: directionToken(value.String())})
			}
			return true
		})
	case res.IsArray():
		for _, item := range res.Array() {
			if name := strings.TrimSpace(item.String()); name != "" {
				out = append(out, RawSort{Name: name, Direction: common.DirectionDefault})
			}
		}
	}
	return out
}

func directionToken(token string) common.Direction {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "a", "asc", "ascending":
		return common.DirectionAsc
	case "d", "desc", "descending":
		return common.DirectionDesc
	}
	return common.DirectionDefault
}

// StripDirection removes a trailing direction marker separated by "_" or a space.
// "price_desc", "price desc" and "price_d" all yield ("price", desc).
func StripDirection(token string) (string, common.Direction) {
	token = strings.TrimSpace(token)
	lower := strings.ToLower(token)
	for _, s := range directionSuffixes {
		for _, sep := range []string{"_", " "} {
			if strings.HasSuffix(lower, sep+s.suffix) {
				return strings.TrimSpace(token[:len(token)-len(sep+s.suffix)]), s.direction
			}
		}
	}
	return token, common.DirectionDefault
}

// ParseSorts matches raw sorts against the sortable attributes of model.
// Default directions resolve to the attribute's configured order.
func ParseSorts(model *metadata.Model, sortBy string, ctx *common.RequestContext) SortSet {
	var set SortSet
	seen := make(map[string]bool)
	for _, raw := range ParseSortParam(sortBy) {
		path, attr, ok := resolve(model, raw.Name, metadata.PurposeSort, ctx)
		if !ok {
			continue
		}
		spec := common.SortSpec{Path: path, Key: attr.Key, Direction: raw.Direction}
		if spec.Direction != common.DirectionAsc && spec.Direction != common.DirectionDesc {
			spec.Direction = attr.SortOrder()
		}
		if seen[spec.FullKey()] {
			continue
		}
		seen[spec.FullKey()] = true
		set.Specs = append(set.Specs, spec)
	}
	return set
}
