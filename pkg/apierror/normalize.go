package apierror

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
)

const unspecified = "Unspecified error"

// Normalize turns error input into entries. A string becomes one entry
// with the same error and message. A mapping keeps error and message,
// filling a missing one from the other. Lists normalize element-wise.
// A non-empty field is attached to the first entry only.
func Normalize(input interface{}, field string) []common.ErrorEntry {
	entries := normalize(input)
	if field != "" && len(entries) > 0 {
		entries[0].Field = field
	}
	return entries
}

func normalize(input interface{}) []common.ErrorEntry {
	switch v := input.(type) {
	case nil:
		return nil
	case common.ErrorEntry:
		return []common.ErrorEntry{fill(v)}
	case []common.ErrorEntry:
		out := make([]common.ErrorEntry, 0, len(v))
		for _, e := range v {
			out = append(out, fill(e))
		}
		return out
	case string:
		return []common.ErrorEntry{{Error: v, Message: v}}
	case []string:
		out := make([]common.ErrorEntry, 0, len(v))
		for _, s := range v {
			out = append(out, common.ErrorEntry{Error: s, Message: s})
		}
		return out
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for k, s := range v {
			m[k] = s
		}
		return []common.ErrorEntry{fromMap(m)}
	case map[string]interface{}:
		return []common.ErrorEntry{fromMap(v)}
	case []map[string]interface{}:
		out := make([]common.ErrorEntry, 0, len(v))
		for _, m := range v {
			out = append(out, fromMap(m))
		}
		return out
	case []interface{}:
		var out []common.ErrorEntry
		for _, item := range v {
			out = append(out, normalize(item)...)
		}
		return out
	case metadata.ValidationErrors:
		return FromValidation(v)
	case *Error:
		return v.Entries
	case error:
		var verrs metadata.ValidationErrors
		if errors.As(v, &verrs) {
			return FromValidation(verrs)
		}
		return []common.ErrorEntry{{Error: v.Error(), Message: v.Error()}}
	case fmt.Stringer:
		s := v.String()
		return []common.ErrorEntry{{Error: s, Message: s}}
	}
	s := fmt.Sprint(input)
	return []common.ErrorEntry{{Error: s, Message: s}}
}

func fill(e common.ErrorEntry) common.ErrorEntry {
	switch {
	case e.Error == "" && e.Message == "":
		e.Error, e.Message = unspecified, unspecified
	case e.Error == "":
		e.Error = e.Message
	case e.Message == "":
		e.Message = e.Error
	}
	return e
}

func fromMap(m map[string]interface{}) common.ErrorEntry {
	e := common.ErrorEntry{
		Error:   stringValue(m["error"]),
		Message: stringValue(m["message"]),
		Field:   stringValue(m["field"]),
	}
	return fill(e)
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// FromValidation returns one field-tagged entry per message, fields sorted.
func FromValidation(v metadata.ValidationErrors) []common.ErrorEntry {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []common.ErrorEntry
	for _, f := range fields {
		label := humanize(f)
		for _, msg := range v[f] {
			out = append(out, common.ErrorEntry{
				Error:   "Invalid " + f,
				Message: label + " " + msg,
				Field:   f,
			})
		}
	}
	return out
}

// humanize turns "first_name" into "First name".
func humanize(s string) string {
	s = strings.ReplaceAll(strings.TrimSuffix(s, "_id"), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
