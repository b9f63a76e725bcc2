package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jinzhu/now"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

// FallbackTimeZone is used when neither the principal nor the configuration names a zone.
const FallbackTimeZone = "America/New_York"

// dbTimeLayout is how date/time literals are written, always in UTC.
const dbTimeLayout = "2006-01-02 15:04:05"

var ErrInvalidLiteral = errors.New("invalid literal")

// ResolveLocation picks the principal's zone, then defaultZone, then FallbackTimeZone.
func ResolveLocation(ctx *common.RequestContext, defaultZone string) *time.Location {
	var candidates []string
	if ctx != nil && ctx.Principal != nil && ctx.Principal.TimeZone != "" {
		candidates = append(candidates, ctx.Principal.TimeZone)
	}
	candidates = append(candidates, defaultZone, FallbackTimeZone)
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// QuoteIdent quotes a table or column identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Qualify returns "table"."column".
func Qualify(table, column string) string {
	if table == "" {
		return QuoteIdent(column)
	}
	return QuoteIdent(table) + "." + QuoteIdent(column)
}

// QuoteString writes a SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// FormatLiteral renders value as a SQL literal for a column of kind.
// Times are parsed in loc and written in UTC; integers lose a trailing ".0";
// booleans become true or false. Values that do not fit a numeric, boolean
// or time column are rejected rather than quoted.
func FormatLiteral(kind reflection.ColumnKind, value interface{}, loc *time.Location) (string, error) {
	if value == nil {
		return "NULL", nil
	}
	switch kind {
	case reflection.KindTime:
		t, err := toTime(value, loc)
		if err != nil {
			return "", err
		}
		return QuoteString(t.UTC().Format(dbTimeLayout)), nil
	case reflection.KindInteger:
		f, err := toNumber(value)
		if err != nil {
			return "", err
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case reflection.KindFloat:
		f, err := toNumber(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case reflection.KindBool:
		b, err := toBool(value)
		if err != nil {
			return "", err
		}
		if b {
			return "true", nil
		}
		return "false", nil
	}
	switch v := value.(type) {
	case time.Time:
		return QuoteString(v.UTC().Format(dbTimeLayout)), nil
	case fmt.Stringer:
		return QuoteString(v.String()), nil
	}
	return QuoteString(fmt.Sprint(value)), nil
}

func toTime(value interface{}, loc *time.Location) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case string:
		if t, err := time.ParseInLocation(time.RFC3339, v, loc); err == nil {
			return t, nil
		}
		t, err := now.ParseInLocation(loc, strings.TrimSpace(v))
		if err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("%w: %q is not a date/time: %v", ErrInvalidLiteral, v, err)
	}
	return time.Time{}, fmt.Errorf("%w: %T is not a date/time", ErrInvalidLiteral, value)
}

func toNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidLiteral, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidLiteral, value)
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes", "on":
			return true, nil
		case "0", "f", "false", "n", "no", "off":
			return false, nil
		}
	default:
		if f, err := toNumber(value); err == nil {
			return f != 0, nil
		}
	}
	return false, fmt.Errorf("%w: %v is not a boolean", ErrInvalidLiteral, value)
}
