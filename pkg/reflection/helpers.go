package reflection

import (
	"database/sql"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// FieldError reports a value that could not be stored in a model column.
type FieldError struct {
	Column string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("column %s: %s", e.Column, e.Reason)
}

var (
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	scannerType         = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// AssignValue stores a decoded request value (string, float64, bool, map, slice
// or nil) into dst, converting to dst's type.
func AssignValue(dst reflect.Value, value any) error {
	if !dst.CanSet() {
		return fmt.Errorf("field is not settable")
	}
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := AssignValue(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if dst.Type() == timeType {
		t, err := parseTime(value)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	if s, ok := value.(string); ok && reflect.PointerTo(dst.Type()).Implements(textUnmarshalerType) {
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}
	if reflect.PointerTo(dst.Type()).Implements(scannerType) {
		if t, err := parseTime(value); err == nil && dst.Type() == nullTimeType {
			value = t
		}
		return dst.Addr().Interface().(sql.Scanner).Scan(value)
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(fmt.Sprint(value))
		return nil
	case reflect.Bool:
		b, err := toBool(value)
		if err != nil {
			return err
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("%v is not an integer", value)
		}
		if dst.OverflowInt(int64(f)) {
			return fmt.Errorf("%v overflows %s", value, dst.Type())
		}
		dst.SetInt(int64(f))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		if f < 0 || f != math.Trunc(f) {
			return fmt.Errorf("%v is not an unsigned integer", value)
		}
		if dst.OverflowUint(uint64(f)) {
			return fmt.Errorf("%v overflows %s", value, dst.Type())
		}
		dst.SetUint(uint64(f))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil
	}

	// maps, slices and nested structs go through a JSON round trip
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ptr := reflect.New(dst.Type())
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return fmt.Errorf("cannot convert %T to %s", value, dst.Type())
	}
	dst.Set(ptr.Elem())
	return nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", v)
		}
		return f, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert %T to a number", value)
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("invalid boolean %q", v)
		}
		return b, nil
	}
	return false, fmt.Errorf("cannot convert %T to a boolean", value)
}

func parseTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, nil
		}
		return now.Parse(v)
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to a time", value)
}
