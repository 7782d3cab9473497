package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/golobby/cast"
)

var (
	int64Type   = reflect.TypeOf(int64(0))
	float64Type = reflect.TypeOf(float64(0))
	boolType    = reflect.TypeOf(false)
)

// ToString renders a leaf value as a string.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// ToInt64 converts numeric leaves and numeric strings.
func ToInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case string:
		s := strings.TrimSpace(t)
		if out, err := cast.FromType(s, int64Type); err == nil {
			return reflect.ValueOf(out).Convert(int64Type).Int(), nil
		}
		f, err := ToFloat64(s)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", t)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("not an integer: %v (%T)", v, v)
}

// ToInt is ToInt64 narrowed to int.
func ToInt(v any) (int, error) {
	n, err := ToInt64(v)
	return int(n), err
}

// ToFloat64 converts numeric leaves and numeric strings.
func ToFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		out, err := cast.FromType(strings.TrimSpace(t), float64Type)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return reflect.ValueOf(out).Convert(float64Type).Float(), nil
	}
	return 0, fmt.Errorf("not a number: %v (%T)", v, v)
}

// ToBool converts booleans and boolean strings.
func ToBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		out, err := cast.FromType(strings.TrimSpace(t), boolType)
		if err != nil {
			return false, fmt.Errorf("not a boolean: %q", t)
		}
		return reflect.ValueOf(out).Bool(), nil
	}
	return false, fmt.Errorf("not a boolean: %v (%T)", v, v)
}

// ToDuration converts a leaf to a duration. Bare numbers are seconds;
// strings may also use Go duration syntax ("1m30s").
func ToDuration(v any) (time.Duration, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
	}
	secs, err := ToFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %v", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ToStringList accepts a list leaf or a comma separated string.
func ToStringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, ToString(item))
		}
		return out, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("not a list: %v (%T)", v, v)
}
