package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

func (l *literal) eval(map[string]any) (any, error) {
	return l.value, nil
}

func (r *pathRef) eval(vars map[string]any) (any, error) {
	return Lookup(vars, r.segments)
}

// Lookup resolves a dotted key path against vars. A leading "state"
// segment is skipped when vars has no "state" key of its own.
func Lookup(vars map[string]any, segments []string) (any, error) {
	if len(segments) > 1 && segments[0] == "state" {
		if _, shadowed := vars["state"]; !shadowed {
			segments = segments[1:]
		}
	}
	var cur any = vars
	for i, seg := range segments {
		val, ok := index(cur, seg)
		if !ok {
			return nil, fmt.Errorf("%w %q", errMissingKey, strings.Join(segments[:i+1], "."))
		}
		cur = val
	}
	return cur, nil
}

func index(container any, key string) (any, bool) {
	switch m := container.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(container)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func (n *negate) eval(vars map[string]any) (any, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}
	f, ok := ToFloat64(v)
	if !ok {
		return nil, fmt.Errorf("cannot negate %T", v)
	}
	if i, isInt := v.(int64); isInt {
		return -i, nil
	}
	return -f, nil
}

func (n *logicalNot) eval(vars map[string]any) (any, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}
	return !IsTruthy(v), nil
}

func (n *logical) eval(vars map[string]any) (any, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}
	lt := IsTruthy(l)
	if n.and && !lt {
		return false, nil
	}
	if !n.and && lt {
		return true, nil
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}
	return IsTruthy(r), nil
}

func (n *coalesce) eval(vars map[string]any) (any, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		if isMissing(err) {
			return n.right.eval(vars)
		}
		return nil, err
	}
	if l == nil {
		return n.right.eval(vars)
	}
	return l, nil
}

func isMissing(err error) bool {
	return errors.Is(err, errMissingKey)
}

// IsTruthy returns whether a value is truthy.
// nil is false, bools return their value, empty strings, empty collections
// and zero numbers are false, everything else is true.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// ToFloat64 converts a numeric value to float64.
// The second result is false for non-numeric values, including strings.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint8:
		return float64(val), true
	default:
		return 0, false
	}
}
