package expr

import (
	"fmt"
	"reflect"
	"strings"
)

func (c *comparison) eval(vars map[string]any) (any, error) {
	left, err := c.left.eval(vars)
	if err != nil {
		return nil, err
	}
	right, err := c.right.eval(vars)
	if err != nil {
		return nil, err
	}
	if c.custom != nil {
		return c.callCustom(left, right)
	}
	return Compare(left, right, c.op)
}

// callCustom runs a user-supplied operator, turning a panic into an error.
func (c *comparison) callCustom(left, right any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("operator %s panicked at %d: %v", c.op, c.pos, r)
		}
	}()
	return c.custom(left, right), nil
}

// Compare compares two values using the specified operator.
// Returns an error for unknown operators and for ordering or membership
// tests between incompatible types.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "<", ">", "<=", ">=":
		cmp, err := order(left, right)
		if err != nil {
			return false, err
		}
		switch op {
		case "<":
			return cmp < 0, nil
		case ">":
			return cmp > 0, nil
		case "<=":
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}
	case "contains":
		return contains(left, right)
	case "in":
		return contains(right, left)
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}

// equal compares numbers numerically and everything else structurally.
func equal(left, right any) bool {
	lf, lok := ToFloat64(left)
	rf, rok := ToFloat64(right)
	if lok && rok {
		return lf == rf
	}
	if lok != rok {
		return false
	}
	return reflect.DeepEqual(left, right)
}

func order(left, right any) (int, error) {
	lf, lok := ToFloat64(left)
	rf, rok := ToFloat64(right)
	if lok && rok {
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		}
		return 0, nil
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	return 0, fmt.Errorf("cannot order %s and %s", typeName(left), typeName(right))
}

func contains(container, item any) (bool, error) {
	if s, ok := container.(string); ok {
		sub, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("cannot search string for %s", typeName(item))
		}
		return strings.Contains(s, sub), nil
	}
	if container == nil {
		return false, fmt.Errorf("cannot search null")
	}
	rv := reflect.ValueOf(container)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if equal(rv.Index(i).Interface(), item) {
				return true, nil
			}
		}
		return false, nil
	case reflect.Map:
		key, ok := item.(string)
		if !ok || rv.Type().Key().Kind() != reflect.String {
			return false, fmt.Errorf("cannot look up %s in %s", typeName(item), typeName(container))
		}
		return rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).IsValid(), nil
	}
	return false, fmt.Errorf("cannot search %s", typeName(container))
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
