package expr

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotLocal is returned when an expression depends on a lambda
// parameter, a placeholder or a query root.
var ErrNotLocal = errors.New("expr: not locally evaluable")

// IsLocal reports whether e can be evaluated without a query: a constant
// or a member chain over one, with no parameters, placeholders or query
// roots.
func IsLocal(e Expr) bool {
	switch e := e.(type) {
	case *Constant:
		_, root := e.Value.(QueryRoot)
		return !root
	case *Member:
		return IsLocal(e.X)
	}
	return false
}

// EvaluateLocal computes the value of a local expression. Members are
// read from struct fields (through pointers) or string-keyed maps.
func EvaluateLocal(e Expr) (any, error) {
	switch e := e.(type) {
	case *Constant:
		if _, root := e.Value.(QueryRoot); root {
			return nil, ErrNotLocal
		}
		return e.Value, nil
	case *Member:
		x, err := EvaluateLocal(e.X)
		if err != nil {
			return nil, err
		}
		return member(x, e.Name)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotLocal, String(e))
}

func member(x any, name string) (any, error) {
	rv := reflect.ValueOf(x)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("expr: member %s of nil", name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("expr: %s has no field %s", rv.Type(), name)
		}
		if !f.CanInterface() {
			return nil, fmt.Errorf("expr: field %s of %s is unexported", name, rv.Type())
		}
		return f.Interface(), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, fmt.Errorf("expr: key %s not found", name)
		}
		return v.Interface(), nil
	}
	return nil, fmt.Errorf("expr: cannot select %s from %s", name, rv.Type())
}
