package expr

import "reflect"

// ValueComparer compares two non-root constant values.
type ValueComparer func(a, b any) bool

// Equivalent reports whether a and b have the same shape. Query-root
// constants match when they name the same model type, regardless of their
// source; other constants are compared with values, which defaults to
// reflect.DeepEqual.
func Equivalent(a, b Expr, values ValueComparer) bool {
	if values == nil {
		values = reflect.DeepEqual
	}
	return equivalent(a, b, values)
}

func equivalent(a, b Expr, values ValueComparer) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a := a.(type) {
	case *Constant:
		b, ok := b.(*Constant)
		if !ok {
			return false
		}
		ra, aRoot := a.Value.(QueryRoot)
		rb, bRoot := b.Value.(QueryRoot)
		if aRoot || bRoot {
			return aRoot && bRoot && ra.ModelType == rb.ModelType && ra.IsLink == rb.IsLink
		}
		if reflect.TypeOf(a.Value) != reflect.TypeOf(b.Value) {
			return false
		}
		return values(a.Value, b.Value)
	case *Param:
		b, ok := b.(*Param)
		return ok && a.Name == b.Name
	case *Arg:
		b, ok := b.(*Arg)
		return ok && a.Index == b.Index && a.Type == b.Type && a.ModelType == b.ModelType
	case *Member:
		b, ok := b.(*Member)
		return ok && a.Name == b.Name && equivalent(a.X, b.X, values)
	case *Binary:
		b, ok := b.(*Binary)
		return ok && a.Op == b.Op && equivalent(a.L, b.L, values) && equivalent(a.R, b.R, values)
	case *Unary:
		b, ok := b.(*Unary)
		return ok && a.Op == b.Op && equivalent(a.X, b.X, values)
	case *Call:
		b, ok := b.(*Call)
		if !ok || a.Method != b.Method || len(a.Args) != len(b.Args) || !equivalent(a.Object, b.Object, values) {
			return false
		}
		for i := range a.Args {
			if !equivalent(a.Args[i], b.Args[i], values) {
				return false
			}
		}
		return true
	case *Lambda:
		b, ok := b.(*Lambda)
		if !ok || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if a.Params[i].Name != b.Params[i].Name {
				return false
			}
		}
		return equivalent(a.Body, b.Body, values)
	}
	return false
}
