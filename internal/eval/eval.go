// Package eval evaluates AST filters and sorts against in-memory models.
//
// Comparisons against a null field value are false for every operator
// except EQ and NE, matching the SQL executor. Sorting places nulls first
// in ascending order and breaks ties by key.
package eval

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

// ErrUnbound is returned when a filter still holds a Parameter.
var ErrUnbound = errors.New("eval: unbound parameter")

// ErrUnsupported is returned for nodes that are not filters.
var ErrUnsupported = errors.New("eval: unsupported node")

// Evaluator reads model fields through a registry.
type Evaluator struct {
	reg *model.Registry
}

// New returns an evaluator over reg.
func New(reg *model.Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// Match reports whether m satisfies filter. A nil filter matches.
func (e *Evaluator) Match(m model.Model, filter ast.Node) (bool, error) {
	if filter == nil {
		return true, nil
	}
	switch n := filter.(type) {
	case *ast.And:
		ok, err := e.Match(m, n.Left)
		if err != nil || !ok {
			return false, err
		}
		return e.Match(m, n.Right)
	case *ast.Or:
		ok, err := e.Match(m, n.Left)
		if err != nil || ok {
			return ok, err
		}
		return e.Match(m, n.Right)
	case *ast.Not:
		ok, err := e.Match(m, n.Operand)
		return !ok, err
	case *ast.Comparison:
		return e.compare(m, n)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupported, filter.Kind())
	}
}

// Filter returns the models matching filter, keeping their order.
func (e *Evaluator) Filter(models []model.Model, filter ast.Node) ([]model.Model, error) {
	out := make([]model.Model, 0, len(models))
	for _, m := range models {
		ok, err := e.Match(m, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *Evaluator) compare(m model.Model, c *ast.Comparison) (bool, error) {
	var want any
	switch v := c.Value.(type) {
	case *ast.Scalar:
		want = v.Value
	case *ast.Parameter:
		return false, fmt.Errorf("%w: $%d", ErrUnbound, v.Index)
	default:
		return false, fmt.Errorf("%w: comparison value %s", ErrUnsupported, c.Value.Kind())
	}
	got, err := e.value(m, c.Field)
	if err != nil {
		return false, err
	}
	want, err = normalize(want, c.Field.Type)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case ast.KindEQ:
		return scalar.Equal(got, want), nil
	case ast.KindNE:
		return !scalar.Equal(got, want), nil
	case ast.KindStartsWith, ast.KindContains:
		gs, ok1 := got.(string)
		ws, ok2 := want.(string)
		if !ok1 || !ok2 {
			return false, nil
		}
		if c.Op == ast.KindStartsWith {
			return strings.HasPrefix(gs, ws), nil
		}
		return strings.Contains(gs, ws), nil
	}

	if got == nil || want == nil {
		return false, nil
	}
	order, ok := scalar.Compare(got, want)
	if !ok {
		return false, fmt.Errorf("%w: %s on %s", ErrUnsupported, c.Op, c.Field.Type)
	}
	switch c.Op {
	case ast.KindGT:
		return order > 0, nil
	case ast.KindGTE:
		return order >= 0, nil
	case ast.KindLT:
		return order < 0, nil
	case ast.KindLTE:
		return order <= 0, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupported, c.Op)
}

// value reads field f of m in its comparable primitive form.
func (e *Evaluator) value(m model.Model, f *ast.Field) (any, error) {
	v, err := e.reg.Value(m, f.Name)
	if err != nil {
		return nil, err
	}
	return normalize(v, f.Type)
}

// normalize converts v to the primitive form of t. Enums compare by their
// underlying value.
func normalize(v any, t scalar.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t.Base() == scalar.Enum {
		if prim, _, err := scalar.Underlying(v); err == nil {
			return prim, nil
		}
		under, ok := scalar.TypeOf(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T", scalar.ErrConversion, v)
		}
		return scalar.Convert(v, under)
	}
	return scalar.Convert(v, t.Nullable())
}

// Sort orders models in place by sorts, then by key.
func (e *Evaluator) Sort(models []model.Model, sorts []*ast.Sort) error {
	type row struct {
		m    model.Model
		keys []any
	}
	rows := make([]row, len(models))
	for i, m := range models {
		rows[i].m = m
		for _, s := range sorts {
			v, err := e.value(m, s.Field)
			if err != nil {
				return err
			}
			rows[i].keys = append(rows[i].keys, v)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, s := range sorts {
			order, _ := scalar.Compare(rows[i].keys[k], rows[j].keys[k])
			if order == 0 {
				continue
			}
			if s.Descending {
				return order > 0
			}
			return order < 0
		}
		return model.KeyOf(rows[i].m) < model.KeyOf(rows[j].m)
	})
	for i := range rows {
		models[i] = rows[i].m
	}
	return nil
}
