package plancache

import (
	"reflect"

	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

// ParameterPolicy decides which parts of an expression become arguments.
type ParameterPolicy interface {
	// CanBeEvaluatedLocally reports whether e can be reduced to a constant
	// before binding.
	CanBeEvaluatedLocally(e expr.Expr) bool

	// CanBeParameter reports whether the constant becomes an argument.
	CanBeParameter(c *expr.Constant) bool
}

// ModelTyper is implemented by policies that can name the registered type
// of a model argument.
type ModelTyper interface {
	ModelType(m model.Model) (string, bool)
}

// DefaultPolicy parameterizes scalar values and model instances and
// evaluates member chains over captured values.
type DefaultPolicy struct {
	reg *model.Registry
}

// NewDefaultPolicy returns the default policy. reg names model arguments.
func NewDefaultPolicy(reg *model.Registry) *DefaultPolicy {
	return &DefaultPolicy{reg: reg}
}

func (p *DefaultPolicy) CanBeEvaluatedLocally(e expr.Expr) bool {
	_, isMember := e.(*expr.Member)
	return isMember && expr.IsLocal(e)
}

func (p *DefaultPolicy) CanBeParameter(c *expr.Constant) bool {
	switch v := c.Value.(type) {
	case nil, expr.QueryRoot, expr.TypeName:
		return false
	case model.Model:
		_, ok := p.ModelType(v)
		return ok
	default:
		_, ok := scalar.TypeOf(v)
		return ok
	}
}

func (p *DefaultPolicy) ModelType(m model.Model) (string, bool) {
	if p.reg == nil {
		return "", false
	}
	name, err := p.reg.NameOf(m)
	return name, err == nil
}

// Parameterize replaces the parameterizable constants of e with numbered
// placeholders and returns the rewritten expression with the extracted
// values in placeholder order. Query roots and type names stay in place.
// Member chains the policy can evaluate locally are reduced to constants
// first.
func Parameterize(e expr.Expr, policy ParameterPolicy) (expr.Expr, []any, error) {
	var args []any
	var failure error
	typer, _ := policy.(ModelTyper)

	placeholder := func(v any) *expr.Arg {
		arg := &expr.Arg{Index: len(args), Type: reflect.TypeOf(v)}
		if m, ok := v.(model.Model); ok && typer != nil {
			arg.ModelType, _ = typer.ModelType(m)
		}
		args = append(args, v)
		return arg
	}
	constant := func(c *expr.Constant) expr.Expr {
		if policy.CanBeParameter(c) {
			return placeholder(c.Value)
		}
		return c
	}

	out := expr.Rewrite(e, func(n expr.Expr) expr.Expr {
		if failure != nil {
			return n
		}
		switch n := n.(type) {
		case *expr.Constant:
			return constant(n)
		case *expr.Member:
			if !policy.CanBeEvaluatedLocally(n) {
				return nil
			}
			v, err := expr.EvaluateLocal(n)
			if err != nil {
				failure = err
				return n
			}
			return constant(expr.Const(v))
		}
		return nil
	})
	if failure != nil {
		return nil, nil, failure
	}
	return out, args, nil
}
