package query

import (
	"context"
	"fmt"

	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
)

// Traversal is an immutable graph walk from one root model.
type Traversal struct {
	p       *Provider
	e       expr.Expr
	hops    int
	returns bool
}

// Traverse starts a walk at the model of rootType with key.
func (p *Provider) Traverse(rootType, key string) *Traversal {
	return &Traversal{p: p, e: expr.Seq(binder.OpTraverse, expr.Type(rootType), expr.Const(key))}
}

func (t *Traversal) with(op string, args ...expr.Expr) *Traversal {
	next := *t
	next.e = expr.Seq(op, append([]expr.Expr{t.e}, args...)...)
	return &next
}

func (t *Traversal) hop(op, edgeType, nodeType string, filter []Predicate) *Traversal {
	args := []expr.Expr{expr.Type(edgeType), expr.Type(nodeType)}
	if len(filter) > 0 && filter[0] != nil {
		x := expr.P("x")
		args = append(args, expr.Fn(x, filter[0](x)))
	}
	next := t.with(op, args...)
	next.hops++
	return next
}

// Out follows outgoing edges of edgeType to nodes of nodeType. An optional
// predicate filters the nodes reached.
func (t *Traversal) Out(edgeType, nodeType string, filter ...Predicate) *Traversal {
	return t.hop(binder.OpOut, edgeType, nodeType, filter)
}

// In follows incoming edges of edgeType from nodes of nodeType.
func (t *Traversal) In(edgeType, nodeType string, filter ...Predicate) *Traversal {
	return t.hop(binder.OpIn, edgeType, nodeType, filter)
}

func (t *Traversal) filter(op string, fn Predicate) *Traversal {
	x := expr.P("x")
	return t.with(op, expr.Fn(x, fn(x)))
}

// WhereNode filters the nodes reached by the last hop.
func (t *Traversal) WhereNode(fn Predicate) *Traversal { return t.filter(binder.OpWhereNode, fn) }

// WhereEdge filters the edges walked by the last hop.
func (t *Traversal) WhereEdge(fn Predicate) *Traversal { return t.filter(binder.OpWhereEdge, fn) }

// WhereRoot filters the root model.
func (t *Traversal) WhereRoot(fn Predicate) *Traversal { return t.filter(binder.OpWhereRoot, fn) }

// Returns selects what each path carries, as a chain of Root, Edge and
// Model selectors: Returns("Edge", "Model") selects t.Edge().Model().
func (t *Traversal) Returns(selectors ...string) *Traversal {
	p := expr.P("t")
	var body expr.Expr = p
	for _, s := range selectors {
		body = expr.Method(body, s)
	}
	next := t.with(binder.OpReturns, expr.Fn(p, body))
	next.returns = true
	return next
}

// Expr returns the expression of the traversal.
func (t *Traversal) Expr() expr.Expr {
	if t.returns {
		return t.e
	}
	if t.hops == 0 {
		return t.Returns(binder.SelectRoot).e
	}
	return t.Returns(binder.SelectEdge, binder.SelectModel).e
}

// List runs the traversal. Without Returns, paths carry every edge and
// node walked.
func (t *Traversal) List(ctx context.Context) ([]*model.Path, error) {
	v, err := t.p.Execute(ctx, t.Expr())
	if err != nil {
		return nil, err
	}
	paths, ok := v.([]*model.Path)
	if !ok {
		return nil, fmt.Errorf("traversal returned %T", v)
	}
	return paths, nil
}
