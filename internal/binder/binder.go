// Package binder translates host query expressions into AST nodes.
//
// Sequence operators map to query nodes (Where to Predicate, OrderBy and
// ThenBy to OrderBy), persistence calls map to Save and Delete, and the
// traversal operators (Traverse, Out, In, WhereNode, WhereEdge, WhereRoot,
// Returns) map to the traversal nodes. Filter lambdas are rewritten into
// comparisons over dotted field paths resolved against the model registry.
package binder

import (
	"fmt"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

// Sequence operator names understood by the binder.
const (
	OpWhere             = "Where"
	OpOrderBy           = "OrderBy"
	OpOrderByDescending = "OrderByDescending"
	OpThenBy            = "ThenBy"
	OpThenByDescending  = "ThenByDescending"
	OpInsert            = "Insert"
	OpUpdate            = "Update"
	OpDelete            = "Delete"
	OpTraverse          = "Traverse"
	OpOut               = "Out"
	OpIn                = "In"
	OpWhereNode         = "WhereNode"
	OpWhereEdge         = "WhereEdge"
	OpWhereRoot         = "WhereRoot"
	OpReturns           = "Returns"
)

// Binder binds expressions against one registry.
type Binder struct {
	reg *model.Registry
}

// New returns a binder resolving types and fields through reg.
func New(reg *model.Registry) *Binder {
	return &Binder{reg: reg}
}

// Bind translates e into an AST. On error no partial tree is returned.
func (b *Binder) Bind(e expr.Expr) (ast.Node, error) {
	n, err := b.bind(e)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (b *Binder) bind(e expr.Expr) (ast.Node, error) {
	switch e := e.(type) {
	case *expr.Constant:
		root, ok := e.Value.(expr.QueryRoot)
		if !ok {
			return nil, bindErr("source", e, ErrNotSupported, "constant %T is not a query source", e.Value)
		}
		info, err := b.reg.Lookup(root.ModelType)
		if err != nil {
			return nil, bindErr("source", e, ErrUnresolvableMember, "%v", err)
		}
		return &ast.QueryRoot{ModelType: info.Name, IsLink: info.IsLink}, nil
	case *expr.Call:
		if e.Object != nil {
			return nil, bindErr(e.Method, e, ErrNotSupported, "method %s is not a query operator", e.Method)
		}
		return b.bindCall(e)
	default:
		return nil, bindErr("source", e, ErrNotSupported, "%T is not a query", e)
	}
}

func (b *Binder) bindCall(c *expr.Call) (ast.Node, error) {
	switch c.Method {
	case OpWhere:
		return b.bindWhere(c)
	case OpOrderBy, OpOrderByDescending, OpThenBy, OpThenByDescending:
		return b.bindOrder(c)
	case OpInsert, OpUpdate:
		return b.bindSave(c)
	case OpDelete:
		return b.bindDelete(c)
	case OpTraverse:
		return b.bindTraverse(c)
	case OpOut, OpIn:
		return b.bindHop(c)
	case OpWhereNode, OpWhereEdge, OpWhereRoot:
		return b.bindTraversalFilter(c)
	case OpReturns:
		return b.bindReturns(c)
	default:
		return nil, bindErr(c.Method, c, ErrNotSupported, "operator %s", c.Method)
	}
}

func arity(c *expr.Call, min, max int) error {
	if len(c.Args) < min || len(c.Args) > max {
		return bindErr(c.Method, c, ErrNotSupported, "%s takes %d to %d arguments, got %d", c.Method, min, max, len(c.Args))
	}
	return nil
}

// elementType returns the model type a query produces.
func elementType(n ast.Node) (string, bool) {
	switch n := n.(type) {
	case *ast.QueryRoot:
		return n.ModelType, true
	case *ast.Predicate:
		return elementType(n.Source)
	case *ast.OrderBy:
		return elementType(n.Source)
	case *ast.Page:
		return elementType(n.Source)
	}
	return "", false
}

func (b *Binder) bindWhere(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 2, 2); err != nil {
		return nil, err
	}
	src, err := b.bind(c.Args[0])
	if err != nil {
		return nil, err
	}
	typeName, ok := elementType(src)
	if !ok {
		return nil, bindErr(OpWhere, c, ErrNotSupported, "Where over %s", src.Kind())
	}
	filter, err := b.bindLambdaPredicate(OpWhere, c.Args[1], typeName)
	if err != nil {
		return nil, err
	}
	return mergeWhere(src, filter), nil
}

// mergeWhere folds consecutive filters into one Predicate and keeps
// filters beneath any ordering.
func mergeWhere(src ast.Node, filter ast.Node) ast.Node {
	switch s := src.(type) {
	case *ast.Predicate:
		return &ast.Predicate{Source: s.Source, Filter: ast.Conjoin(s.Filter, filter)}
	case *ast.OrderBy:
		return &ast.OrderBy{Source: mergeWhere(s.Source, filter), Sorts: s.Sorts}
	default:
		return &ast.Predicate{Source: src, Filter: filter}
	}
}

func (b *Binder) bindOrder(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 2, 2); err != nil {
		return nil, err
	}
	src, err := b.bind(c.Args[0])
	if err != nil {
		return nil, err
	}
	typeName, ok := elementType(src)
	if !ok {
		return nil, bindErr(c.Method, c, ErrNotSupported, "%s over %s", c.Method, src.Kind())
	}
	lambda, param, err := lambda1(c.Method, c.Args[1])
	if err != nil {
		return nil, err
	}
	field, _, err := b.resolveField(c.Method, lambda.Body, param, typeName)
	if err != nil {
		return nil, err
	}
	sort := &ast.Sort{
		Field:      field,
		Descending: c.Method == OpOrderByDescending || c.Method == OpThenByDescending,
	}

	existing, isOrdered := src.(*ast.OrderBy)
	switch c.Method {
	case OpThenBy, OpThenByDescending:
		if !isOrdered {
			return nil, bindErr(c.Method, c, ErrNotSupported, "%s requires a preceding OrderBy", c.Method)
		}
		sorts := append(append([]*ast.Sort(nil), existing.Sorts...), sort)
		return &ast.OrderBy{Source: existing.Source, Sorts: sorts}, nil
	default:
		if isOrdered {
			return &ast.OrderBy{Source: existing.Source, Sorts: []*ast.Sort{sort}}, nil
		}
		return &ast.OrderBy{Source: src, Sorts: []*ast.Sort{sort}}, nil
	}
}

func (b *Binder) bindSave(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 1, 2); err != nil {
		return nil, err
	}
	typeName, m, param, err := b.bindModelArg(c.Method, c.Args[0])
	if err != nil {
		return nil, err
	}
	save := &ast.Save{ModelType: typeName, Model: m, Param: param}
	if len(c.Args) == 2 {
		org, err := b.bindValue(c.Method, c.Args[1], scalar.String.Nullable(), nil)
		if err != nil {
			return nil, err
		}
		if s, ok := org.(*ast.Scalar); !ok || s.Value != nil {
			save.OrgUnit = org
		}
	}
	return save, nil
}

func (b *Binder) bindDelete(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 1, 1); err != nil {
		return nil, err
	}
	typeName, m, param, err := b.bindModelArg(c.Method, c.Args[0])
	if err != nil {
		return nil, err
	}
	return &ast.Delete{ModelType: typeName, Model: m, Param: param}, nil
}

func (b *Binder) bindModelArg(op string, e expr.Expr) (string, model.Model, *ast.Parameter, error) {
	switch e := e.(type) {
	case *expr.Constant:
		m, ok := e.Value.(model.Model)
		if !ok || m == nil {
			return "", nil, nil, bindErr(op, e, ErrTypeMismatch, "%T is not a model", e.Value)
		}
		name, err := b.reg.NameOf(m)
		if err != nil {
			return "", nil, nil, bindErr(op, e, ErrUnresolvableMember, "%v", err)
		}
		return name, m, nil, nil
	case *expr.Arg:
		if e.ModelType == "" {
			return "", nil, nil, bindErr(op, e, ErrTypeMismatch, "argument $%d is not a model", e.Index)
		}
		if _, err := b.reg.Lookup(e.ModelType); err != nil {
			return "", nil, nil, bindErr(op, e, ErrUnresolvableMember, "%v", err)
		}
		return e.ModelType, nil, &ast.Parameter{Index: int32(e.Index), Type: scalar.Null}, nil
	default:
		return "", nil, nil, bindErr(op, e, ErrNotSupported, "model argument must be a value")
	}
}

// bindValue binds the value side of a comparison: a literal, a captured
// value, or a parameter placeholder.
func (b *Binder) bindValue(op string, e expr.Expr, t scalar.Type, field *model.FieldInfo) (ast.Node, error) {
	switch v := e.(type) {
	case *expr.Arg:
		return &ast.Parameter{Index: int32(v.Index), Type: t}, nil
	default:
		if !expr.IsLocal(e) {
			return nil, bindErr(op, e, ErrNotSupported, "value is not a constant")
		}
		val, err := expr.EvaluateLocal(e)
		if err != nil {
			return nil, bindErr(op, e, ErrNotSupported, "%v", err)
		}
		cv, err := convertLiteral(val, t, field)
		if err != nil {
			return nil, bindErr(op, e, ErrTypeMismatch, "%v", err)
		}
		return &ast.Scalar{Type: t, Value: cv}, nil
	}
}

func lambda1(op string, e expr.Expr) (*expr.Lambda, *expr.Param, error) {
	l, ok := e.(*expr.Lambda)
	if !ok || len(l.Params) != 1 {
		return nil, nil, bindErr(op, e, ErrNotSupported, "expected a one-parameter lambda")
	}
	return l, l.Params[0], nil
}

func (b *Binder) lookupField(typeName, path string) (*model.FieldInfo, error) {
	f, err := b.reg.Field(typeName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvableMember, err)
	}
	return f, nil
}
