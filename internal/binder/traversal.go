package binder

import (
	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/scalar"
)

// Selector calls allowed in a Returns lambda.
const (
	SelectRoot  = "Root"
	SelectEdge  = "Edge"
	SelectModel = "Model"
)

// traversalScope describes the types in scope at a point of a traversal
// chain.
type traversalScope struct {
	root     string
	edgeType string
	nodeType string
	hops     int
}

// scopeOf walks from n back to its TraverseOrigin.
func scopeOf(n ast.Node) (traversalScope, bool) {
	var s traversalScope
	for {
		switch t := n.(type) {
		case *ast.TraverseOrigin:
			s.root = t.RootType
			if s.nodeType == "" {
				s.nodeType = t.RootType
			}
			return s, true
		case *ast.EdgeFilter:
			if s.hops == 0 {
				s.edgeType, s.nodeType = t.EdgeType, t.NodeType
			}
			s.hops++
			n = t.Parent
		case *ast.NodeFilter:
			n = t.Parent
		case *ast.EdgeMemberFilter:
			n = t.Parent
		case *ast.PathRootFilter:
			n = t.Parent
		default:
			return s, false
		}
	}
}

func (b *Binder) bindTraversalSource(c *expr.Call) (ast.Node, traversalScope, error) {
	src, err := b.bind(c.Args[0])
	if err != nil {
		return nil, traversalScope{}, err
	}
	scope, ok := scopeOf(src)
	if !ok {
		return nil, traversalScope{}, bindErr(c.Method, c, ErrInvalidTraversal, "%s must follow Traverse", c.Method)
	}
	return src, scope, nil
}

func (b *Binder) bindTraverse(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 2, 2); err != nil {
		return nil, err
	}
	var rootType string
	if k, ok := c.Args[0].(*expr.Constant); ok {
		switch v := k.Value.(type) {
		case expr.QueryRoot:
			rootType = v.ModelType
		case expr.TypeName:
			rootType = string(v)
		case string:
			rootType = v
		}
	}
	if rootType == "" {
		return nil, bindErr(OpTraverse, c, ErrNotSupported, "traversal root must name a model type")
	}
	info, err := b.reg.Lookup(rootType)
	if err != nil {
		return nil, bindErr(OpTraverse, c, ErrInvalidTraversal, "%v", err)
	}
	if info.IsLink {
		return nil, bindErr(OpTraverse, c, ErrInvalidTraversal, "traversal root %s is a link type", rootType)
	}
	key, err := b.bindValue(OpTraverse, c.Args[1], scalar.String, nil)
	if err != nil {
		return nil, err
	}
	return &ast.TraverseOrigin{RootType: info.Name, Key: key}, nil
}

func (b *Binder) bindHop(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 3, 4); err != nil {
		return nil, err
	}
	src, _, err := b.bindTraversalSource(c)
	if err != nil {
		return nil, err
	}
	edgeType, err := b.typeArg(c, c.Args[1], true)
	if err != nil {
		return nil, err
	}
	nodeType, err := b.typeArg(c, c.Args[2], false)
	if err != nil {
		return nil, err
	}
	direction := ast.KindOutEdgeFilter
	if c.Method == OpIn {
		direction = ast.KindInEdgeFilter
	}
	hop := &ast.EdgeFilter{Direction: direction, Parent: src, EdgeType: edgeType, NodeType: nodeType}
	if len(c.Args) == 4 {
		pred, err := b.bindLambdaPredicate(c.Method, c.Args[3], nodeType)
		if err != nil {
			return nil, err
		}
		hop.Predicate = pred
	}
	return hop, nil
}

// typeArg reads a constant type name and checks it is a link type when
// link is set and a node type otherwise.
func (b *Binder) typeArg(c *expr.Call, e expr.Expr, link bool) (string, error) {
	k, ok := e.(*expr.Constant)
	if !ok {
		return "", bindErr(c.Method, c, ErrNotSupported, "type argument must be a constant")
	}
	var name string
	switch v := k.Value.(type) {
	case expr.TypeName:
		name = string(v)
	case string:
		name = v
	case expr.QueryRoot:
		name = v.ModelType
	default:
		return "", bindErr(c.Method, c, ErrNotSupported, "type argument %T", k.Value)
	}
	info, err := b.reg.Lookup(name)
	if err != nil {
		return "", bindErr(c.Method, c, ErrInvalidTraversal, "%v", err)
	}
	if info.IsLink != link {
		want := "node"
		if link {
			want = "link"
		}
		return "", bindErr(c.Method, c, ErrInvalidTraversal, "%s is not a %s type", name, want)
	}
	return info.Name, nil
}

func (b *Binder) bindTraversalFilter(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 2, 2); err != nil {
		return nil, err
	}
	src, scope, err := b.bindTraversalSource(c)
	if err != nil {
		return nil, err
	}
	switch c.Method {
	case OpWhereRoot:
		pred, err := b.bindLambdaPredicate(c.Method, c.Args[1], scope.root)
		if err != nil {
			return nil, err
		}
		return &ast.PathRootFilter{Parent: src, Predicate: pred}, nil
	case OpWhereEdge:
		if scope.hops == 0 {
			return nil, bindErr(c.Method, c, ErrInvalidTraversal, "WhereEdge before any Out or In")
		}
		pred, err := b.bindLambdaPredicate(c.Method, c.Args[1], scope.edgeType)
		if err != nil {
			return nil, err
		}
		return &ast.EdgeMemberFilter{Parent: src, Predicate: pred}, nil
	default:
		pred, err := b.bindLambdaPredicate(c.Method, c.Args[1], scope.nodeType)
		if err != nil {
			return nil, err
		}
		return &ast.NodeFilter{Parent: src, Predicate: pred}, nil
	}
}

// bindReturns computes the materialization depth of a traversal. Walking
// back from the terminal selector: Root selects the origin alone; Edge
// adds the last hop's edge and Model the last hop's node, on top of one
// edge and one node for every earlier hop.
func (b *Binder) bindReturns(c *expr.Call) (ast.Node, error) {
	if err := arity(c, 2, 2); err != nil {
		return nil, err
	}
	src, scope, err := b.bindTraversalSource(c)
	if err != nil {
		return nil, err
	}
	lambda, param, err := lambda1(OpReturns, c.Args[1])
	if err != nil {
		return nil, err
	}

	var calls []string
	cur := lambda.Body
	for {
		call, ok := cur.(*expr.Call)
		if !ok {
			break
		}
		if len(call.Args) != 0 || call.Object == nil {
			return nil, bindErr(OpReturns, c, ErrNotSupported, "selector %s", call.Method)
		}
		calls = append(calls, call.Method)
		cur = call.Object
	}
	if p, ok := cur.(*expr.Param); !ok || (p != param && p.Name != param.Name) || len(calls) == 0 {
		return nil, bindErr(OpReturns, c, ErrNotSupported, "selector must be a call chain on %s", param.Name)
	}
	// calls is terminal-first; the terminal call decides the result kind.
	terminal := calls[0]
	var hasEdge, hasModel bool
	for i := len(calls) - 1; i >= 0; i-- {
		switch calls[i] {
		case SelectRoot:
			if len(calls) != 1 {
				return nil, bindErr(OpReturns, c, ErrNotSupported, "Root cannot be chained")
			}
			return &ast.Returns{Parent: src, Terminal: ast.TerminalModel}, nil
		case SelectEdge:
			if hasEdge || hasModel {
				return nil, bindErr(OpReturns, c, ErrNotSupported, "Edge must precede Model and appear once")
			}
			hasEdge = true
		case SelectModel:
			if hasModel {
				return nil, bindErr(OpReturns, c, ErrNotSupported, "Model appears twice")
			}
			hasModel = true
		default:
			return nil, bindErr(OpReturns, c, ErrNotSupported, "selector %s", calls[i])
		}
	}
	if scope.hops == 0 {
		return nil, bindErr(OpReturns, c, ErrInvalidTraversal, "%s selector without any Out or In", terminal)
	}

	edgeDepth := int32(scope.hops - 1)
	nodeDepth := int32(scope.hops - 1)
	if hasEdge {
		edgeDepth++
	}
	if hasModel {
		nodeDepth++
	}
	term := ast.TerminalModel
	if terminal == SelectEdge {
		term = ast.TerminalEdge
	}
	return &ast.Returns{Parent: src, EdgeDepth: edgeDepth, NodeDepth: nodeDepth, Terminal: term}, nil
}
