package ast

import (
	"fmt"
	"reflect"

	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

func isNil(n Node) bool {
	if n == nil {
		return true
	}
	rv := reflect.ValueOf(n)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Children returns the direct children of n in wire order. Absent
// optional children are omitted.
func Children(n Node) []Node {
	var out []Node
	add := func(children ...Node) {
		for _, c := range children {
			if !isNil(c) {
				out = append(out, c)
			}
		}
	}
	switch n := n.(type) {
	case *And:
		add(n.Left, n.Right)
	case *Or:
		add(n.Left, n.Right)
	case *Not:
		add(n.Operand)
	case *Comparison:
		add(fieldNode(n.Field), n.Value)
	case *Sort:
		add(fieldNode(n.Field))
	case *Predicate:
		add(n.Source, n.Filter)
	case *OrderBy:
		add(n.Source)
		for _, s := range n.Sorts {
			add(s)
		}
	case *Page:
		add(n.Source)
	case *Save:
		if n.Param != nil {
			add(n.Param)
		}
		add(n.OrgUnit)
	case *Delete:
		if n.Param != nil {
			add(n.Param)
		}
	case *TraverseOrigin:
		add(n.Key)
	case *EdgeFilter:
		add(n.Parent, n.Predicate)
	case *NodeFilter:
		add(n.Parent, n.Predicate)
	case *EdgeMemberFilter:
		add(n.Parent, n.Predicate)
	case *PathRootFilter:
		add(n.Parent, n.Predicate)
	case *Returns:
		add(n.Parent)
	}
	return out
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the children of the visited node.
func Walk(n Node, fn func(Node) bool) {
	if isNil(n) || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Parameters returns every Parameter in n, including model parameters of
// Save and Delete, in pre-order.
func Parameters(n Node) []*Parameter {
	var out []*Parameter
	Walk(n, func(n Node) bool {
		if p, ok := n.(*Parameter); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Rewrite rebuilds n bottom-up, passing each rebuilt node to fn and using
// its result in place of the node. The input tree is not modified.
func Rewrite(n Node, fn func(Node) (Node, error)) (Node, error) {
	if isNil(n) {
		return nil, nil
	}
	rw := func(c Node) (Node, error) { return Rewrite(c, fn) }

	var out Node
	switch n := n.(type) {
	case *And:
		l, r, err := rewritePair(n.Left, n.Right, rw)
		if err != nil {
			return nil, err
		}
		out = &And{Header: n.Header, Left: l, Right: r}
	case *Or:
		l, r, err := rewritePair(n.Left, n.Right, rw)
		if err != nil {
			return nil, err
		}
		out = &Or{Header: n.Header, Left: l, Right: r}
	case *Not:
		op, err := rw(n.Operand)
		if err != nil {
			return nil, err
		}
		out = &Not{Header: n.Header, Operand: op}
	case *Comparison:
		f, v, err := rewritePair(fieldNode(n.Field), n.Value, rw)
		if err != nil {
			return nil, err
		}
		field, _ := f.(*Field)
		out = &Comparison{Header: n.Header, Op: n.Op, Field: field, Value: v}
	case *Scalar:
		cp := *n
		out = &cp
	case *Field:
		cp := *n
		out = &cp
	case *Parameter:
		cp := *n
		out = &cp
	case *QueryRoot:
		cp := *n
		out = &cp
	case *Sort:
		f, err := rw(fieldNode(n.Field))
		if err != nil {
			return nil, err
		}
		field, _ := f.(*Field)
		out = &Sort{Header: n.Header, Field: field, Descending: n.Descending}
	case *Predicate:
		src, filter, err := rewritePair(n.Source, n.Filter, rw)
		if err != nil {
			return nil, err
		}
		out = &Predicate{Header: n.Header, Source: src, Filter: filter}
	case *OrderBy:
		src, err := rw(n.Source)
		if err != nil {
			return nil, err
		}
		sorts := make([]*Sort, 0, len(n.Sorts))
		for _, s := range n.Sorts {
			rs, err := rw(s)
			if err != nil {
				return nil, err
			}
			sort, ok := rs.(*Sort)
			if !ok {
				return nil, fmt.Errorf("%w: sort rewritten to %T", ErrInvalid, rs)
			}
			sorts = append(sorts, sort)
		}
		out = &OrderBy{Header: n.Header, Source: src, Sorts: sorts}
	case *Page:
		src, err := rw(n.Source)
		if err != nil {
			return nil, err
		}
		out = &Page{Header: n.Header, Source: src, Size: n.Size, Token: n.Token}
	case *Save:
		org, err := rw(n.OrgUnit)
		if err != nil {
			return nil, err
		}
		out = &Save{Header: n.Header, ModelType: n.ModelType, Model: n.Model, Param: n.Param, OrgUnit: org}
	case *Delete:
		cp := *n
		out = &cp
	case *TraverseOrigin:
		key, err := rw(n.Key)
		if err != nil {
			return nil, err
		}
		out = &TraverseOrigin{Header: n.Header, RootType: n.RootType, Key: key}
	case *EdgeFilter:
		parent, pred, err := rewritePair(n.Parent, n.Predicate, rw)
		if err != nil {
			return nil, err
		}
		out = &EdgeFilter{Header: n.Header, Direction: n.Direction, Parent: parent, EdgeType: n.EdgeType, NodeType: n.NodeType, Predicate: pred}
	case *NodeFilter:
		parent, pred, err := rewritePair(n.Parent, n.Predicate, rw)
		if err != nil {
			return nil, err
		}
		out = &NodeFilter{Header: n.Header, Parent: parent, Predicate: pred}
	case *EdgeMemberFilter:
		parent, pred, err := rewritePair(n.Parent, n.Predicate, rw)
		if err != nil {
			return nil, err
		}
		out = &EdgeMemberFilter{Header: n.Header, Parent: parent, Predicate: pred}
	case *PathRootFilter:
		parent, pred, err := rewritePair(n.Parent, n.Predicate, rw)
		if err != nil {
			return nil, err
		}
		out = &PathRootFilter{Header: n.Header, Parent: parent, Predicate: pred}
	case *Returns:
		parent, err := rw(n.Parent)
		if err != nil {
			return nil, err
		}
		out = &Returns{Header: n.Header, Parent: parent, EdgeDepth: n.EdgeDepth, NodeDepth: n.NodeDepth, Terminal: n.Terminal}
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrInvalid, n)
	}
	return fn(out)
}

func rewritePair(a, b Node, rw func(Node) (Node, error)) (Node, Node, error) {
	ra, err := rw(a)
	if err != nil {
		return nil, nil, err
	}
	rb, err := rw(b)
	if err != nil {
		return nil, nil, err
	}
	return ra, rb, nil
}

// Substitute replaces every Parameter with a Scalar holding the matching
// argument converted to the parameter's type, and binds model parameters
// of Save and Delete.
func Substitute(n Node, args []any) (Node, error) {
	arg := func(p *Parameter) (any, error) {
		if p.Index < 0 || int(p.Index) >= len(args) {
			return nil, fmt.Errorf("%w: #%d of %d arguments", ErrUnboundParameter, p.Index, len(args))
		}
		return args[p.Index], nil
	}
	bindModel := func(p *Parameter) (model.Model, error) {
		v, err := arg(p)
		if err != nil {
			return nil, err
		}
		m, ok := v.(model.Model)
		if !ok {
			return nil, fmt.Errorf("%w: argument #%d is %T, not a model", ErrUnboundParameter, p.Index, v)
		}
		return m, nil
	}

	return Rewrite(n, func(n Node) (Node, error) {
		switch n := n.(type) {
		case *Parameter:
			v, err := arg(n)
			if err != nil {
				return nil, err
			}
			cv, err := scalar.Convert(v, n.Type)
			if err != nil {
				return nil, fmt.Errorf("parameter #%d: %w", n.Index, err)
			}
			return &Scalar{Header: n.Header, Type: n.Type, Value: cv}, nil
		case *Save:
			if n.Param == nil {
				return n, nil
			}
			m, err := bindModel(n.Param)
			if err != nil {
				return nil, err
			}
			n.Model, n.Param = m, nil
			return n, nil
		case *Delete:
			if n.Param == nil {
				return n, nil
			}
			m, err := bindModel(n.Param)
			if err != nil {
				return nil, err
			}
			n.Model, n.Param = m, nil
			return n, nil
		}
		return n, nil
	})
}

// Validate checks the structural shape of n and the persistence
// invariants of embedded models: a deleted model cannot be saved and a
// link cannot be saved or deleted while an endpoint is marked deleted.
func Validate(n Node) error {
	if isNil(n) {
		return fmt.Errorf("%w: nil node", ErrInvalid)
	}
	var err error
	Walk(n, func(n Node) bool {
		if err != nil {
			return false
		}
		err = validateNode(n)
		return err == nil
	})
	return err
}

func validateNode(n Node) error {
	required := func(what string, c Node) error {
		if isNil(c) {
			return fmt.Errorf("%w: %s requires %s", ErrInvalid, n.Kind(), what)
		}
		return nil
	}
	switch n := n.(type) {
	case *And:
		if err := required("a left operand", n.Left); err != nil {
			return err
		}
		return required("a right operand", n.Right)
	case *Or:
		if err := required("a left operand", n.Left); err != nil {
			return err
		}
		return required("a right operand", n.Right)
	case *Not:
		return required("an operand", n.Operand)
	case *Comparison:
		if !n.Op.IsComparison() {
			return fmt.Errorf("%w: %s is not a comparison", ErrInvalid, n.Op)
		}
		if n.Field == nil {
			return fmt.Errorf("%w: %s requires a field", ErrInvalid, n.Op)
		}
		if !isValueNode(n.Value) {
			return fmt.Errorf("%w: %s value must be Scalar or Parameter", ErrInvalid, n.Op)
		}
	case *Scalar:
		if !n.Type.Valid() {
			return fmt.Errorf("%w: scalar type %s", ErrInvalid, n.Type)
		}
		if n.Value == nil && !n.Type.IsNullable() {
			return fmt.Errorf("%w: nil literal for %s", ErrInvalid, n.Type)
		}
	case *Sort:
		if n.Field == nil {
			return fmt.Errorf("%w: Sort requires a field", ErrInvalid)
		}
	case *Predicate:
		return required("a source", n.Source)
	case *OrderBy:
		return required("a source", n.Source)
	case *Page:
		if n.Size <= 0 {
			return fmt.Errorf("%w: page size %d", ErrInvalid, n.Size)
		}
		return required("a source", n.Source)
	case *Save:
		if n.Model == nil {
			if n.Param != nil {
				return nil
			}
			return fmt.Errorf("%w: Save requires a model", ErrInvalid)
		}
		return model.CheckSavable(n.Model, false)
	case *Delete:
		if n.Model == nil {
			if n.Param != nil {
				return nil
			}
			return fmt.Errorf("%w: Delete requires a model", ErrInvalid)
		}
		return model.CheckSavable(n.Model, true)
	case *TraverseOrigin:
		if n.RootType == "" {
			return fmt.Errorf("%w: traversal root type is empty", ErrInvalid)
		}
		return required("a key", n.Key)
	case *EdgeFilter:
		if n.EdgeType == "" || n.NodeType == "" {
			return fmt.Errorf("%w: %s requires edge and node types", ErrInvalid, n.Direction)
		}
		return required("a parent", n.Parent)
	case *NodeFilter:
		return required("a parent", n.Parent)
	case *EdgeMemberFilter:
		return required("a parent", n.Parent)
	case *PathRootFilter:
		return required("a parent", n.Parent)
	case *Returns:
		if n.EdgeDepth < 0 || n.NodeDepth < 0 {
			return fmt.Errorf("%w: negative traversal depth", ErrInvalid)
		}
		return required("a parent", n.Parent)
	}
	return nil
}
