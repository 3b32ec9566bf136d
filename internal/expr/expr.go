// Package expr is the host-side query expression tree. Application code
// (usually through the query package) builds these trees; the binder turns
// them into AST nodes and the plan cache parameterizes them.
//
// Sequence operators are static calls (Call with a nil Object) whose first
// argument is the source, e.g. Where(source, p => p.Age > 30). Methods on
// values, such as StartsWith, are calls with an Object.
package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Expr is one node of a host expression.
type Expr interface {
	exprNode()
}

// Constant is a literal or captured value.
type Constant struct {
	Value any
}

// QueryRoot is the constant value that marks a collection a query reads.
// Source is an opaque handle of the collection and does not take part in
// structural matching.
type QueryRoot struct {
	ModelType string
	IsLink    bool
	Source    any
}

// TypeName is the constant value naming a model type in a traversal. Type
// names belong to the shape of a query and are never parameterized.
type TypeName string

// Param is a lambda parameter.
type Param struct {
	Name string
}

// Arg is the placeholder left behind when a constant is parameterized.
type Arg struct {
	Index int
	Type  reflect.Type

	// ModelType is the registered type name when the argument is a model.
	ModelType string
}

// Member selects a field or property of X.
type Member struct {
	X    Expr
	Name string
}

// BinaryOp is a binary operator.
type BinaryOp int

const (
	Equal BinaryOp = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	AndAlso
	OrElse
)

var binaryText = [...]string{"==", "!=", ">", ">=", "<", "<=", "&&", "||"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryText) {
		return binaryText[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Binary applies Op to L and R.
type Binary struct {
	Op   BinaryOp
	L, R Expr
}

// UnaryOp is a unary operator.
type UnaryOp int

const (
	Not UnaryOp = iota
)

// Unary applies Op to X.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// Call invokes Method. A nil Object marks a sequence operator whose first
// argument is the source sequence.
type Call struct {
	Object Expr
	Method string
	Args   []Expr
}

// Lambda is an anonymous function.
type Lambda struct {
	Params []*Param
	Body   Expr
}

func (*Constant) exprNode() {}
func (*Param) exprNode()    {}
func (*Arg) exprNode()      {}
func (*Member) exprNode()   {}
func (*Binary) exprNode()   {}
func (*Unary) exprNode()    {}
func (*Call) exprNode()     {}
func (*Lambda) exprNode()   {}

// Const wraps a value.
func Const(v any) *Constant { return &Constant{Value: v} }

// Root returns the query-root constant of a collection.
func Root(modelType string, isLink bool, source any) *Constant {
	return &Constant{Value: QueryRoot{ModelType: modelType, IsLink: isLink, Source: source}}
}

// Type wraps a model type name.
func Type(name string) *Constant { return &Constant{Value: TypeName(name)} }

// P declares a lambda parameter.
func P(name string) *Param { return &Param{Name: name} }

// Prop selects a dotted member path from x.
func Prop(x Expr, path string) Expr {
	for _, name := range strings.Split(path, ".") {
		x = &Member{X: x, Name: name}
	}
	return x
}

func Eq(l, r Expr) *Binary  { return &Binary{Op: Equal, L: l, R: r} }
func Ne(l, r Expr) *Binary  { return &Binary{Op: NotEqual, L: l, R: r} }
func Gt(l, r Expr) *Binary  { return &Binary{Op: GreaterThan, L: l, R: r} }
func Ge(l, r Expr) *Binary  { return &Binary{Op: GreaterThanOrEqual, L: l, R: r} }
func Lt(l, r Expr) *Binary  { return &Binary{Op: LessThan, L: l, R: r} }
func Le(l, r Expr) *Binary  { return &Binary{Op: LessThanOrEqual, L: l, R: r} }
func And(l, r Expr) *Binary { return &Binary{Op: AndAlso, L: l, R: r} }
func Or(l, r Expr) *Binary  { return &Binary{Op: OrElse, L: l, R: r} }

// Negate builds !x.
func Negate(x Expr) *Unary { return &Unary{Op: Not, X: x} }

// Method calls name on obj.
func Method(obj Expr, name string, args ...Expr) *Call {
	return &Call{Object: obj, Method: name, Args: args}
}

// Seq calls the sequence operator name.
func Seq(name string, args ...Expr) *Call {
	return &Call{Method: name, Args: args}
}

// Fn builds a one-parameter lambda.
func Fn(p *Param, body Expr) *Lambda {
	return &Lambda{Params: []*Param{p}, Body: body}
}

// Children returns the direct sub-expressions of e.
func Children(e Expr) []Expr {
	switch e := e.(type) {
	case *Member:
		return []Expr{e.X}
	case *Binary:
		return []Expr{e.L, e.R}
	case *Unary:
		return []Expr{e.X}
	case *Call:
		out := make([]Expr, 0, len(e.Args)+1)
		if e.Object != nil {
			out = append(out, e.Object)
		}
		return append(out, e.Args...)
	case *Lambda:
		return []Expr{e.Body}
	}
	return nil
}

// Walk visits e in pre-order. Returning false skips children.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Rewrite rebuilds e top-down: fn is offered each node first, and when it
// returns a replacement the node's children are not visited. Returning nil
// keeps the node and descends into it.
func Rewrite(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	if r := fn(e); r != nil {
		return r
	}
	switch e := e.(type) {
	case *Member:
		return &Member{X: Rewrite(e.X, fn), Name: e.Name}
	case *Binary:
		return &Binary{Op: e.Op, L: Rewrite(e.L, fn), R: Rewrite(e.R, fn)}
	case *Unary:
		return &Unary{Op: e.Op, X: Rewrite(e.X, fn)}
	case *Call:
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = Rewrite(a, fn)
		}
		return &Call{Object: Rewrite(e.Object, fn), Method: e.Method, Args: args}
	case *Lambda:
		return &Lambda{Params: e.Params, Body: Rewrite(e.Body, fn)}
	}
	return e
}

// IsQueryRoot reports whether e is a query-root constant.
func IsQueryRoot(e Expr) bool {
	c, ok := e.(*Constant)
	if !ok {
		return false
	}
	_, ok = c.Value.(QueryRoot)
	return ok
}

// String renders e for logs and error messages.
func String(e Expr) string {
	var b strings.Builder
	write(&b, e)
	return b.String()
}

func write(b *strings.Builder, e Expr) {
	switch e := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Constant:
		if root, ok := e.Value.(QueryRoot); ok {
			b.WriteString(root.ModelType)
			return
		}
		if s, ok := e.Value.(string); ok {
			fmt.Fprintf(b, "%q", s)
			return
		}
		fmt.Fprintf(b, "%v", e.Value)
	case *Param:
		b.WriteString(e.Name)
	case *Arg:
		fmt.Fprintf(b, "$%d", e.Index)
	case *Member:
		write(b, e.X)
		b.WriteString(".")
		b.WriteString(e.Name)
	case *Binary:
		b.WriteString("(")
		write(b, e.L)
		fmt.Fprintf(b, " %s ", e.Op)
		write(b, e.R)
		b.WriteString(")")
	case *Unary:
		b.WriteString("!")
		write(b, e.X)
	case *Call:
		if e.Object != nil {
			write(b, e.Object)
			b.WriteString(".")
		}
		b.WriteString(e.Method)
		b.WriteString("(")
		for i, a := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			write(b, a)
		}
		b.WriteString(")")
	case *Lambda:
		for i, p := range e.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
		}
		b.WriteString(" => ")
		write(b, e.Body)
	}
}
