package ast

import (
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

// Node is one AST node. The set of implementations is closed.
type Node interface {
	Kind() NodeKind

	// Extension returns the reserved trailing blob carried on the wire.
	Extension() []byte

	node()
}

// Header holds the extension blob shared by every node.
type Header struct {
	Ext []byte
}

func (h *Header) Extension() []byte { return h.Ext }

func (h *Header) header() *Header { return h }

// And is a boolean conjunction.
type And struct {
	Header
	Left, Right Node
}

// Or is a boolean disjunction.
type Or struct {
	Header
	Left, Right Node
}

// Not negates its operand.
type Not struct {
	Header
	Operand Node
}

// Comparison compares a field with a literal or parameter. Op is one of
// the comparison kinds.
type Comparison struct {
	Header
	Op    NodeKind
	Field *Field
	Value Node
}

// Scalar is a typed literal.
type Scalar struct {
	Header
	Type  scalar.Type
	Value any
}

// Field references a model field by dotted path.
type Field struct {
	Header
	Name string
	Type scalar.Type
}

// Sort orders results by one field.
type Sort struct {
	Header
	Field      *Field
	Descending bool
}

// Parameter is a placeholder for the argument at Index.
type Parameter struct {
	Header
	Index int32
	Type  scalar.Type
}

// QueryRoot names the collection a query reads.
type QueryRoot struct {
	Header
	ModelType string
	IsLink    bool
}

// Predicate filters Source by Filter. A nil Filter selects everything.
type Predicate struct {
	Header
	Source Node
	Filter Node
}

// OrderBy sorts Source. Sorts are applied in order.
type OrderBy struct {
	Header
	Source Node
	Sorts  []*Sort
}

// Page requests one page of Source. Token is the continuation returned by
// the previous page, empty for the first.
type Page struct {
	Header
	Source Node
	Size   int32
	Token  string
}

// Save inserts or updates Model. Param stands in for the model when the
// node was bound from a parameterized expression. OrgUnit, when set, is a
// Scalar or Parameter naming the owning org unit.
type Save struct {
	Header
	ModelType string
	Model     model.Model
	Param     *Parameter
	OrgUnit   Node
}

// Delete removes Model.
type Delete struct {
	Header
	ModelType string
	Model     model.Model
	Param     *Parameter
}

// TraverseOrigin starts a traversal at the model of RootType with Key.
type TraverseOrigin struct {
	Header
	RootType string
	Key      Node
}

// EdgeFilter walks one hop from Parent along edges of EdgeType to nodes of
// NodeType. Direction is KindOutEdgeFilter or KindInEdgeFilter.
type EdgeFilter struct {
	Header
	Direction NodeKind
	Parent    Node
	EdgeType  string
	NodeType  string
	Predicate Node
}

// NodeFilter filters the nodes reached by the last hop.
type NodeFilter struct {
	Header
	Parent    Node
	Predicate Node
}

// EdgeMemberFilter filters the edges walked by the last hop.
type EdgeMemberFilter struct {
	Header
	Parent    Node
	Predicate Node
}

// PathRootFilter filters the traversal root.
type PathRootFilter struct {
	Header
	Parent    Node
	Predicate Node
}

// Returns terminates a traversal. EdgeDepth and NodeDepth count how many
// edges and nodes of each path are materialized.
type Returns struct {
	Header
	Parent    Node
	EdgeDepth int32
	NodeDepth int32
	Terminal  Terminal
}

func (*And) Kind() NodeKind              { return KindAnd }
func (*Or) Kind() NodeKind               { return KindOr }
func (*Not) Kind() NodeKind              { return KindNot }
func (c *Comparison) Kind() NodeKind     { return c.Op }
func (*Scalar) Kind() NodeKind           { return KindScalar }
func (*Field) Kind() NodeKind            { return KindField }
func (*Sort) Kind() NodeKind             { return KindSort }
func (*Parameter) Kind() NodeKind        { return KindParameter }
func (*QueryRoot) Kind() NodeKind        { return KindQueryRoot }
func (*Predicate) Kind() NodeKind        { return KindPredicate }
func (*OrderBy) Kind() NodeKind          { return KindOrderBy }
func (*Page) Kind() NodeKind             { return KindPage }
func (*Save) Kind() NodeKind             { return KindSave }
func (*Delete) Kind() NodeKind           { return KindDelete }
func (*TraverseOrigin) Kind() NodeKind   { return KindTraverseOrigin }
func (e *EdgeFilter) Kind() NodeKind     { return e.Direction }
func (*NodeFilter) Kind() NodeKind       { return KindNodeFilter }
func (*EdgeMemberFilter) Kind() NodeKind { return KindEdgeMemberFilter }
func (*PathRootFilter) Kind() NodeKind   { return KindPathRootFilter }
func (*Returns) Kind() NodeKind          { return KindReturns }

func (*And) node()              {}
func (*Or) node()               {}
func (*Not) node()              {}
func (*Comparison) node()       {}
func (*Scalar) node()           {}
func (*Field) node()            {}
func (*Sort) node()             {}
func (*Parameter) node()        {}
func (*QueryRoot) node()        {}
func (*Predicate) node()        {}
func (*OrderBy) node()          {}
func (*Page) node()             {}
func (*Save) node()             {}
func (*Delete) node()           {}
func (*TraverseOrigin) node()   {}
func (*EdgeFilter) node()       {}
func (*NodeFilter) node()       {}
func (*EdgeMemberFilter) node() {}
func (*PathRootFilter) node()   {}
func (*Returns) node()          {}

// Constructors for the common shapes.

func NewAnd(left, right Node) *And { return &And{Left: left, Right: right} }

func NewOr(left, right Node) *Or { return &Or{Left: left, Right: right} }

func NewNot(operand Node) *Not { return &Not{Operand: operand} }

func NewField(name string, t scalar.Type) *Field { return &Field{Name: name, Type: t} }

func NewScalar(t scalar.Type, v any) *Scalar { return &Scalar{Type: t, Value: v} }

func NewComparison(op NodeKind, field *Field, value Node) *Comparison {
	return &Comparison{Op: op, Field: field, Value: value}
}

// Conjoin joins a and b with And, treating nil as true.
func Conjoin(a, b Node) Node {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return NewAnd(a, b)
	}
}
