package ast

import "fmt"

// NodeKind discriminates AST nodes on the wire.
type NodeKind int32

const (
	KindNone NodeKind = 0

	KindAnd NodeKind = 1
	KindOr  NodeKind = 2
	KindNot NodeKind = 3

	KindEQ         NodeKind = 10
	KindNE         NodeKind = 11
	KindGT         NodeKind = 12
	KindGTE        NodeKind = 13
	KindLT         NodeKind = 14
	KindLTE        NodeKind = 15
	KindContains   NodeKind = 16
	KindStartsWith NodeKind = 17

	KindScalar    NodeKind = 20
	KindField     NodeKind = 21
	KindSort      NodeKind = 22
	KindParameter NodeKind = 23

	KindQueryRoot NodeKind = 30
	KindPredicate NodeKind = 31
	KindOrderBy   NodeKind = 32
	KindPage      NodeKind = 33

	KindSave   NodeKind = 40
	KindDelete NodeKind = 41

	KindTraverseOrigin   NodeKind = 50
	KindOutEdgeFilter    NodeKind = 51
	KindInEdgeFilter     NodeKind = 52
	KindNodeFilter       NodeKind = 53
	KindEdgeMemberFilter NodeKind = 54
	KindPathRootFilter   NodeKind = 55
	KindReturns          NodeKind = 56
)

var kindNames = map[NodeKind]string{
	KindNone:             "None",
	KindAnd:              "And",
	KindOr:               "Or",
	KindNot:              "Not",
	KindEQ:               "EQ",
	KindNE:               "NE",
	KindGT:               "GT",
	KindGTE:              "GTE",
	KindLT:               "LT",
	KindLTE:              "LTE",
	KindContains:         "Contains",
	KindStartsWith:       "StartsWith",
	KindScalar:           "Scalar",
	KindField:            "Field",
	KindSort:             "Sort",
	KindParameter:        "Parameter",
	KindQueryRoot:        "QueryRoot",
	KindPredicate:        "Predicate",
	KindOrderBy:          "OrderBy",
	KindPage:             "Page",
	KindSave:             "Save",
	KindDelete:           "Delete",
	KindTraverseOrigin:   "TraverseOrigin",
	KindOutEdgeFilter:    "OutEdgeFilter",
	KindInEdgeFilter:     "InEdgeFilter",
	KindNodeFilter:       "NodeFilter",
	KindEdgeMemberFilter: "EdgeMemberFilter",
	KindPathRootFilter:   "PathRootFilter",
	KindReturns:          "Returns",
}

func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", int32(k))
}

// IsComparison reports whether k is one of the comparison operators.
func (k NodeKind) IsComparison() bool {
	return k >= KindEQ && k <= KindStartsWith
}

// IsBoolean reports whether k is And, Or or Not.
func (k NodeKind) IsBoolean() bool {
	return k >= KindAnd && k <= KindNot
}

// Valid reports whether k names a concrete node kind.
func (k NodeKind) Valid() bool {
	_, ok := kindNames[k]
	return ok && k != KindNone
}

// Flip returns the comparison with its operands swapped: a < b becomes
// b > a. Equality and non-ordering operators are returned unchanged.
func (k NodeKind) Flip() NodeKind {
	switch k {
	case KindGT:
		return KindLT
	case KindGTE:
		return KindLTE
	case KindLT:
		return KindGT
	case KindLTE:
		return KindGTE
	default:
		return k
	}
}

// Terminal selects what a traversal materializes at its end.
type Terminal int32

const (
	TerminalModel Terminal = 0
	TerminalEdge  Terminal = 1
)

func (t Terminal) String() string {
	if t == TerminalEdge {
		return "edge"
	}
	return "model"
}
