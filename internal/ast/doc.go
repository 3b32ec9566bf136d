// Package ast defines the serializable expression tree that queries,
// traversals and save/delete intents are bound into, and its binary wire
// codec.
//
// The node set is closed: Node is sealed by an unexported marker method and
// every consumer dispatches with an exhaustive type switch. Nodes are
// immutable once built; rewriting (see Rewrite and Substitute) produces
// new nodes.
//
// Wire format, all integers little-endian:
//
//	Node     := NodeKind:int32 Payload ExtLen:int32 ExtBytes[ExtLen]
//	ChildRef := NodeKind:int32 ChildLen:int32 ChildBytes[ChildLen]
//
// ChildBytes holds a complete Node whose kind must match the ChildRef's.
// An absent optional child is written as KindNone with length zero.
// Format renders the encoded bytes as standard base64.
package ast
