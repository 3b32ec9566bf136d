// Package model defines the graph object model: nodes (models), edges
// (links), traversal paths, and the registry that maps stable type names to
// Go types.
//
// Concrete model types are Go structs that embed Entity (nodes) or Link
// (edges) and are used through pointers. Types defined at runtime from a
// schema use Document and DocumentLink.
//
// Keys have the form "<TypeName>/<localKey>". A model created on the client
// carries a provisional key "<TypeName>/~<uuid>" until the server assigns
// its canonical key.
package model
