// Package engine executes query ASTs against a SQLite model store.
//
// The engine is the server side of the query pipeline. It implements
// plan.NodeExecutor directly, and plan.RemoteExecutor through Remote,
// which parses the textual AST commands a remote plan sends.
//
// ARCHITECTURE:
//
// Queries compile to SQL through querysql. Filters and sorts that SQL
// cannot express exactly run in memory through eval over every model of
// the queried type.
//
// Saves assign server keys to provisional models, stamp Created and
// Modified, and reject links whose endpoints are missing or still
// provisional. Deletes cascade to the links of a deleted node.
//
// Traversals walk edges breadth first from the origin, one hop per edge
// filter, and stop with a VisitLimitError when a traversal expands more
// walks than the configured budget.
//
// Every read orders by key, after any requested sort, so results are
// deterministic.
package engine
