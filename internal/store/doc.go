// Package store provides SQLite-backed storage for graph models.
//
// Every node and link is one row of the models table, keyed by its model
// key. The row carries the model type, the JSON document of the model and,
// for links, the keys of both endpoints so that deletes can cascade and
// traversals can walk edges without decoding documents.
//
// # Deterministic Results
//
// Every read orders by key ASC COLLATE BINARY, after any caller-supplied
// sort, so identical data always produces identical result order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// There are no foreign keys: Delete removes the links of a node in the same
// transaction as the node.
//
// The store knows nothing about model types; the engine decodes bodies
// through the model registry.
package store
