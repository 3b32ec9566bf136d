// Package plan turns bound AST trees into executable plans.
//
// A plan is built once and invoked many times. Each invocation asks the
// executor factory for exactly one executor, substitutes the invocation
// arguments into the tree, and forwards the work to the executor. Two
// builders exist: the generic builder hands AST nodes to an in-process
// NodeExecutor, and the remote builder serializes them into commands for a
// RemoteExecutor and finishes queries locally.
package plan
