// Package harness runs YAML scenarios against a linkgraph engine.
//
// Each scenario compiles a CUE schema, opens a fresh in-memory store and
// drives it through a tracking repository and a query provider, the same
// path application code takes.
//
// # Scenario Format
//
//	name: friends
//	description: "Ada knows Bob"
//	schema: schema.cue        # relative to the scenario file
//	builder: remote           # generic (default) or remote
//	org_unit: Org/1
//	steps:
//	  - insert: Person
//	    as: ada
//	    fields: { Name: Ada, Age: 36 }
//	  - link: Knows
//	    as: k
//	    from: ada
//	    to: bob
//	  - save: true
//	  - update: ada
//	    fields: { Age: 37 }
//	  - delete: bob
//	  - query: Person
//	    where: [{ field: Age, op: gt, value: 30 }]
//	    order_by: [Name, -Age]
//	    expect: { keys: [ada] }
//	  - traverse: ada
//	    hops: [{ out: Knows, node: Person }]
//	    expect: { paths: ["Person/1 -Knows/3-> Person/2"] }
//	assertions:
//	  - type: count
//	    model: Person
//	    count: 1
//	  - type: field
//	    ref: ada
//	    field: Age
//	    value: 37
//
// insert, link, update and delete stage changes in the repository; save
// commits them. Refs name the model bound with as, or a literal key.
//
// # Assertion Types
//
//   - count: the number of stored models of a type
//   - exists / missing: whether a ref is stored
//   - field: a stored field value
//   - trace_contains: a trace line containing text
//
// # Deterministic Runs
//
// Keys are numbered Type/1, Type/2, ... in insertion order across types and
// the clock advances one second per reading, so traces compare against golden
// files byte for byte.
package harness
