// Package engine implements the reactive variable environment: a
// store of named values linked by data-flow dependencies, so that
// changing one value recomputes everything depending on it, plus a
// transaction layer that stages batches of changes for preview,
// incremental application, or atomic commit.
//
// The three cooperating pieces are:
//
//   - the dependency graph (internal/graph), keeping the acyclic edge
//     set extracted from each variable's defining expression;
//   - the propagation pass (propagate.go), recomputing dependents in
//     dependency order under per-edge reaction gating;
//   - the transaction engine (txn.go), staging changes against a
//     snapshot with the craft/temper/inspect/anneal/quench/forge/smelt
//     lifecycle.
//
// Execution is single-threaded and cooperative: one command runs to
// completion, including its whole propagation cascade, before the
// next is accepted. An Env is never shared across concurrent callers.
package engine
