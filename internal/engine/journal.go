package engine

import "github.com/crucible-dev/crucible/internal/value"

// Journal receives a record of every successful mutation and
// transaction verb. The environment treats journaling as best-effort:
// a write failure is logged and the mutation stands.
type Journal interface {
	RecordMutation(rec MutationRecord) error
	RecordTransaction(rec TransactionRecord) error
}

// MutationRecord describes one committed variable mutation.
type MutationRecord struct {
	// Seq is the logical clock stamp; strictly increasing.
	Seq int64

	// Name is the mutated variable.
	Name string

	// Source is the mutation provenance (direct, computed, propagated).
	Source Source

	// Expr is the defining expression source, empty for direct values.
	Expr string

	// Policy is the declared reaction policy in suffix notation
	// ("", "~+N", "~-N"), so replay can rebuild gated edges.
	Policy string

	// Value is the resulting materialized value.
	Value value.Value

	// TxnID links the mutation to a transaction, empty outside one.
	TxnID string
}

// TransactionRecord describes one transaction lifecycle event.
type TransactionRecord struct {
	Seq   int64
	ID    string
	Label string
	// Verb is the lifecycle verb: craft, anneal, quench, forge, smelt.
	Verb string
}
