package history

import (
	"context"
	"fmt"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/value"
)

// RecordMutation appends one mutation to the journal. Uses ON CONFLICT
// DO NOTHING for idempotency: re-journaling the same seq (a replayed
// deterministic run) is silently ignored, while other constraint
// violations still fail.
func (s *Store) RecordMutation(rec engine.MutationRecord) error {
	encoded, err := value.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("record mutation: %w", err)
	}
	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO mutations (seq, name, source, expr, policy, value, txn_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		rec.Seq,
		rec.Name,
		string(rec.Source),
		rec.Expr,
		rec.Policy,
		string(encoded),
		rec.TxnID,
	)
	if err != nil {
		return fmt.Errorf("record mutation: %w", err)
	}
	return nil
}

// RecordTransaction appends one transaction lifecycle event.
func (s *Store) RecordTransaction(rec engine.TransactionRecord) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO transactions (seq, id, label, verb)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		rec.Seq,
		rec.ID,
		rec.Label,
		rec.Verb,
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}
