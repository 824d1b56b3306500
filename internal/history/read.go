package history

import (
	"context"
	"fmt"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/value"
)

// ListMutations returns journaled mutations in seq order. limit <= 0
// means no limit.
func (s *Store) ListMutations(ctx context.Context, limit int) ([]engine.MutationRecord, error) {
	query := `
		SELECT seq, name, source, expr, policy, value, txn_id
		FROM mutations
		ORDER BY seq
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var out []engine.MutationRecord
	for rows.Next() {
		var rec engine.MutationRecord
		var source, encoded string
		if err := rows.Scan(&rec.Seq, &rec.Name, &source, &rec.Expr, &rec.Policy, &encoded, &rec.TxnID); err != nil {
			return nil, fmt.Errorf("list mutations: %w", err)
		}
		rec.Source = engine.Source(source)
		v, err := value.Unmarshal([]byte(encoded))
		if err != nil {
			return nil, fmt.Errorf("list mutations: seq %d: %w", rec.Seq, err)
		}
		rec.Value = v
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	return out, nil
}

// ListTransactions returns journaled transaction events in seq order.
func (s *Store) ListTransactions(ctx context.Context) ([]engine.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, label, verb
		FROM transactions
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []engine.TransactionRecord
	for rows.Next() {
		var rec engine.TransactionRecord
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.Label, &rec.Verb); err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}
