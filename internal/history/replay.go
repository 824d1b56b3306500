package history

import (
	"context"
	"fmt"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/graph"
)

// ReplayInto rebuilds environment state from the journal.
//
// Direct and computed mutations re-apply in seq order; propagated
// mutations are skipped because re-applying their upstream changes
// regenerates them, and freeze events re-freeze the variable. The
// environment's clock is advanced past the last journaled seq so new
// mutations never collide with old rows.
//
// e should be constructed without a journal attached; call SetJournal
// after a successful replay to resume recording.
func (s *Store) ReplayInto(ctx context.Context, e *engine.Env) error {
	recs, err := s.ListMutations(ctx, 0)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		switch rec.Source {
		case engine.SourcePropagated:
			continue
		case engine.SourceFrozen:
			if err := e.Freeze(rec.Name); err != nil {
				return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
			}
		case engine.SourceDirect:
			if _, err := e.Set(rec.Name, rec.Value); err != nil {
				return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
			}
		case engine.SourceComputed:
			policy, err := graph.ParsePolicy(rec.Policy)
			if err != nil {
				return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
			}
			if _, err := e.Define(rec.Name, rec.Expr, policy); err != nil {
				return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
			}
		default:
			return fmt.Errorf("replay seq %d: unknown source %q", rec.Seq, rec.Source)
		}
	}

	last, err := s.LastSeq(ctx)
	if err != nil {
		return err
	}
	e.Clock().AdvanceTo(last)
	return nil
}
