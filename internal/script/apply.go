package script

import (
	"fmt"

	"github.com/crucible-dev/crucible/internal/engine"
)

// ApplyReport summarizes a document application.
type ApplyReport struct {
	TxnID   string
	Applied []string
	Frozen  []string
}

// Apply stages every declared variable into one transaction and
// forges it, so a document lands atomically: a bad declaration leaves
// the environment untouched. Freezes run after the forge commits,
// since a frozen variable rejects the very mutation that sets it.
func Apply(e *engine.Env, doc *Document) (*ApplyReport, error) {
	txn, err := e.Craft("script")
	if err != nil {
		return nil, err
	}

	for _, spec := range doc.Vars {
		ch := engine.Change{
			Name:   spec.Name,
			Type:   spec.Type,
			Ensure: spec.Ensure,
		}
		if spec.Expr != "" {
			ch.Kind = engine.ChangeExpr
			ch.Expr = spec.Expr
			ch.Policy = spec.Policy
		} else {
			ch.Kind = engine.ChangeValue
			ch.Value = spec.Value
		}
		if _, err := e.Apply(ch); err != nil {
			smeltErr := e.Smelt()
			if smeltErr != nil {
				return nil, fmt.Errorf("staging %s: %w (abort also failed: %v)", spec.Name, err, smeltErr)
			}
			return nil, fmt.Errorf("staging %s: %w", spec.Name, err)
		}
	}

	rep, err := e.Forge()
	if err != nil {
		if smeltErr := e.Smelt(); smeltErr != nil {
			return nil, fmt.Errorf("applying document: %w (abort also failed: %v)", err, smeltErr)
		}
		return nil, fmt.Errorf("applying document: %w", err)
	}

	out := &ApplyReport{TxnID: txn.ID}
	for _, a := range rep.Applied {
		out.Applied = append(out.Applied, a.Name)
	}
	for _, spec := range doc.Vars {
		if spec.Frozen {
			if err := e.Freeze(spec.Name); err != nil {
				return out, fmt.Errorf("freezing %s: %w", spec.Name, err)
			}
			out.Frozen = append(out.Frozen, spec.Name)
		}
	}
	return out, nil
}
