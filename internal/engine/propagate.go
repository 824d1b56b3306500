package engine

import (
	"github.com/crucible-dev/crucible/internal/expr"
	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/value"
)

// FailedUpdate pairs a dependent with the evaluation error that left
// it at its previous value.
type FailedUpdate struct {
	Name string
	Err  error
}

// PropagationReport summarizes one propagation pass: which dependents
// were recomputed, which were gated off by a reaction policy, and
// which failed to evaluate.
type PropagationReport struct {
	Updated []string
	Skipped []string
	Failed  []FailedUpdate
}

// Empty reports whether the pass touched nothing.
func (r *PropagationReport) Empty() bool {
	return len(r.Updated) == 0 && len(r.Skipped) == 0 && len(r.Failed) == 0
}

// Propagate re-runs the cascade for an already-changed variable, as if
// it had just been assigned. Regular assignments propagate on their
// own; this entry point exists for callers that mutate through
// Snapshot/Restore or want to re-drive gated edges.
func (e *Env) Propagate(changed string) (*PropagationReport, error) {
	name, err := value.NormalizeName(changed)
	if err != nil {
		return nil, &CoreError{Code: ErrCodeInvalidName, Name: changed, Message: err.Error(), Err: err}
	}
	if _, ok := e.vars[name]; !ok {
		return nil, coreErrf(ErrCodeUnknownVariable, name, "undefined variable")
	}
	return e.propagate(name)
}

// propagate recomputes every dependent affected by a change to
// changed, in dependency order.
//
// A dependent recomputes when at least one of its defining edges from
// a triggering upstream (the changed variable or a dependent already
// recomputed this pass) is open. Every triggering edge's gate advances
// independently: an open Limit edge spends one reaction even when a
// sibling edge already triggered the recompute, and a closed Delay
// edge spends one skip.
//
// Evaluation failure leaves the dependent at its previous value and
// blocks propagation through it, without stopping independent
// branches. A failed evaluation is not a reaction: Limit counters it
// spent are returned. Exceeding the step quota aborts the pass with
// QUOTA_EXCEEDED; recomputations already applied are kept and every
// unprocessed dependent is reported skipped.
func (e *Env) propagate(changed string) (*PropagationReport, error) {
	rep := &PropagationReport{}
	order := e.graph.DependentsOf(changed)
	if len(order) == 0 {
		return rep, nil
	}

	triggered := map[string]bool{changed: true}
	steps := 0
	for i, d := range order {
		v, ok := e.vars[d]
		if !ok || v.Expr == "" {
			continue
		}

		var gated, open bool
		var spent []*graph.ReactionPolicy
		for _, u := range v.Refs {
			if !triggered[u] {
				continue
			}
			p := e.graph.Policy(u, d)
			if p == nil {
				continue
			}
			gated = true
			switch p.Kind {
			case graph.ReactNone:
				open = true
			case graph.ReactLimit:
				if p.Remaining > 0 {
					p.Remaining--
					spent = append(spent, p)
					open = true
				}
			case graph.ReactDelay:
				if p.Remaining > 0 {
					p.Remaining--
				} else {
					open = true
				}
			}
		}
		refund := func() {
			for _, p := range spent {
				p.Remaining++
			}
		}
		if !gated {
			// No triggering upstream reached d this pass (everything it
			// reads was skipped or failed), so d keeps its value without
			// being counted as skipped.
			continue
		}
		if !open {
			rep.Skipped = append(rep.Skipped, d)
			e.logger.Debug("propagation gated", "var", d, "changed", changed)
			continue
		}

		steps++
		if steps > e.quota {
			refund()
			rep.Skipped = append(rep.Skipped, e.unprocessed(order[i:])...)
			return rep, coreErrf(ErrCodeQuotaExceeded, d, "propagation exceeded %d steps", e.quota)
		}

		nv, err := expr.EvalString(v.Expr, e.Lookup())
		if err != nil {
			refund()
			rep.Failed = append(rep.Failed, FailedUpdate{Name: d, Err: err})
			e.logger.Debug("propagation failed", "var", d, "changed", changed, "err", err)
			continue
		}
		if v.DeclaredType != "" {
			if err := value.Check(v.DeclaredType, nv); err != nil {
				refund()
				rep.Failed = append(rep.Failed, FailedUpdate{Name: d, Err: err})
				e.logger.Debug("propagation failed", "var", d, "changed", changed, "err", err)
				continue
			}
		}

		v.Value = nv
		v.Source = SourcePropagated
		e.touch(v)
		e.recordMutation(v, "")
		triggered[d] = true
		rep.Updated = append(rep.Updated, d)
		e.logger.Debug("propagated", "var", d, "changed", changed, "seq", v.UpdatedSeq)
	}
	return rep, nil
}

// unprocessed filters the tail of a propagation order down to the
// dependents that would have been considered, for reporting after a
// quota abort.
func (e *Env) unprocessed(rest []string) []string {
	var out []string
	for _, d := range rest {
		if v, ok := e.vars[d]; ok && v.Expr != "" {
			out = append(out, d)
		}
	}
	return out
}
