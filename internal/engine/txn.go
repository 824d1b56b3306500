package engine

import (
	"sort"
	"time"

	"github.com/crucible-dev/crucible/internal/expr"
	"github.com/crucible-dev/crucible/internal/value"
)

// TxnState is the transaction lifecycle state.
type TxnState string

const (
	// TxnActive accepts staging and lifecycle verbs.
	TxnActive TxnState = "active"
	// TxnCommitted is terminal; reached only by a fully successful forge.
	TxnCommitted TxnState = "committed"
	// TxnAborted is terminal; reached by smelt.
	TxnAborted TxnState = "aborted"
)

// Transaction stages a batch of changes against a snapshot of the
// store. At most one transaction is active per environment.
type Transaction struct {
	ID    string
	Label string
	State TxnState

	snapshot  *Snapshot
	pending   []Change
	created   map[string]bool
	craftedAt time.Time
	annealed  int

	// deferred holds journal records for effects the transaction can
	// still revert (forge mutations, freezes); flushed on forge, thrown
	// away on smelt.
	deferred []MutationRecord
	forging  bool
}

// Pending returns the number of staged changes.
func (t *Transaction) Pending() int { return len(t.pending) }

// Annealed returns how many changes have been applied incrementally.
func (t *Transaction) Annealed() int { return t.annealed }

// stage appends or coalesces a change. A later change to the same
// name replaces the earlier one in place, keeping its original
// position in the batch.
func (t *Transaction) stage(e *Env, ch Change) error {
	if v, ok := e.vars[ch.Name]; ok && v.Frozen {
		return coreErrf(ErrCodeConstantViolation, ch.Name, "variable is frozen")
	}
	if _, ok := e.vars[ch.Name]; !ok {
		t.created[ch.Name] = true
	}
	for i := range t.pending {
		if t.pending[i].Name == ch.Name {
			t.pending[i] = ch
			return nil
		}
	}
	t.pending = append(t.pending, ch)
	return nil
}

// writeThrough copies the current state of names into the craft-time
// snapshot, so a later smelt keeps annealed effects.
func (t *Transaction) writeThrough(e *Env, names ...string) {
	for _, name := range names {
		if v, ok := e.vars[name]; ok {
			t.snapshot.put(v)
		}
	}
}

// Craft opens a transaction. Fails with TXN_STATE while another is
// active; nested transactions are not supported.
func (e *Env) Craft(label string) (*Transaction, error) {
	if e.ActiveTransaction() != nil {
		return nil, coreErrf(ErrCodeTxnState, e.txn.ID, "a transaction is already active")
	}
	t := &Transaction{
		ID:        e.idgen.Generate(),
		Label:     label,
		State:     TxnActive,
		snapshot:  e.Snapshot(),
		created:   make(map[string]bool),
		craftedAt: e.now(),
	}
	e.txn = t
	e.recordTxn(t, "craft")
	e.logger.Info("transaction crafted", "txn", t.ID, "label", label)
	return t, nil
}

// Preview is one temper entry: the value a pending change would
// produce if applied now. Old is nil for variables that do not exist
// yet; Err is set when the would-be expression fails to evaluate.
type Preview struct {
	Name string
	Old  value.Value
	New  value.Value
	Err  error
}

// Temper previews every pending change without mutating the store.
// Each preview evaluates against the live store overlaid with the
// would-be values of earlier pending changes, matching the order a
// commit would apply them in.
func (e *Env) Temper() ([]Preview, error) {
	t := e.ActiveTransaction()
	if t == nil {
		return nil, coreErrf(ErrCodeTxnState, "", "no active transaction")
	}

	overlay := make(map[string]value.Value)
	lookup := func(name string) (value.Value, bool) {
		if v, ok := overlay[name]; ok {
			return v, true
		}
		return e.Lookup()(name)
	}

	previews := make([]Preview, 0, len(t.pending))
	for _, ch := range t.pending {
		p := Preview{Name: ch.Name}
		if v, ok := e.vars[ch.Name]; ok {
			p.Old = v.Value
		} else if v, ok := overlay[ch.Name]; ok {
			p.Old = v
		}
		switch ch.Kind {
		case ChangeValue:
			p.New = ch.Value
		case ChangeExpr:
			nv, err := expr.EvalString(ch.Expr, lookup)
			if err != nil {
				p.Err = err
			} else {
				p.New = nv
			}
		}
		if p.Err == nil {
			overlay[ch.Name] = p.New
		}
		previews = append(previews, p)
	}
	return previews, nil
}

// DiffEntry is one line of an inspect summary, values rendered for
// display. Old is "<unset>" for variables the transaction creates.
type DiffEntry struct {
	Name string
	Old  string
	New  string
}

// InspectReport is a read-only view of the active transaction.
type InspectReport struct {
	ID       string
	Label    string
	State    TxnState
	Elapsed  time.Duration
	Pending  int
	Annealed int
	Created  []string
	Diffs    []DiffEntry
}

// Inspect summarizes the active transaction without changing state.
func (e *Env) Inspect() (*InspectReport, error) {
	t := e.ActiveTransaction()
	if t == nil {
		return nil, coreErrf(ErrCodeTxnState, "", "no active transaction")
	}
	previews, err := e.Temper()
	if err != nil {
		return nil, err
	}

	rep := &InspectReport{
		ID:       t.ID,
		Label:    t.Label,
		State:    t.State,
		Elapsed:  e.now().Sub(t.craftedAt),
		Pending:  len(t.pending),
		Annealed: t.annealed,
	}
	for name := range t.created {
		rep.Created = append(rep.Created, name)
	}
	sort.Strings(rep.Created)

	for _, p := range previews {
		d := DiffEntry{Name: p.Name, Old: "<unset>", New: ""}
		if p.Old != nil {
			d.Old = value.Display(p.Old)
		}
		switch {
		case p.Err != nil:
			d.New = "<error: " + p.Err.Error() + ">"
		default:
			d.New = value.Display(p.New)
		}
		rep.Diffs = append(rep.Diffs, d)
	}
	return rep, nil
}

// AppliedChange pairs an applied pending change with the propagation
// it triggered.
type AppliedChange struct {
	Name   string
	Report *PropagationReport
}

// FailedChange identifies the pending change that stopped an anneal or
// forge.
type FailedChange struct {
	Name string
	Err  error
}

// AnnealReport summarizes an incremental application step.
type AnnealReport struct {
	Applied   []AppliedChange
	Failed    *FailedChange
	Remaining int
}

// Anneal applies the next n pending changes (default 1) directly to
// the live store, propagating after each. On failure it stops: the
// failing change stays at the front of the batch, already-applied
// changes are NOT rolled back, and the transaction remains active.
// Each success is written through to the craft snapshot so a later
// smelt keeps it.
func (e *Env) Anneal(n int) (*AnnealReport, error) {
	if n <= 0 {
		n = 1
	}
	return e.annealN(n, "anneal")
}

// Quench applies all remaining pending changes, equivalent to
// repeated Anneal(1) until the batch is empty or a change fails.
func (e *Env) Quench() (*AnnealReport, error) {
	t := e.ActiveTransaction()
	if t == nil {
		return nil, coreErrf(ErrCodeTxnState, "", "no active transaction")
	}
	return e.annealN(len(t.pending), "quench")
}

func (e *Env) annealN(n int, verb string) (*AnnealReport, error) {
	t := e.ActiveTransaction()
	if t == nil {
		return nil, coreErrf(ErrCodeTxnState, "", "no active transaction")
	}

	rep := &AnnealReport{}
	var failure error
	for i := 0; i < n && len(t.pending) > 0; i++ {
		ch := t.pending[0]
		prep, err := e.applyLive(ch, t.ID)
		if err != nil {
			rep.Failed = &FailedChange{Name: ch.Name, Err: err}
			failure = err
			break
		}
		t.pending = t.pending[1:]
		t.annealed++
		names := append([]string{ch.Name}, prep.Updated...)
		t.writeThrough(e, names...)
		delete(t.created, ch.Name)
		rep.Applied = append(rep.Applied, AppliedChange{Name: ch.Name, Report: prep})
	}
	rep.Remaining = len(t.pending)
	e.recordTxn(t, verb)
	e.logger.Info("transaction annealed", "txn", t.ID, "verb", verb,
		"applied", len(rep.Applied), "remaining", rep.Remaining)
	return rep, failure
}

// ForgeReport summarizes an atomic commit attempt.
type ForgeReport struct {
	Applied    []AppliedChange
	Failed     *FailedChange
	RolledBack bool
}

// Forge applies all remaining pending changes as one atomic unit:
// direct value assignments first in staging order, then expression
// definitions in dependency order, so each new expression sees only
// values already finalized for the batch.
//
// If any step fails the store is restored to its state at forge
// invocation, variables created during the forge are removed, and the
// transaction stays active with its batch intact. Changes applied by
// earlier anneal or quench calls are outside the rollback. On full
// success the transaction is committed.
func (e *Env) Forge() (*ForgeReport, error) {
	t := e.ActiveTransaction()
	if t == nil {
		return nil, coreErrf(ErrCodeTxnState, "", "no active transaction")
	}

	preForge := e.Snapshot()
	plan := forgePlan(t.pending)
	mark := len(t.deferred)
	t.forging = true

	rep := &ForgeReport{}
	for _, ch := range plan {
		prep, err := e.applyLive(ch, t.ID)
		if err != nil {
			t.forging = false
			// Journal records buffered during this attempt describe
			// mutations the rollback is about to undo.
			t.deferred = t.deferred[:mark]
			e.restoreStore(preForge)
			rep.Applied = nil
			rep.Failed = &FailedChange{Name: ch.Name, Err: err}
			rep.RolledBack = true
			e.logger.Info("forge rolled back", "txn", t.ID, "failed", ch.Name, "err", err)
			return rep, err
		}
		rep.Applied = append(rep.Applied, AppliedChange{Name: ch.Name, Report: prep})
	}

	t.forging = false
	e.flushDeferred(t)
	t.pending = nil
	t.State = TxnCommitted
	e.txn = nil
	e.recordTxn(t, "forge")
	e.logger.Info("transaction forged", "txn", t.ID, "applied", len(rep.Applied))
	return rep, nil
}

// Smelt aborts the active transaction: pending changes are discarded,
// the store reverts to the craft-time snapshot (as amended by
// write-throughs from anneal), and variables created only inside the
// transaction are removed.
func (e *Env) Smelt() error {
	t := e.ActiveTransaction()
	if t == nil {
		return coreErrf(ErrCodeTxnState, "", "no active transaction")
	}
	e.restoreStore(t.snapshot)
	t.pending = nil
	t.deferred = nil
	t.State = TxnAborted
	e.txn = nil
	e.recordTxn(t, "smelt")
	e.logger.Info("transaction smelted", "txn", t.ID)
	return nil
}

// forgePlan orders a batch for atomic application: direct values in
// staging order, then expressions topologically sorted by their
// references to other staged names, ties broken by staging order. A
// reference cycle among staged expressions leaves the stragglers in
// staging order; applying them surfaces the cycle error, which rolls
// the forge back.
func forgePlan(pending []Change) []Change {
	var directs, exprs []Change
	for _, ch := range pending {
		if ch.Kind == ChangeExpr {
			exprs = append(exprs, ch)
		} else {
			directs = append(directs, ch)
		}
	}
	if len(exprs) <= 1 {
		return append(directs, exprs...)
	}

	idx := make(map[string]int, len(exprs))
	for i, ch := range exprs {
		idx[ch.Name] = i
	}
	adj := make([][]int, len(exprs))
	indeg := make([]int, len(exprs))
	for j, ch := range exprs {
		refs, err := expr.ExtractReferences(ch.Expr)
		if err != nil {
			continue
		}
		for _, r := range refs {
			if i, ok := idx[r]; ok && i != j {
				adj[i] = append(adj[i], j)
				indeg[j]++
			}
		}
	}

	var ready []int
	for i := range exprs {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	plan := directs
	done := make([]bool, len(exprs))
	for len(ready) > 0 {
		sort.Ints(ready)
		cur := ready[0]
		ready = ready[1:]
		done[cur] = true
		plan = append(plan, exprs[cur])
		for _, next := range adj[cur] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	for i := range exprs {
		if !done[i] {
			plan = append(plan, exprs[i])
		}
	}
	return plan
}
