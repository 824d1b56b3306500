package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/crucible-dev/crucible/internal/expr"
	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/value"
)

// Source records how a variable last received its value.
type Source string

const (
	// SourceDirect marks an explicit literal assignment.
	SourceDirect Source = "direct"
	// SourceComputed marks evaluation of the variable's own expression.
	SourceComputed Source = "computed"
	// SourcePropagated marks a recomputation caused by an upstream change.
	SourcePropagated Source = "propagated"
	// SourceFrozen journals a freeze so replay can restore constancy.
	// It never appears on a Variable.
	SourceFrozen Source = "frozen"
)

// Variable is one named slot in the environment.
//
// If Expr is non-empty the variable is reactive and its value tracks
// the expression, except while a reaction gate is suppressing
// propagation, in which case the value is intentionally stale until
// the gate opens.
type Variable struct {
	Name  string
	Value value.Value

	// DeclaredType is set once at first typed declaration; empty means
	// untyped. Every later assignment is checked against it.
	DeclaredType value.TypeTag

	// Frozen marks the variable constant; further mutation fails.
	Frozen bool

	Source Source

	// Expr is the defining expression source, empty for pure literals.
	Expr string

	// Refs are the variables Expr reads, in first-appearance order.
	Refs []string

	// Policy is the declared reaction policy applied to the defining
	// edges. Counters on the live edges decay separately; Policy keeps
	// the initial declaration so snapshots can rebuild the graph.
	Policy graph.ReactionPolicy

	UpdatedSeq  int64
	UpdatedAt   time.Time
	UpdateCount int
}

func (v *Variable) clone() *Variable {
	c := *v
	c.Value = value.Clone(v.Value)
	c.Refs = append([]string(nil), v.Refs...)
	return &c
}

// ChangeKind discriminates a Change between a literal value and a
// defining expression.
type ChangeKind int

const (
	// ChangeValue assigns a literal value.
	ChangeValue ChangeKind = iota
	// ChangeExpr (re)defines the variable by an expression.
	ChangeExpr
)

// Change is one intended mutation: applied immediately against the
// live store, or staged into the active transaction.
type Change struct {
	Name string
	Kind ChangeKind

	// Value is the literal for ChangeValue.
	Value value.Value

	// Expr is the expression source for ChangeExpr.
	Expr string

	// Policy gates the defining edges created by a ChangeExpr.
	Policy graph.ReactionPolicy

	// Type optionally declares the variable's type on first assignment.
	Type value.TypeTag

	// Ensure makes the change a no-op when the variable already
	// matches: same value for ChangeValue, same definition for
	// ChangeExpr. Desired-state semantics for scripts.
	Ensure bool
}

// DefaultStepQuota bounds the number of recomputations a single
// propagation pass may perform.
const DefaultStepQuota = 1000

// Env is the reactive variable environment. One instance per session;
// the caller threads it through every operation. Not safe for
// concurrent use: callers needing shared access must serialize
// externally.
type Env struct {
	vars  map[string]*Variable
	order []string
	graph *graph.Graph

	clock   *Clock
	idgen   TxnIDGenerator
	quota   int
	journal Journal
	logger  *slog.Logger
	now     func() time.Time

	txn *Transaction
}

// Option configures an Env.
type Option func(*Env)

// WithClock replaces the mutation clock, used by replay to resume at a
// journaled position.
func WithClock(c *Clock) Option {
	return func(e *Env) { e.clock = c }
}

// WithIDGenerator replaces the transaction id generator.
func WithIDGenerator(g TxnIDGenerator) Option {
	return func(e *Env) { e.idgen = g }
}

// WithQuota sets the propagation step quota.
func WithQuota(n int) Option {
	return func(e *Env) { e.quota = n }
}

// WithJournal attaches a mutation journal. Journal failures are
// logged, never fatal.
func WithJournal(j Journal) Option {
	return func(e *Env) { e.journal = j }
}

// WithLogger replaces the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Env) { e.logger = l }
}

// WithNow replaces the wall clock, for deterministic inspect output in
// tests.
func WithNow(now func() time.Time) Option {
	return func(e *Env) { e.now = now }
}

// New creates an empty environment.
func New(opts ...Option) *Env {
	e := &Env{
		vars:   make(map[string]*Variable),
		graph:  graph.New(),
		clock:  NewClock(),
		idgen:  UUIDv7Generator{},
		quota:  DefaultStepQuota,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Set assigns a literal value, or stages it if a transaction is
// active. The report is nil when staged.
func (e *Env) Set(name string, v value.Value) (*PropagationReport, error) {
	return e.Apply(Change{Name: name, Kind: ChangeValue, Value: v})
}

// SetTyped assigns a literal and declares the variable's type.
func (e *Env) SetTyped(name string, tag value.TypeTag, v value.Value) (*PropagationReport, error) {
	return e.Apply(Change{Name: name, Kind: ChangeValue, Value: v, Type: tag})
}

// Define (re)defines a variable by an expression, with an optional
// reaction policy on the resulting dependency edges.
func (e *Env) Define(name, src string, policy graph.ReactionPolicy) (*PropagationReport, error) {
	return e.Apply(Change{Name: name, Kind: ChangeExpr, Expr: src, Policy: policy})
}

// Apply routes a change to the live store, or stages it into the
// active transaction. A nil report with nil error means staged.
func (e *Env) Apply(ch Change) (*PropagationReport, error) {
	name, err := value.NormalizeName(ch.Name)
	if err != nil {
		return nil, &CoreError{Code: ErrCodeInvalidName, Name: ch.Name, Message: err.Error(), Err: err}
	}
	ch.Name = name
	if e.txn != nil && e.txn.State == TxnActive {
		return nil, e.txn.stage(e, ch)
	}
	return e.applyLive(ch, "")
}

// applyLive mutates the store and runs propagation. ch.Name must
// already be normalized.
func (e *Env) applyLive(ch Change, txnID string) (*PropagationReport, error) {
	cur, exists := e.vars[ch.Name]

	if ch.Ensure && exists && satisfies(cur, ch) {
		return &PropagationReport{}, nil
	}
	if exists && cur.Frozen {
		return nil, coreErrf(ErrCodeConstantViolation, ch.Name, "variable is frozen")
	}

	declared := ch.Type
	if exists && cur.DeclaredType != "" {
		if ch.Type != "" && ch.Type != cur.DeclaredType {
			return nil, coreErrf(ErrCodeTypeMismatch, ch.Name,
				"declared as %s, cannot redeclare as %s", cur.DeclaredType, ch.Type)
		}
		declared = cur.DeclaredType
	}

	switch ch.Kind {
	case ChangeValue:
		if declared != "" {
			if err := value.Check(declared, ch.Value); err != nil {
				return nil, &CoreError{Code: ErrCodeTypeMismatch, Name: ch.Name, Message: err.Error(), Err: err}
			}
		}
		// A literal assignment clears the old defining edges but keeps
		// the node, so existing dependents still see the change.
		if err := e.graph.Register(ch.Name, nil, graph.ReactionPolicy{}); err != nil {
			return nil, err
		}
		v := e.ensureVar(ch.Name)
		v.Value = value.Clone(ch.Value)
		v.DeclaredType = declared
		v.Source = SourceDirect
		v.Expr, v.Refs, v.Policy = "", nil, graph.ReactionPolicy{}
		e.touch(v)
		e.recordMutation(v, txnID)
		return e.propagate(ch.Name)

	case ChangeExpr:
		refs, err := expr.ExtractReferences(ch.Expr)
		if err != nil {
			return nil, &CoreError{Code: ErrCodeEval, Name: ch.Name, Message: err.Error(), Err: err}
		}
		val, err := expr.EvalString(ch.Expr, e.Lookup())
		if err != nil {
			return nil, &CoreError{Code: ErrCodeEval, Name: ch.Name, Message: err.Error(), Err: err}
		}
		if declared != "" {
			if err := value.Check(declared, val); err != nil {
				return nil, &CoreError{Code: ErrCodeTypeMismatch, Name: ch.Name, Message: err.Error(), Err: err}
			}
		}
		if err := e.graph.Register(ch.Name, refs, ch.Policy); err != nil {
			return nil, &CoreError{Code: ErrCodeCycleDetected, Name: ch.Name, Message: err.Error(), Err: err}
		}
		v := e.ensureVar(ch.Name)
		v.Value = val
		v.DeclaredType = declared
		v.Source = SourceComputed
		v.Expr = ch.Expr
		v.Refs = refs
		v.Policy = ch.Policy
		e.touch(v)
		e.recordMutation(v, txnID)
		return e.propagate(ch.Name)

	default:
		return nil, coreErrf(ErrCodeEval, ch.Name, "unknown change kind %d", ch.Kind)
	}
}

// satisfies reports whether the variable already matches an ensure
// change, making it a no-op.
func satisfies(v *Variable, ch Change) bool {
	switch ch.Kind {
	case ChangeValue:
		return v.Expr == "" && value.Equal(v.Value, ch.Value)
	case ChangeExpr:
		return v.Expr == ch.Expr && v.Policy == ch.Policy
	}
	return false
}

// Freeze marks a variable constant. Subsequent mutation attempts fail
// with a constant violation.
func (e *Env) Freeze(name string) error {
	v, ok := e.vars[name]
	if !ok {
		return coreErrf(ErrCodeUnknownVariable, name, "undefined variable")
	}
	v.Frozen = true
	e.logger.Debug("variable frozen", "var", name)
	if e.journal == nil {
		return nil
	}
	rec := MutationRecord{Seq: e.clock.Next(), Name: name, Source: SourceFrozen, Value: v.Value}
	if t := e.ActiveTransaction(); t != nil {
		// Smelt reverts the flag, so the record is held back until the
		// transaction forges.
		t.deferred = append(t.deferred, rec)
		return nil
	}
	e.writeMutation(rec)
	return nil
}

// Get returns a copy of the variable, or an unknown-variable error.
func (e *Env) Get(name string) (*Variable, error) {
	v, ok := e.vars[name]
	if !ok {
		return nil, coreErrf(ErrCodeUnknownVariable, name, "undefined variable")
	}
	return v.clone(), nil
}

// Value returns the current value of name, if defined.
func (e *Env) Value(name string) (value.Value, bool) {
	v, ok := e.vars[name]
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// List returns copies of all variables in definition order.
func (e *Env) List() []*Variable {
	out := make([]*Variable, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.vars[name].clone())
	}
	return out
}

// Lookup adapts the store to the expression evaluator's read-only
// variable access.
func (e *Env) Lookup() expr.Lookup {
	return func(name string) (value.Value, bool) {
		v, ok := e.vars[name]
		if !ok {
			return nil, false
		}
		return v.Value, true
	}
}

// DependenciesOf returns the variables name directly reads.
func (e *Env) DependenciesOf(name string) []string {
	return e.graph.DependenciesOf(name)
}

// DependentsOf returns the topologically ordered transitive dependents
// of name.
func (e *Env) DependentsOf(name string) []string {
	return e.graph.DependentsOf(name)
}

// Clock exposes the mutation clock, so replay can resume the sequence
// where the journal left off.
func (e *Env) Clock() *Clock {
	return e.clock
}

// SetJournal attaches (or replaces) the mutation journal. Replay
// builds the environment without a journal, re-applies the log, then
// attaches the journal so new mutations are recorded.
func (e *Env) SetJournal(j Journal) {
	e.journal = j
}

// ActiveTransaction returns the active transaction, or nil.
func (e *Env) ActiveTransaction() *Transaction {
	if e.txn != nil && e.txn.State == TxnActive {
		return e.txn
	}
	return nil
}

// Snapshot is a point-in-time structural copy of the variable store,
// used for transaction rollback and external checkpointing. The graph
// topology is not captured; it is reconstructed deterministically from
// the stored expressions on restore.
type Snapshot struct {
	vars []*Variable
}

// Has reports whether name exists in the snapshot.
func (s *Snapshot) Has(name string) bool {
	for _, v := range s.vars {
		if v.Name == name {
			return true
		}
	}
	return false
}

// Len returns the number of captured variables.
func (s *Snapshot) Len() int {
	return len(s.vars)
}

func (s *Snapshot) put(v *Variable) {
	for i := range s.vars {
		if s.vars[i].Name == v.Name {
			s.vars[i] = v.clone()
			return
		}
	}
	s.vars = append(s.vars, v.clone())
}

// Snapshot captures the current store.
func (e *Env) Snapshot() *Snapshot {
	s := &Snapshot{vars: make([]*Variable, 0, len(e.order))}
	for _, name := range e.order {
		s.vars = append(s.vars, e.vars[name].clone())
	}
	return s
}

// Restore replaces the whole store from a snapshot. Fails while a
// transaction is active; transactions manage their own snapshots.
func (e *Env) Restore(s *Snapshot) error {
	if e.ActiveTransaction() != nil {
		return coreErrf(ErrCodeTxnState, "", "cannot restore while a transaction is active")
	}
	e.restoreStore(s)
	return nil
}

// restoreStore rebuilds vars, order and the graph from a snapshot.
// Variables absent from the snapshot vanish; reaction counters reset
// to their declared policies.
func (e *Env) restoreStore(s *Snapshot) {
	e.vars = make(map[string]*Variable, len(s.vars))
	e.order = e.order[:0]
	g := graph.New()
	for _, v := range s.vars {
		g.Ensure(v.Name)
	}
	for _, v := range s.vars {
		c := v.clone()
		e.vars[c.Name] = c
		e.order = append(e.order, c.Name)
		// Cannot cycle: the snapshot was taken from an acyclic store.
		_ = g.Register(c.Name, c.Refs, c.Policy)
	}
	e.graph = g
}

// DumpGraph renders the dependency graph in DOT form for external
// visualization. Frozen variables are filled gray; gated edges are
// labeled with their remaining policy.
func (e *Env) DumpGraph() string {
	var b strings.Builder
	b.WriteString("digraph deps {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, name := range e.order {
		v := e.vars[name]
		if v.Frozen {
			fmt.Fprintf(&b, "  %q [style=filled, fillcolor=lightgray];\n", name)
		} else {
			fmt.Fprintf(&b, "  %q;\n", name)
		}
	}
	for _, name := range e.order {
		deps := e.graph.DependenciesOf(name)
		sort.Strings(deps)
		for _, dep := range deps {
			p := e.graph.Policy(dep, name)
			if p != nil && p.Kind != graph.ReactNone {
				fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", dep, name, p.String())
			} else {
				fmt.Fprintf(&b, "  %q -> %q;\n", dep, name)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func (e *Env) ensureVar(name string) *Variable {
	v, ok := e.vars[name]
	if !ok {
		v = &Variable{Name: name}
		e.vars[name] = v
		e.order = append(e.order, name)
	}
	return v
}

func (e *Env) touch(v *Variable) {
	v.UpdateCount++
	v.UpdatedSeq = e.clock.Next()
	v.UpdatedAt = e.now()
}

func (e *Env) recordMutation(v *Variable, txnID string) {
	if e.journal == nil {
		return
	}
	rec := MutationRecord{
		Seq:    v.UpdatedSeq,
		Name:   v.Name,
		Source: v.Source,
		Expr:   v.Expr,
		Policy: v.Policy.String(),
		Value:  v.Value,
		TxnID:  txnID,
	}
	if t := e.ActiveTransaction(); t != nil && t.forging {
		// A forge that fails rolls the store back; its mutations must
		// not reach the journal until the whole batch lands.
		t.deferred = append(t.deferred, rec)
		return
	}
	e.writeMutation(rec)
}

func (e *Env) writeMutation(rec MutationRecord) {
	if err := e.journal.RecordMutation(rec); err != nil {
		e.logger.Warn("journal write failed", "var", rec.Name, "seq", rec.Seq, "err", err)
	}
}

// flushDeferred journals the records a transaction held back while it
// could still revert them.
func (e *Env) flushDeferred(t *Transaction) {
	if e.journal != nil {
		for _, rec := range t.deferred {
			e.writeMutation(rec)
		}
	}
	t.deferred = nil
}

func (e *Env) recordTxn(t *Transaction, verb string) {
	if e.journal == nil {
		return
	}
	rec := TransactionRecord{
		Seq:   e.clock.Next(),
		ID:    t.ID,
		Label: t.Label,
		Verb:  verb,
	}
	if err := e.journal.RecordTransaction(rec); err != nil {
		e.logger.Warn("journal write failed", "txn", t.ID, "verb", verb, "err", err)
	}
}
