package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/history"
	"github.com/crucible-dev/crucible/internal/intent"
	"github.com/crucible-dev/crucible/internal/value"
)

// Session binds an environment, its optional journal, and an output
// formatter. The REPL and the script runner share it.
type Session struct {
	Env   *engine.Env
	Store *history.Store
	Out   *OutputFormatter
}

// NewSession builds a session from the root options. With a journal
// configured, prior history is replayed so the environment resumes
// where it left off.
func NewSession(opts *RootOptions, w io.Writer, envOpts ...engine.Option) (*Session, error) {
	if opts.Quota > 0 {
		envOpts = append(envOpts, engine.WithQuota(opts.Quota))
	}
	env := engine.New(envOpts...)

	s := &Session{
		Env: env,
		Out: &OutputFormatter{Format: opts.Format, Writer: w, Verbose: opts.Verbose},
	}
	if opts.Journal != "" {
		store, err := history.Open(opts.Journal)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "opening journal", err)
		}
		if err := store.ReplayInto(context.Background(), env); err != nil {
			store.Close()
			return nil, WrapExitError(ExitCommandError, "replaying journal", err)
		}
		env.SetJournal(store)
		s.Store = store
	}
	return s, nil
}

// Close releases the journal, if any.
func (s *Session) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

// ExecuteLine parses and executes one input line. done is true after
// an exit command; blank lines and comments are no-ops.
func (s *Session) ExecuteLine(line string) (done bool, err error) {
	in, err := intent.Parse(line)
	if err != nil {
		return false, err
	}
	if in == nil {
		return false, nil
	}
	return s.Execute(in)
}

// Execute runs one parsed command against the environment.
func (s *Session) Execute(in *intent.Intent) (done bool, err error) {
	switch in.Verb {
	case intent.VerbSet, intent.VerbEnsure:
		return false, s.applyChange(in)
	case intent.VerbFreeze:
		if err := s.Env.Freeze(in.Name); err != nil {
			return false, err
		}
		return false, s.emit(fmt.Sprintf("froze %s", in.Name), map[string]any{"frozen": in.Name})
	case intent.VerbGet:
		return false, s.get(in.Name)
	case intent.VerbList:
		return false, s.list()
	case intent.VerbDeps:
		return false, s.deps(in.Name)
	case intent.VerbGraph:
		dot := s.Env.DumpGraph()
		return false, s.emit(strings.TrimRight(dot, "\n"), map[string]any{"dot": dot})
	case intent.VerbCraft:
		return false, s.craft(in.Label)
	case intent.VerbTemper:
		return false, s.temper()
	case intent.VerbInspect:
		return false, s.inspect()
	case intent.VerbAnneal:
		return false, s.anneal(in.N)
	case intent.VerbQuench:
		return false, s.quench()
	case intent.VerbForge:
		return false, s.forge()
	case intent.VerbSmelt:
		if err := s.Env.Smelt(); err != nil {
			return false, err
		}
		return false, s.emit("smelted, store restored", map[string]any{"smelted": true})
	case intent.VerbHistory:
		return false, s.history(in.N)
	case intent.VerbHelp:
		return false, s.emit(helpText, map[string]any{"help": helpText})
	case intent.VerbExit:
		return true, nil
	default:
		return false, fmt.Errorf("unhandled verb %q", in.Verb)
	}
}

func (s *Session) emit(text string, data any) error {
	if s.Out.Format == "json" {
		return s.Out.Success(data)
	}
	_, err := fmt.Fprintln(s.Out.Writer, text)
	return err
}

func (s *Session) applyChange(in *intent.Intent) error {
	rep, err := s.Env.Apply(*in.Change)
	if err != nil {
		return err
	}
	if rep == nil {
		txn := s.Env.ActiveTransaction()
		return s.emit(
			fmt.Sprintf("staged %s (%d pending)", in.Name, txn.Pending()),
			map[string]any{"staged": in.Name, "pending": txn.Pending()},
		)
	}

	v, err := s.Env.Get(in.Name)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %s", v.Name, value.Display(v.Value))
	appendReport(&b, rep)
	return s.emit(b.String(), map[string]any{
		"name":    v.Name,
		"value":   value.Display(v.Value),
		"updated": rep.Updated,
		"skipped": rep.Skipped,
		"failed":  failedNames(rep),
	})
}

func appendReport(b *strings.Builder, rep *engine.PropagationReport) {
	if len(rep.Updated) > 0 {
		fmt.Fprintf(b, "\n  ~ updated: %s", strings.Join(rep.Updated, ", "))
	}
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(b, "\n  ~ skipped: %s", strings.Join(rep.Skipped, ", "))
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(b, "\n  ~ failed: %s (%v)", f.Name, f.Err)
	}
}

func failedNames(rep *engine.PropagationReport) []string {
	out := make([]string, 0, len(rep.Failed))
	for _, f := range rep.Failed {
		out = append(out, f.Name)
	}
	return out
}

func (s *Session) get(name string) error {
	v, err := s.Env.Get(name)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s = %s", v.Name, value.Display(v.Value))
	if s.Out.Verbose {
		text += fmt.Sprintf("\n  source=%s updates=%d", v.Source, v.UpdateCount)
		if v.DeclaredType != "" {
			text += fmt.Sprintf(" type=%s", v.DeclaredType)
		}
		if v.Frozen {
			text += " frozen"
		}
		if v.Expr != "" {
			text += fmt.Sprintf("\n  expr: %s", v.Expr)
		}
	}
	return s.emit(text, map[string]any{
		"name":   v.Name,
		"value":  value.Display(v.Value),
		"source": string(v.Source),
		"expr":   v.Expr,
		"frozen": v.Frozen,
	})
}

func (s *Session) list() error {
	vars := s.Env.List()
	if len(vars) == 0 {
		return s.emit("(empty)", []any{})
	}
	lines := make([]string, len(vars))
	data := make([]map[string]any, len(vars))
	for i, v := range vars {
		lines[i] = fmt.Sprintf("%s = %s", v.Name, value.Display(v.Value))
		data[i] = map[string]any{"name": v.Name, "value": value.Display(v.Value)}
	}
	return s.emit(strings.Join(lines, "\n"), data)
}

func (s *Session) deps(name string) error {
	if _, err := s.Env.Get(name); err != nil {
		return err
	}
	reads := s.Env.DependenciesOf(name)
	readBy := s.Env.DependentsOf(name)
	text := fmt.Sprintf("%s <- %s\n%s -> %s",
		name, orNone(reads), name, orNone(readBy))
	return s.emit(text, map[string]any{"name": name, "reads": reads, "read_by": readBy})
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func (s *Session) craft(label string) error {
	txn, err := s.Env.Craft(label)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("crafted txn %s", txn.ID)
	if label != "" {
		text += fmt.Sprintf(" %q", label)
	}
	return s.emit(text, map[string]any{"id": txn.ID, "label": label})
}

func (s *Session) temper() error {
	previews, err := s.Env.Temper()
	if err != nil {
		return err
	}
	if len(previews) == 0 {
		return s.emit("(nothing pending)", []any{})
	}
	lines := make([]string, len(previews))
	data := make([]map[string]any, len(previews))
	for i, p := range previews {
		old := "<unset>"
		if p.Old != nil {
			old = value.Display(p.Old)
		}
		nw := ""
		switch {
		case p.Err != nil:
			nw = fmt.Sprintf("<error: %v>", p.Err)
		default:
			nw = value.Display(p.New)
		}
		lines[i] = fmt.Sprintf("%s: %s -> %s", p.Name, old, nw)
		data[i] = map[string]any{"name": p.Name, "old": old, "new": nw}
	}
	return s.emit(strings.Join(lines, "\n"), data)
}

func (s *Session) inspect() error {
	rep, err := s.Env.Inspect()
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "txn %s (%s)", rep.ID, rep.State)
	if rep.Label != "" {
		fmt.Fprintf(&b, "\nlabel:    %s", rep.Label)
	}
	fmt.Fprintf(&b, "\nelapsed:  %s", rep.Elapsed)
	fmt.Fprintf(&b, "\npending:  %d", rep.Pending)
	fmt.Fprintf(&b, "\nannealed: %d", rep.Annealed)
	if len(rep.Created) > 0 {
		fmt.Fprintf(&b, "\ncreated:  %s", strings.Join(rep.Created, ", "))
	}
	for _, d := range rep.Diffs {
		fmt.Fprintf(&b, "\n  %s: %s -> %s", d.Name, d.Old, d.New)
	}
	return s.emit(b.String(), rep)
}

func (s *Session) anneal(n int) error {
	rep, err := s.Env.Anneal(n)
	if rep == nil {
		return err
	}
	return s.renderAnneal(rep, err)
}

func (s *Session) quench() error {
	rep, err := s.Env.Quench()
	if rep == nil {
		return err
	}
	return s.renderAnneal(rep, err)
}

func (s *Session) renderAnneal(rep *engine.AnnealReport, applyErr error) error {
	var b strings.Builder
	for _, a := range rep.Applied {
		fmt.Fprintf(&b, "annealed %s", a.Name)
		appendReport(&b, a.Report)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d pending left", rep.Remaining)
	if emitErr := s.emit(b.String(), map[string]any{
		"applied":   appliedNames(rep.Applied),
		"remaining": rep.Remaining,
	}); emitErr != nil {
		return emitErr
	}
	return applyErr
}

func appliedNames(applied []engine.AppliedChange) []string {
	out := make([]string, 0, len(applied))
	for _, a := range applied {
		out = append(out, a.Name)
	}
	return out
}

func (s *Session) forge() error {
	rep, err := s.Env.Forge()
	if err != nil {
		return err
	}
	return s.emit(
		fmt.Sprintf("forged %d changes", len(rep.Applied)),
		map[string]any{"applied": appliedNames(rep.Applied)},
	)
}

func (s *Session) history(limit int) error {
	if s.Store == nil {
		return NewExitError(ExitCommandError, "history requires a journal (--journal or config)")
	}
	recs, err := s.Store.ListMutations(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return s.emit("(no history)", []any{})
	}
	lines := make([]string, len(recs))
	data := make([]map[string]any, len(recs))
	for i, rec := range recs {
		lines[i] = fmt.Sprintf("#%d %s %s = %s", rec.Seq, rec.Source, rec.Name, value.Display(rec.Value))
		if rec.Expr != "" {
			lines[i] += fmt.Sprintf("  (%s%s)", rec.Expr, rec.Policy)
		}
		data[i] = map[string]any{
			"seq":    rec.Seq,
			"source": string(rec.Source),
			"name":   rec.Name,
			"value":  value.Display(rec.Value),
			"expr":   rec.Expr,
		}
	}
	return s.emit(strings.Join(lines, "\n"), data)
}

const helpText = `commands:
  set NAME = EXPR [as TYPE] [~+N|~-N]   assign or define a variable
  ensure NAME = EXPR [as TYPE]          assign only if different
  freeze NAME                           make a variable constant
  get NAME | list | deps NAME | graph   inspect the store
  craft [LABEL]                         open a transaction
  temper | inspect                      preview the pending batch
  anneal [N] | quench                   apply pending changes incrementally
  forge | smelt                         commit atomically / abort
  history [N]                           show the mutation journal
  help | exit`
