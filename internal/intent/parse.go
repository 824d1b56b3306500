// Package intent parses one line of shell input into a structured
// command. The grammar is verb-first:
//
//	set NAME = EXPR [as TYPE] [~+N | ~-N]
//	ensure NAME = EXPR [as TYPE] [~+N | ~-N]
//	freeze NAME | get NAME | deps NAME
//	list | graph | history [N]
//	craft [LABEL] | temper | inspect | anneal [N] | quench | forge | smelt
//	help | exit
//
// A right-hand side that references no variables is evaluated once
// and stored as a direct value; anything referencing variables
// becomes a reactive definition. The trailing ~+N / ~-N suffix
// attaches a limit or delay reaction policy to the definition's
// dependency edges.
package intent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/expr"
	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/value"
)

// Verb identifies the command.
type Verb string

const (
	VerbSet     Verb = "set"
	VerbEnsure  Verb = "ensure"
	VerbFreeze  Verb = "freeze"
	VerbGet     Verb = "get"
	VerbList    Verb = "list"
	VerbDeps    Verb = "deps"
	VerbGraph   Verb = "graph"
	VerbCraft   Verb = "craft"
	VerbTemper  Verb = "temper"
	VerbInspect Verb = "inspect"
	VerbAnneal  Verb = "anneal"
	VerbQuench  Verb = "quench"
	VerbForge   Verb = "forge"
	VerbSmelt   Verb = "smelt"
	VerbHistory Verb = "history"
	VerbHelp    Verb = "help"
	VerbExit    Verb = "exit"
)

// Intent is one parsed command.
type Intent struct {
	Verb Verb

	// Name is the target variable for freeze/get/deps.
	Name string

	// Label is the transaction label for craft.
	Label string

	// N is the count for anneal and the limit for history; 0 means the
	// command default.
	N int

	// Change carries the staged mutation for set and ensure.
	Change *engine.Change
}

// ParseError reports a malformed command line.
type ParseError struct {
	Line    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Line, e.Message)
}

func parseErrf(line, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// Parse turns one input line into an Intent. Empty lines and comment
// lines (leading #) return nil with no error.
func Parse(line string) (*Intent, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, nil
	}

	verb, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)

	switch Verb(strings.ToLower(verb)) {
	case VerbSet:
		return parseAssignment(trimmed, VerbSet, rest)
	case VerbEnsure:
		return parseAssignment(trimmed, VerbEnsure, rest)

	case VerbFreeze, VerbGet, VerbDeps:
		if rest == "" || strings.ContainsAny(rest, " \t") {
			return nil, parseErrf(trimmed, "%s takes exactly one variable name", verb)
		}
		return &Intent{Verb: Verb(strings.ToLower(verb)), Name: rest}, nil

	case VerbList, VerbGraph, VerbTemper, VerbInspect, VerbQuench, VerbForge, VerbSmelt, VerbHelp, VerbExit:
		if rest != "" {
			return nil, parseErrf(trimmed, "%s takes no arguments", verb)
		}
		return &Intent{Verb: Verb(strings.ToLower(verb))}, nil

	case VerbCraft:
		return &Intent{Verb: VerbCraft, Label: rest}, nil

	case VerbAnneal, VerbHistory:
		n := 0
		if rest != "" {
			parsed, err := strconv.Atoi(rest)
			if err != nil || parsed <= 0 {
				return nil, parseErrf(trimmed, "%s wants a positive count, got %q", verb, rest)
			}
			n = parsed
		}
		return &Intent{Verb: Verb(strings.ToLower(verb)), N: n}, nil

	default:
		return nil, parseErrf(trimmed, "unknown verb %q", verb)
	}
}

// parseAssignment handles `set NAME = RHS` and `ensure NAME = RHS`.
func parseAssignment(line string, verb Verb, rest string) (*Intent, error) {
	lhs, rhs, found := strings.Cut(rest, "=")
	if !found {
		return nil, parseErrf(line, "%s wants NAME = EXPR", verb)
	}
	name := strings.TrimSpace(lhs)
	if name == "" || strings.ContainsAny(name, " \t") {
		return nil, parseErrf(line, "bad variable name %q", name)
	}
	rhs = strings.TrimSpace(rhs)
	if rhs == "" {
		return nil, parseErrf(line, "missing right-hand side")
	}

	rhs, policy, err := stripPolicy(rhs)
	if err != nil {
		return nil, parseErrf(line, "%v", err)
	}
	rhs, tag := stripTypeHint(rhs)
	if rhs == "" {
		return nil, parseErrf(line, "missing right-hand side")
	}

	refs, err := expr.ExtractReferences(rhs)
	if err != nil {
		return nil, parseErrf(line, "%v", err)
	}

	ch := &engine.Change{Name: name, Type: tag, Ensure: verb == VerbEnsure}
	if len(refs) == 0 {
		// Constant right-hand side: evaluate once, store as a literal.
		v, err := expr.EvalString(rhs, func(string) (value.Value, bool) { return nil, false })
		if err != nil {
			return nil, parseErrf(line, "%v", err)
		}
		if policy.Kind != graph.ReactNone {
			return nil, parseErrf(line, "reaction policy needs a variable reference")
		}
		ch.Kind = engine.ChangeValue
		ch.Value = v
	} else {
		ch.Kind = engine.ChangeExpr
		ch.Expr = rhs
		ch.Policy = policy
	}
	return &Intent{Verb: verb, Name: name, Change: ch}, nil
}

// stripPolicy removes a trailing ~+N / ~-N suffix.
func stripPolicy(rhs string) (string, graph.ReactionPolicy, error) {
	i := strings.LastIndexByte(rhs, '~')
	if i < 0 {
		return rhs, graph.ReactionPolicy{}, nil
	}
	suffix := rhs[i:]
	// Only a well-formed suffix at the very end is a policy; a tilde
	// anywhere else belongs to the expression text.
	if strings.ContainsAny(suffix, " \t\"'") {
		return rhs, graph.ReactionPolicy{}, nil
	}
	policy, err := graph.ParsePolicy(suffix)
	if err != nil {
		return "", graph.ReactionPolicy{}, err
	}
	return strings.TrimSpace(rhs[:i]), policy, nil
}

// stripTypeHint removes a trailing `as TYPE` hint.
func stripTypeHint(rhs string) (string, value.TypeTag) {
	fields := strings.Fields(rhs)
	if len(fields) < 3 || fields[len(fields)-2] != "as" {
		return rhs, ""
	}
	tag, err := value.ParseTag(fields[len(fields)-1])
	if err != nil {
		return rhs, ""
	}
	return strings.Join(fields[:len(fields)-2], " "), tag
}
