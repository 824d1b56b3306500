package cli

import (
	"errors"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/expr"
	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/intent"
	"github.com/crucible-dev/crucible/internal/script"
)

// errorCode maps domain errors to the stable code reported in JSON
// envelopes and text error lines.
func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	if code := expr.CodeOf(err); code != "" {
		return string(code)
	}
	var ge *graph.GraphError
	if errors.As(err, &ge) {
		return ge.Code
	}
	var le *script.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var pe *intent.ParseError
	if errors.As(err, &pe) {
		return "PARSE_ERROR"
	}
	return "ERROR"
}
