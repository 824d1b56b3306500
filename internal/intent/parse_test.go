package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/value"
)

func TestParseBlankAndComment(t *testing.T) {
	for _, line := range []string{"", "   ", "# a comment", "  # indented"} {
		in, err := Parse(line)
		require.NoError(t, err)
		assert.Nil(t, in)
	}
}

func TestParseSetLiteral(t *testing.T) {
	in, err := Parse("set count = 5")
	require.NoError(t, err)
	assert.Equal(t, VerbSet, in.Verb)
	require.NotNil(t, in.Change)
	assert.Equal(t, engine.ChangeValue, in.Change.Kind)
	assert.Equal(t, value.Int(5), in.Change.Value)
	assert.False(t, in.Change.Ensure)
}

func TestParseSetConstantExpression(t *testing.T) {
	// No variable references, so the expression folds to a literal.
	in, err := Parse(`set greeting = "hello" + " " + "world"`)
	require.NoError(t, err)
	assert.Equal(t, engine.ChangeValue, in.Change.Kind)
	assert.Equal(t, value.Str("hello world"), in.Change.Value)
}

func TestParseSetExpression(t *testing.T) {
	in, err := Parse("set total = price * qty")
	require.NoError(t, err)
	assert.Equal(t, engine.ChangeExpr, in.Change.Kind)
	assert.Equal(t, "price * qty", in.Change.Expr)
	assert.Equal(t, graph.ReactionPolicy{}, in.Change.Policy)
}

func TestParseTypeHint(t *testing.T) {
	in, err := Parse("set count = 5 as int")
	require.NoError(t, err)
	assert.Equal(t, value.TagInt, in.Change.Type)
	assert.Equal(t, value.Int(5), in.Change.Value)

	// The colon spelling works too.
	in, err = Parse("set rate = 1.5 as :float")
	require.NoError(t, err)
	assert.Equal(t, value.TagFloat, in.Change.Type)
}

func TestParseReactionPolicy(t *testing.T) {
	in, err := Parse("set alert = total > 100 ~+2")
	require.NoError(t, err)
	assert.Equal(t, "total > 100", in.Change.Expr)
	assert.Equal(t, graph.ReactionPolicy{Kind: graph.ReactLimit, Remaining: 2}, in.Change.Policy)

	in, err = Parse("set lagged = total * 2 ~-3")
	require.NoError(t, err)
	assert.Equal(t, graph.ReactionPolicy{Kind: graph.ReactDelay, Remaining: 3}, in.Change.Policy)

	// A policy on a constant makes no sense: there is no edge to gate.
	_, err = Parse("set x = 5 ~+1")
	require.Error(t, err)

	// A tilde inside a string literal is not a policy suffix.
	in, err = Parse(`set s = "a~b"`)
	require.NoError(t, err)
	assert.Equal(t, value.Str("a~b"), in.Change.Value)
}

func TestParseEnsure(t *testing.T) {
	in, err := Parse(`ensure mode = "fast"`)
	require.NoError(t, err)
	assert.Equal(t, VerbEnsure, in.Verb)
	assert.True(t, in.Change.Ensure)
}

func TestParseSimpleVerbs(t *testing.T) {
	tests := []struct {
		line string
		want Intent
	}{
		{"freeze pi", Intent{Verb: VerbFreeze, Name: "pi"}},
		{"get total", Intent{Verb: VerbGet, Name: "total"}},
		{"deps total", Intent{Verb: VerbDeps, Name: "total"}},
		{"list", Intent{Verb: VerbList}},
		{"graph", Intent{Verb: VerbGraph}},
		{"craft", Intent{Verb: VerbCraft}},
		{"craft retune the rates", Intent{Verb: VerbCraft, Label: "retune the rates"}},
		{"temper", Intent{Verb: VerbTemper}},
		{"inspect", Intent{Verb: VerbInspect}},
		{"anneal", Intent{Verb: VerbAnneal}},
		{"anneal 3", Intent{Verb: VerbAnneal, N: 3}},
		{"quench", Intent{Verb: VerbQuench}},
		{"forge", Intent{Verb: VerbForge}},
		{"smelt", Intent{Verb: VerbSmelt}},
		{"history", Intent{Verb: VerbHistory}},
		{"history 10", Intent{Verb: VerbHistory, N: 10}},
		{"help", Intent{Verb: VerbHelp}},
		{"exit", Intent{Verb: VerbExit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			in, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, &tt.want, in)
		})
	}
}

func TestParseErrors(t *testing.T) {
	lines := []string{
		"bogus x",
		"set",
		"set x",
		"set = 5",
		"set x y = 5",
		"set x =",
		"freeze",
		"freeze a b",
		"anneal zero",
		"anneal -1",
		"forge now",
		"set x = 1 +",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(line)
			require.Error(t, err)
		})
	}
}
