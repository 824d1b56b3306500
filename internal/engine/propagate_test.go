package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/value"
)

func mustSet(t *testing.T, e *Env, name string, v value.Value) *PropagationReport {
	t.Helper()
	rep, err := e.Set(name, v)
	require.NoError(t, err)
	return rep
}

func mustDefine(t *testing.T, e *Env, name, src string, policy graph.ReactionPolicy) {
	t.Helper()
	_, err := e.Define(name, src, policy)
	require.NoError(t, err)
}

func intOf(t *testing.T, e *Env, name string) value.Value {
	t.Helper()
	v, err := e.Get(name)
	require.NoError(t, err)
	return v.Value
}

func TestPropagationDeterminism(t *testing.T) {
	e := New()
	mustSet(t, e, "a", value.Int(1))
	mustDefine(t, e, "b", "a + 1", graph.ReactionPolicy{})
	mustDefine(t, e, "c", "b * 2", graph.ReactionPolicy{})

	first := mustSet(t, e, "a", value.Int(5))
	second := mustSet(t, e, "a", value.Int(5))

	assert.Equal(t, []string{"b", "c"}, first.Updated)
	assert.Equal(t, first, second, "identical change must produce an identical report")
}

func TestLimitExhaustion(t *testing.T) {
	e := New()
	mustSet(t, e, "a", value.Int(1))
	mustDefine(t, e, "b", "a * 2", graph.ReactionPolicy{Kind: graph.ReactLimit, Remaining: 2})

	rep := mustSet(t, e, "a", value.Int(2))
	assert.Equal(t, []string{"b"}, rep.Updated)
	assert.Equal(t, value.Int(4), intOf(t, e, "b"))

	rep = mustSet(t, e, "a", value.Int(3))
	assert.Equal(t, []string{"b"}, rep.Updated)
	assert.Equal(t, value.Int(6), intOf(t, e, "b"))

	// Third change: the edge is exhausted, the dependent stays stale.
	rep = mustSet(t, e, "a", value.Int(4))
	assert.Empty(t, rep.Updated)
	assert.Equal(t, []string{"b"}, rep.Skipped)
	assert.Equal(t, value.Int(6), intOf(t, e, "b"))
}

func TestDelayGracePeriod(t *testing.T) {
	e := New()
	mustSet(t, e, "a", value.Int(1))
	mustDefine(t, e, "b", "a * 2", graph.ReactionPolicy{Kind: graph.ReactDelay, Remaining: 2})
	assert.Equal(t, value.Int(2), intOf(t, e, "b"))

	rep := mustSet(t, e, "a", value.Int(5))
	assert.Equal(t, []string{"b"}, rep.Skipped)
	assert.Equal(t, value.Int(2), intOf(t, e, "b"))

	rep = mustSet(t, e, "a", value.Int(6))
	assert.Equal(t, []string{"b"}, rep.Skipped)
	assert.Equal(t, value.Int(2), intOf(t, e, "b"))

	// The grace period is spent; from now on every change reacts.
	rep = mustSet(t, e, "a", value.Int(7))
	assert.Equal(t, []string{"b"}, rep.Updated)
	assert.Equal(t, value.Int(14), intOf(t, e, "b"))

	rep = mustSet(t, e, "a", value.Int(8))
	assert.Equal(t, []string{"b"}, rep.Updated)
	assert.Equal(t, value.Int(16), intOf(t, e, "b"))
}

func TestDiamondRecomputesOnce(t *testing.T) {
	e := New()
	mustSet(t, e, "a", value.Int(1))
	mustSet(t, e, "b", value.Int(2))
	mustDefine(t, e, "c", "a + b", graph.ReactionPolicy{})
	mustDefine(t, e, "d", "a + c", graph.ReactionPolicy{})

	before, err := e.Get("d")
	require.NoError(t, err)

	// a feeds d both directly and through c; d recomputes once, with
	// both the new a and the new c visible.
	rep := mustSet(t, e, "a", value.Int(10))
	assert.Equal(t, []string{"c", "d"}, rep.Updated)
	assert.Equal(t, value.Int(12), intOf(t, e, "c"))
	assert.Equal(t, value.Int(22), intOf(t, e, "d"))

	after, err := e.Get("d")
	require.NoError(t, err)
	assert.Equal(t, before.UpdateCount+1, after.UpdateCount)
}

func TestFailureIsolation(t *testing.T) {
	e := New()
	mustSet(t, e, "a", value.Int(1))
	mustDefine(t, e, "b", "10 / a", graph.ReactionPolicy{})
	mustDefine(t, e, "c", "a + 1", graph.ReactionPolicy{})
	mustDefine(t, e, "down", "b + 1", graph.ReactionPolicy{})
	assert.Equal(t, value.Int(11), intOf(t, e, "down"))

	rep := mustSet(t, e, "a", value.Int(0))

	// b fails (division by zero) and keeps its previous value; the
	// independent branch c still updates; down is blocked behind b and
	// stays untouched rather than being reported.
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "b", rep.Failed[0].Name)
	assert.Equal(t, []string{"c"}, rep.Updated)
	assert.Empty(t, rep.Skipped)

	assert.Equal(t, value.Int(10), intOf(t, e, "b"))
	assert.Equal(t, value.Int(1), intOf(t, e, "c"))
	assert.Equal(t, value.Int(11), intOf(t, e, "down"))
}

func TestQuotaExceeded(t *testing.T) {
	e := New(WithQuota(2))
	mustSet(t, e, "a", value.Int(1))
	mustDefine(t, e, "b", "a + 1", graph.ReactionPolicy{})
	mustDefine(t, e, "c", "b + 1", graph.ReactionPolicy{})
	mustDefine(t, e, "d", "c + 1", graph.ReactionPolicy{})

	rep, err := e.Set("a", value.Int(10))
	require.Error(t, err)
	assert.Equal(t, ErrCodeQuotaExceeded, CodeOf(err))

	// The first two recomputations stand; the cut-off tail is reported
	// skipped.
	assert.Equal(t, []string{"b", "c"}, rep.Updated)
	assert.Equal(t, []string{"d"}, rep.Skipped)
	assert.Equal(t, value.Int(11), intOf(t, e, "b"))
	assert.Equal(t, value.Int(12), intOf(t, e, "c"))
	assert.Equal(t, value.Int(4), intOf(t, e, "d"))
}

func TestLimitNotSpentOnFailedUpdate(t *testing.T) {
	e := New()
	mustSet(t, e, "a", value.Int(1))
	mustDefine(t, e, "b", "10 / a", graph.ReactionPolicy{Kind: graph.ReactLimit, Remaining: 1})

	// The evaluation fails, so the single reaction is not consumed.
	rep := mustSet(t, e, "a", value.Int(0))
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "b", rep.Failed[0].Name)
	assert.Equal(t, value.Int(10), intOf(t, e, "b"))

	rep = mustSet(t, e, "a", value.Int(2))
	assert.Equal(t, []string{"b"}, rep.Updated)
	assert.Equal(t, value.Int(5), intOf(t, e, "b"))

	// Now the reaction is spent.
	rep = mustSet(t, e, "a", value.Int(5))
	assert.Equal(t, []string{"b"}, rep.Skipped)
	assert.Equal(t, value.Int(5), intOf(t, e, "b"))
}

func TestPolicyPerEdgeNotPerVariable(t *testing.T) {
	// The same dependent reacts differently to different upstream
	// sources: here both of d's edges carry the policy from its
	// definition, but gating is evaluated per triggering edge.
	e := New()
	mustSet(t, e, "a", value.Int(1))
	mustSet(t, e, "b", value.Int(1))
	mustDefine(t, e, "d", "a + b", graph.ReactionPolicy{Kind: graph.ReactLimit, Remaining: 1})

	// Changing a spends the a->d edge only.
	rep := mustSet(t, e, "a", value.Int(2))
	assert.Equal(t, []string{"d"}, rep.Updated)
	assert.Equal(t, value.Int(3), intOf(t, e, "d"))

	rep = mustSet(t, e, "a", value.Int(5))
	assert.Equal(t, []string{"d"}, rep.Skipped)
	assert.Equal(t, value.Int(3), intOf(t, e, "d"))

	// The b->d edge still has one reaction left.
	rep = mustSet(t, e, "b", value.Int(4))
	assert.Equal(t, []string{"d"}, rep.Updated)
	assert.Equal(t, value.Int(9), intOf(t, e, "d"))
}
