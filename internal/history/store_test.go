package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/engine"
	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/value"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	last, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestRecordAndList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	e := engine.New(engine.WithJournal(s))
	_, err := e.Set("a", value.Int(1))
	require.NoError(t, err)
	_, err = e.Define("b", "a * 2", graph.ReactionPolicy{Kind: graph.ReactLimit, Remaining: 3})
	require.NoError(t, err)
	_, err = e.Set("a", value.Int(5))
	require.NoError(t, err)

	recs, err := s.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 4, "a, b, a again, and the propagated b")

	assert.Equal(t, "a", recs[0].Name)
	assert.Equal(t, engine.SourceDirect, recs[0].Source)
	assert.Equal(t, value.Int(1), recs[0].Value)

	assert.Equal(t, "b", recs[1].Name)
	assert.Equal(t, engine.SourceComputed, recs[1].Source)
	assert.Equal(t, "a * 2", recs[1].Expr)
	assert.Equal(t, "~+3", recs[1].Policy)

	assert.Equal(t, engine.SourcePropagated, recs[3].Source)
	assert.Equal(t, value.Int(10), recs[3].Value)

	// Seq numbers are strictly increasing.
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Seq, recs[i-1].Seq)
	}

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, recs[3].Seq, last)
}

func TestRecordMutationIdempotent(t *testing.T) {
	s := openStore(t)
	rec := engine.MutationRecord{Seq: 7, Name: "x", Source: engine.SourceDirect, Value: value.Int(1)}

	require.NoError(t, s.RecordMutation(rec))
	rec.Value = value.Int(99)
	require.NoError(t, s.RecordMutation(rec), "duplicate seq is silently ignored")

	recs, err := s.ListMutations(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, value.Int(1), recs[0].Value, "first write wins")
}

func TestTransactionEvents(t *testing.T) {
	s := openStore(t)

	e := engine.New(
		engine.WithJournal(s),
		engine.WithIDGenerator(engine.NewFixedGenerator("txn-0001")),
	)
	_, err := e.Craft("batch")
	require.NoError(t, err)
	_, err = e.Set("x", value.Int(1)) // staged
	require.NoError(t, err)
	_, err = e.Forge()
	require.NoError(t, err)

	events, err := s.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "craft", events[0].Verb)
	assert.Equal(t, "forge", events[1].Verb)
	assert.Equal(t, "txn-0001", events[0].ID)
	assert.Equal(t, "batch", events[0].Label)

	recs, err := s.ListMutations(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "txn-0001", recs[0].TxnID)
}

func TestReplayInto(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	live := engine.New(engine.WithJournal(s))
	_, err := live.Set("price", value.Int(10))
	require.NoError(t, err)
	_, err = live.Define("total", "price * 2", graph.ReactionPolicy{})
	require.NoError(t, err)
	_, err = live.Set("price", value.Int(21))
	require.NoError(t, err)
	require.NoError(t, live.Freeze("price"))

	restored := engine.New()
	require.NoError(t, s.ReplayInto(ctx, restored))

	v, err := restored.Get("price")
	require.NoError(t, err)
	assert.Equal(t, value.Int(21), v.Value)
	assert.True(t, v.Frozen)

	v, err = restored.Get("total")
	require.NoError(t, err)
	assert.Equal(t, value.Int(42), v.Value)
	assert.Equal(t, "price * 2", v.Expr)

	// The clock resumes past the journaled history.
	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, restored.Clock().Current(), last)

	// Reactivity survives replay.
	restored.SetJournal(s)
	_, err = restored.Set("price", value.Int(1))
	assert.True(t, engine.IsConstantViolation(err))
}

func TestReplayAfterFailedForge(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	live := engine.New(engine.WithJournal(s))
	_, err := live.Set("a", value.Int(1))
	require.NoError(t, err)
	_, err = live.Craft("batch")
	require.NoError(t, err)
	_, err = live.Set("b", value.Int(2))
	require.NoError(t, err)
	_, err = live.Define("c", `a + "oops"`, graph.ReactionPolicy{})
	require.NoError(t, err)

	_, err = live.Forge()
	require.Error(t, err)
	_, err = live.Get("b")
	require.Error(t, err, "rollback removed b from the live store")

	restored := engine.New()
	require.NoError(t, s.ReplayInto(ctx, restored))
	_, err = restored.Get("b")
	assert.Error(t, err, "rolled-back mutations must not replay")
	assert.Len(t, restored.List(), 1, "only a survives, as in the live store")

	// Fixing the batch and forging again journals the whole unit.
	_, err = live.Define("c", "a + 1", graph.ReactionPolicy{})
	require.NoError(t, err)
	_, err = live.Forge()
	require.NoError(t, err)

	restored = engine.New()
	require.NoError(t, s.ReplayInto(ctx, restored))
	v, err := restored.Get("b")
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v.Value)
	v, err = restored.Get("c")
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v.Value)
}

func TestReplayAfterFreezeSmelted(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	live := engine.New(engine.WithJournal(s))
	_, err := live.Set("x", value.Int(1))
	require.NoError(t, err)
	_, err = live.Craft("freeze then abort")
	require.NoError(t, err)
	require.NoError(t, live.Freeze("x"))
	require.NoError(t, live.Smelt())

	v, err := live.Get("x")
	require.NoError(t, err)
	require.False(t, v.Frozen, "smelt reverts the freeze")

	restored := engine.New()
	require.NoError(t, s.ReplayInto(ctx, restored))
	v, err = restored.Get("x")
	require.NoError(t, err)
	assert.False(t, v.Frozen)
}

func TestReplayAfterFreezeForged(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	live := engine.New(engine.WithJournal(s))
	_, err := live.Set("x", value.Int(1))
	require.NoError(t, err)
	_, err = live.Craft("freeze then commit")
	require.NoError(t, err)
	require.NoError(t, live.Freeze("x"))
	_, err = live.Set("y", value.Int(2))
	require.NoError(t, err)
	_, err = live.Forge()
	require.NoError(t, err)

	restored := engine.New()
	require.NoError(t, s.ReplayInto(ctx, restored))
	v, err := restored.Get("x")
	require.NoError(t, err)
	assert.True(t, v.Frozen)
	v, err = restored.Get("y")
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v.Value)
}

func TestReplayKeepsAnnealedChanges(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	live := engine.New(engine.WithJournal(s))
	_, err := live.Craft("partial")
	require.NoError(t, err)
	_, err = live.Set("y", value.Int(2))
	require.NoError(t, err)
	_, err = live.Set("z", value.Int(3))
	require.NoError(t, err)
	_, err = live.Anneal(1)
	require.NoError(t, err)
	require.NoError(t, live.Smelt())

	restored := engine.New()
	require.NoError(t, s.ReplayInto(ctx, restored))
	v, err := restored.Get("y")
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v.Value, "annealed changes survive smelt and replay")
	_, err = restored.Get("z")
	assert.Error(t, err, "staged but never applied")
}

func TestReplayEmptyJournal(t *testing.T) {
	s := openStore(t)
	e := engine.New()
	require.NoError(t, s.ReplayInto(context.Background(), e))
	assert.Empty(t, e.List())
}
