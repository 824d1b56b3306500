package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/engine"
)

func newTestSession(t *testing.T, opts *RootOptions) (*Session, *bytes.Buffer) {
	t.Helper()
	if opts == nil {
		opts = &RootOptions{Format: "text"}
	}
	buf := &bytes.Buffer{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sess, err := NewSession(opts, buf,
		engine.WithIDGenerator(engine.NewFixedGenerator("txn-0001", "txn-0002")),
		engine.WithNow(func() time.Time { return fixed }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess, buf
}

func runLines(t *testing.T, sess *Session, script string) {
	t.Helper()
	for _, line := range strings.Split(script, "\n") {
		_, err := sess.ExecuteLine(line)
		require.NoError(t, err, "line %q", line)
	}
}

func TestSessionScript(t *testing.T) {
	sess, buf := newTestSession(t, nil)

	runLines(t, sess, `set price = 10
set qty = 3
set total = price * qty
set alert = total > 25 ~+1
freeze price
list
get total
deps total
craft retune
set qty = 4
set discount = total / 10
temper
inspect
anneal
forge
get discount
set qty = 5`)

	g := goldie.New(t)
	g.Assert(t, "session_script", buf.Bytes())
}

func TestSessionExit(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	done, err := sess.ExecuteLine("exit")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSessionJSONEnvelope(t *testing.T) {
	sess, buf := newTestSession(t, &RootOptions{Format: "json"})

	_, err := sess.ExecuteLine("set x = 41")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", data["name"])
	assert.Equal(t, "41", data["value"])
}

func TestSessionReportsParseErrors(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	_, err := sess.ExecuteLine("bogus command")
	require.Error(t, err)
	assert.Equal(t, "PARSE_ERROR", errorCode(err))
}

func TestSessionRejectedMutation(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	runLines(t, sess, "set pi = 3.14159\nfreeze pi")

	_, err := sess.ExecuteLine("set pi = 3")
	require.Error(t, err)
	assert.Equal(t, "CONSTANT_VIOLATION", errorCode(err))
}

func TestSessionHistoryWithoutJournal(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	_, err := sess.ExecuteLine("history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSessionJournalPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	opts := &RootOptions{Format: "text", Journal: path}
	sess, _ := newTestSession(t, opts)
	runLines(t, sess, `set base = 7
set double = base * 2
freeze base`)
	require.NoError(t, sess.Close())
	sess.Store = nil

	// A fresh session over the same journal sees the replayed store.
	sess2, buf := newTestSession(t, opts)
	runLines(t, sess2, "get double")
	assert.Equal(t, "double = 14\n", buf.String())

	v, err := sess2.Env.Get("base")
	require.NoError(t, err)
	assert.True(t, v.Frozen)

	// Reactivity survives the replay.
	_, err = sess2.ExecuteLine("set base = 8")
	require.Error(t, err)
	assert.Equal(t, "CONSTANT_VIOLATION", errorCode(err))
}

func TestSessionHelp(t *testing.T) {
	sess, buf := newTestSession(t, nil)
	runLines(t, sess, "help")
	assert.Contains(t, buf.String(), "forge | smelt")
}
