package connect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func newEntry(id string, seq uint64, guaranteed bool) *entry {
	return &entry{id: id, seq: seq, cmd: Command{PayloadType: uint32(seq), Guaranteed: guaranteed}, awaiting: true}
}

func TestArenaInsertIsIdempotent(t *testing.T) {
	testlog.Start(t)
	a := newArena()
	first := newEntry("a", 1, false)
	require.True(t, a.insertPending(first))
	require.True(t, a.insertPending(first))

	other := newEntry("a", 2, false)
	assert.False(t, a.insertPending(other))
	assert.Same(t, first, a.lookupPending("a"))

	pending, queued := a.counts()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 0, queued)
}

func TestArenaMoveBetweenTablesKeepsCounts(t *testing.T) {
	testlog.Start(t)
	a := newArena()
	e := newEntry("a", 1, true)
	a.insertPending(e)
	a.enqueue(e)

	pending, queued := a.counts()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, queued)
	assert.Nil(t, a.lookupPending("a"))
	assert.True(t, a.holds(e))

	a.remove("a")
	a.remove("a")
	pending, queued = a.counts()
	assert.Zero(t, pending+queued)
	assert.False(t, a.has("a"))
}

func TestArenaDrainsInSubmissionOrder(t *testing.T) {
	testlog.Start(t)
	a := newArena()
	for i, g := range []bool{true, false, true, false, true} {
		a.insertPending(newEntry(string(rune('a'+i)), uint64(i+1), g))
	}
	queued := newEntry("q", 9, true)
	a.enqueue(queued)

	failed := a.drainNonGuaranteed()
	require.Len(t, failed, 2)
	assert.Equal(t, []string{"b", "d"}, ids(failed))

	kept := a.drainGuaranteed()
	assert.Equal(t, []string{"a", "c", "e"}, ids(kept))

	pending, q := a.counts()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, q)
	assert.Equal(t, []string{"q"}, ids(a.drainQueued()))
	assert.Empty(t, a.drainAll())
}

func TestArenaSnapshotSortedBySeq(t *testing.T) {
	testlog.Start(t)
	a := newArena()
	a.enqueue(newEntry("late", 3, true))
	a.insertPending(newEntry("early", 1, false))
	a.insertPending(newEntry("mid", 2, false))

	snap := a.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "early", snap[0].CorrelationID)
	assert.Equal(t, "mid", snap[1].CorrelationID)
	assert.Equal(t, StateQueued, snap[2].State)
	assert.True(t, snap[2].Guaranteed)
}

func TestPushSinkReplaysLastEvent(t *testing.T) {
	testlog.Start(t)
	var p pushSink
	_, ok := p.setHandler(func(Message) {})
	assert.False(t, ok)

	p.setHandler(nil)
	assert.Nil(t, p.publish(Message{PayloadType: 1}))
	assert.Nil(t, p.publish(Message{PayloadType: 2}))

	replay, ok := p.setHandler(func(Message) {})
	require.True(t, ok)
	assert.Equal(t, uint32(2), replay.PayloadType)
	assert.NotNil(t, p.publish(Message{PayloadType: 3}))
}

func TestCommandErrorUnwrapsKindAndCause(t *testing.T) {
	testlog.Start(t)
	cause := assert.AnError
	err := newCommandError(ErrSendFailed, newEntry("x", 4, false), cause)

	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.Contains(t, err.Error(), "payload_type=4")
	assert.Contains(t, err.Error(), "adapter could not send command")
}

func TestIDGenerators(t *testing.T) {
	testlog.Start(t)
	a, b := NewID(), NewID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)

	gen := SequentialIDs("t")
	assert.Equal(t, "t-1", gen())
	assert.Equal(t, "t-2", gen())
}

func ids(list []*entry) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.id)
	}
	return out
}
