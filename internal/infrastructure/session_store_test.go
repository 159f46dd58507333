package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zia_backend/internal/entities"
)

func newTestStore() *SessionStore {
	return NewSessionStore(NewMemorySessionDriver(time.Hour, 0))
}

func TestEnsureCreatesAndReuses(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()

	sid := st.Ensure(ctx, "")
	require.True(t, strings.HasPrefix(sid, "sess_"))

	// Same id comes back untouched.
	assert.Equal(t, sid, st.Ensure(ctx, sid))

	// Unknown ids are adopted rather than replaced, so a widget reload
	// with a stale id keeps working.
	assert.Equal(t, "sess_custom", st.Ensure(ctx, "sess_custom"))
	_, ok := st.Messages(ctx, "sess_custom")
	assert.True(t, ok)
}

func TestAppendAndHistoryBounds(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	sid := st.Ensure(ctx, "")

	for i := 0; i < 10; i++ {
		st.Append(ctx, sid, entities.RoleUser, fmt.Sprintf("q%d", i))
		st.Append(ctx, sid, entities.RoleAssistant, fmt.Sprintf("a%d", i))
	}

	msgs, ok := st.Messages(ctx, sid)
	require.True(t, ok)
	assert.Len(t, msgs, 20)

	// History returns at most 2*maxPairs, most recent last.
	h := st.History(ctx, sid, 3)
	require.Len(t, h, 6)
	assert.Equal(t, "q7", h[0].Content)
	assert.Equal(t, "a9", h[5].Content)

	// Short transcripts come back whole.
	assert.Len(t, st.History(ctx, sid, 100), 20)
}

func TestHistoryReturnsCopy(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	sid := st.Ensure(ctx, "")
	st.Append(ctx, sid, entities.RoleUser, "hola")

	h := st.History(ctx, sid, 8)
	require.Len(t, h, 1)
	h[0].Content = "mutated"

	again := st.History(ctx, sid, 8)
	assert.Equal(t, "hola", again[0].Content)
}

func TestFlowStateRoundTrip(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	sid := st.Ensure(ctx, "")

	assert.False(t, st.Flow(ctx, sid).Active())

	st.SetFlow(ctx, sid, entities.ContactFlow{Stage: entities.StageAskName})
	flow := st.Flow(ctx, sid)
	assert.True(t, flow.Active())
	assert.Equal(t, entities.StageAskName, flow.Stage)

	st.SetFlow(ctx, sid, entities.ContactFlow{})
	assert.False(t, st.Flow(ctx, sid).Active())
}

func TestLastLeadRoundTrip(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	sid := st.Ensure(ctx, "")

	assert.Zero(t, st.LastLead(ctx, sid))
	st.SetLastLead(ctx, sid, 42)
	assert.Equal(t, int64(42), st.LastLead(ctx, sid))
}

func TestUnknownSessionReads(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()

	_, ok := st.Messages(ctx, "sess_nope")
	assert.False(t, ok)
	assert.Nil(t, st.History(ctx, "sess_nope", 8))
	assert.False(t, st.Flow(ctx, "sess_nope").Active())
}

func TestMemoryDriverClonesOnLoad(t *testing.T) {
	d := NewMemorySessionDriver(time.Hour, 0)
	ctx := context.Background()

	orig := &entities.Session{ID: "sess_x", Messages: []entities.Message{{Role: "user", Content: "hi"}}}
	require.NoError(t, d.Save(ctx, orig))

	loaded, ok, err := d.Load(ctx, "sess_x")
	require.NoError(t, err)
	require.True(t, ok)
	loaded.Messages[0].Content = "changed"

	again, _, err := d.Load(ctx, "sess_x")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Content)
}
