package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zerolog.Nop(), 64)
	t.Cleanup(h.Shutdown)
	return h
}

func connect(t *testing.T, h *Hub, userID string) *LocalConn {
	t.Helper()
	c := h.Connect(userID)
	t.Cleanup(func() { c.Close() })
	return c
}

// recorder, callback goroutine'inden gelen change'leri toplar.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) add(c Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		id, _ := c.Record["id"].(string)
		out = append(out, id)
	}
	return out
}

func messageChange(id, conversationID string) Change {
	return Change{
		Table:  "messages",
		Type:   ChangeInsert,
		Record: map[string]any{"id": id, "conversation_id": conversationID},
	}
}

func TestHub_DeliversMatchingChanges(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := connect(t, h, "u1")

	var rec recorder
	ch := a.Channel(MessagesTopic("c1", "u1")).OnChange(ChangeFilter{
		Event:  ChangeInsert,
		Table:  "messages",
		Filter: EqFilter("conversation_id", "c1"),
	}, rec.add)
	require.NoError(t, ch.Subscribe(ctx))

	h.Publish(messageChange("m0", "c2"))
	h.Publish(messageChange("m1", "c1"))

	require.Eventually(t, func() bool { return len(rec.ids()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"m1"}, rec.ids())

	require.NoError(t, ch.Unsubscribe(ctx))
	h.Publish(messageChange("m2", "c1"))

	// Unsubscribe sonrası aynı bağlantıda yeni bir abonelik açılır; m2 ona gelmez.
	var after recorder
	other := a.Channel(MessagesTopic("c1", "u1")).OnChange(ChangeFilter{Event: ChangeInsert, Table: "messages"}, after.add)
	require.NoError(t, other.Subscribe(ctx))
	h.Publish(messageChange("m3", "c1"))

	require.Eventually(t, func() bool { return len(after.ids()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"m1"}, rec.ids())
	assert.Equal(t, []string{"m3"}, after.ids())
}

func TestHub_ChangeAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	h.OnAuthorizeChange(func(userID string, c Change) bool {
		return userID == "u1" || c.Record["conversation_id"] == "public"
	})

	a := connect(t, h, "u1")
	b := connect(t, h, "u2")

	var recA, recB recorder
	filter := ChangeFilter{Event: ChangeInsert, Table: "messages"}
	require.NoError(t, a.Channel(ConversationsTopic("u1")).OnChange(filter, recA.add).Subscribe(ctx))
	require.NoError(t, b.Channel(ConversationsTopic("u2")).OnChange(filter, recB.add).Subscribe(ctx))

	h.Publish(messageChange("private", "c1"))
	h.Publish(messageChange("open", "public"))

	require.Eventually(t, func() bool { return len(recA.ids()) == 2 && len(recB.ids()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"open"}, recB.ids())
}

func TestHub_JoinAuthorization(t *testing.T) {
	h := newTestHub(t)
	h.OnAuthorizeJoin(func(userID, topic string) error {
		if ParseTopic(topic).Kind == TopicTyping {
			return errors.New("not a member")
		}
		return nil
	})
	a := connect(t, h, "u1")

	err := a.Channel(TypingTopic("c1")).Subscribe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a member")

	require.NoError(t, a.Channel(PresenceTopic).Subscribe(context.Background()))
}

func TestHub_InvalidFilterRejected(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "u1")

	ch := a.Channel(ConversationsTopic("u1")).OnChange(ChangeFilter{Event: "NOPE", Table: "messages"}, func(Change) {})
	assert.Error(t, ch.Subscribe(context.Background()))
}

func TestChannel_TrackBeforeSubscribe(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "u1")

	ch := a.Channel(PresenceTopic)
	err := ch.Track(context.Background(), PresenceMeta{"user_id": "u1"})
	assert.ErrorIs(t, err, ErrNotSubscribed)

	require.NoError(t, ch.Subscribe(context.Background()))
	require.NoError(t, ch.Track(context.Background(), PresenceMeta{"user_id": "u1"}))
}

func TestHub_PresenceLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	a := h.Connect("u1")
	b := connect(t, h, "u2")

	chA := a.Channel(PresenceTopic)
	require.NoError(t, chA.Subscribe(ctx))
	require.NoError(t, chA.Track(ctx, PresenceMeta{"name": "Ada"}))

	// Sonradan katılan snapshot ile u1'i görür.
	var mu sync.Mutex
	var kinds []PresenceEventKind
	chB := b.Channel(PresenceTopic).OnPresence(func(ev PresenceEvent) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	require.NoError(t, chB.Subscribe(ctx))
	require.Eventually(t, func() bool { return len(chB.PresenceState()["u1"]) == 1 }, waitFor, tick)

	meta := chB.PresenceState()["u1"][0]
	assert.Equal(t, "Ada", meta.String("name"))
	assert.NotEmpty(t, meta.Ref())

	// Tekrar track meta'yı değiştirir, ikinci kayıt eklemez.
	require.NoError(t, chA.Track(ctx, PresenceMeta{"name": "Ada L."}))
	require.Eventually(t, func() bool {
		metas := chB.PresenceState()["u1"]
		return len(metas) == 1 && metas[0].String("name") == "Ada L."
	}, waitFor, tick)

	// Bağlantı kapanınca leave yayınlanır.
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		_, ok := chB.PresenceState()["u1"]
		return !ok
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, kinds, PresenceJoin)
	assert.Contains(t, kinds, PresenceLeave)
	assert.Contains(t, kinds, PresenceSync)
}

func TestHub_PresenceMultipleSessions(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	s1 := h.Connect("u1")
	s2 := connect(t, h, "u1")
	watcher := connect(t, h, "u2")

	for _, s := range []*LocalConn{s1, s2} {
		ch := s.Channel(PresenceTopic)
		require.NoError(t, ch.Subscribe(ctx))
		require.NoError(t, ch.Track(ctx, PresenceMeta{"user_id": "u1"}))
	}

	w := watcher.Channel(PresenceTopic)
	require.NoError(t, w.Subscribe(ctx))
	require.Eventually(t, func() bool { return len(w.PresenceState()["u1"]) == 2 }, waitFor, tick)

	require.NoError(t, s1.Close())
	require.Eventually(t, func() bool { return len(w.PresenceState()["u1"]) == 1 }, waitFor, tick)
	assert.True(t, h.IsOnline("u1"))
}

func TestHub_Untrack(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := connect(t, h, "u1")
	b := connect(t, h, "u2")

	topic := TypingTopic("c1")
	chA := a.Channel(topic)
	chB := b.Channel(topic)
	require.NoError(t, chA.Subscribe(ctx))
	require.NoError(t, chB.Subscribe(ctx))

	require.NoError(t, chA.Track(ctx, PresenceMeta{"typing": true}))
	require.Eventually(t, func() bool { return chB.PresenceState()["u1"] != nil }, waitFor, tick)
	assert.True(t, chB.PresenceState()["u1"][0].Bool("typing"))

	require.NoError(t, chA.Untrack(ctx))
	require.Eventually(t, func() bool { return chB.PresenceState()["u1"] == nil }, waitFor, tick)
}

func TestHub_ConnectCallbacks(t *testing.T) {
	h := newTestHub(t)

	first := make(chan string, 1)
	gone := make(chan string, 1)
	h.OnUserFirstConnect(func(userID string) { first <- userID })
	h.OnUserFullyDisconnected(func(userID string) { gone <- userID })

	a := h.Connect("u1")
	select {
	case id := <-first:
		assert.Equal(t, "u1", id)
	case <-time.After(waitFor):
		t.Fatal("first connect callback not called")
	}
	assert.True(t, h.IsOnline("u1"))
	assert.Equal(t, []string{"u1"}, h.OnlineUserIDs())

	require.NoError(t, a.Close())
	select {
	case id := <-gone:
		assert.Equal(t, "u1", id)
	case <-time.After(waitFor):
		t.Fatal("disconnect callback not called")
	}
	assert.False(t, h.IsOnline("u1"))
}

func TestLocalConn_ClosedConnection(t *testing.T) {
	h := newTestHub(t)
	a := h.Connect("u1")
	require.NoError(t, a.Close())

	err := a.Channel(PresenceTopic).Subscribe(context.Background())
	assert.Error(t, err)
}
