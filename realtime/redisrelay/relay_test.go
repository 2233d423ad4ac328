package redisrelay

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pitchline/realtime"
)

func newTestRelay(t *testing.T) *Relay {
	t.Helper()
	// Bağlantı lazy kurulur; encode/handle Redis'e gitmez.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, "test:changes", zerolog.Nop())
}

func TestRelay_SkipsOwnOrigin(t *testing.T) {
	a := newTestRelay(t)
	b := newTestRelay(t)
	require.NotEqual(t, a.nodeID, b.nodeID)

	change := realtime.Change{
		Table:  "messages",
		Type:   realtime.ChangeInsert,
		Record: map[string]any{"id": "m1", "conversation_id": "c1"},
	}
	payload, err := a.encode(change)
	require.NoError(t, err)

	var got []realtime.Change
	collect := func(c realtime.Change) { got = append(got, c) }

	a.handle(payload, collect)
	assert.Empty(t, got, "own messages must be ignored")

	b.handle(payload, collect)
	require.Len(t, got, 1)
	assert.Equal(t, "messages", got[0].Table)
	assert.Equal(t, "c1", got[0].Record["conversation_id"])

	b.handle("not json", collect)
	assert.Len(t, got, 1)
}
