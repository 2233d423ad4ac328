package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pitchline/chat"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/realtime"
)

func typingIndicator(t *testing.T, s *chat.Session, convID string) *chat.TypingIndicator {
	t.Helper()
	ti := s.Typing(convID)
	t.Cleanup(func() { ti.Close(context.Background()) })
	return ti
}

func TestTyping_VisibleToOthersNotSelf(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	grace := env.viewer(t, "b", "Grace", models.RoleInvestor)
	conv := env.direct(t, "a", "b")

	mine := typingIndicator(t, env.session(t, ada, chat.Options{TypingTimeout: time.Minute}), conv.ID)
	theirs := typingIndicator(t, env.session(t, grace, chat.Options{}), conv.ID)
	<-theirs.Ready()

	// Abonelik tamamlanmadan çağrılabilir; track bir kez tekrar denenir.
	require.NoError(t, mine.StartTyping(ctx))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]chat.Typer{{UserID: "a", Name: "Ada"}}, theirs.Typers())
	}, waitFor, tick)
	assert.Empty(t, mine.Typers())

	require.NoError(t, mine.StopTyping(ctx))
	require.Eventually(t, func() bool { return len(theirs.Typers()) == 0 }, waitFor, tick)
}

func TestTyping_AutoExpires(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	grace := env.viewer(t, "b", "Grace", models.RoleInvestor)
	conv := env.direct(t, "a", "b")

	const timeout = 300 * time.Millisecond
	mine := typingIndicator(t, env.session(t, ada, chat.Options{TypingTimeout: timeout}), conv.ID)
	theirs := typingIndicator(t, env.session(t, grace, chat.Options{}), conv.ID)
	<-mine.Ready()
	<-theirs.Ready()

	started := time.Now()
	require.NoError(t, mine.StartTyping(ctx))
	require.Eventually(t, func() bool { return len(theirs.Typers()) == 1 }, waitFor, tick)

	require.Eventually(t, func() bool { return len(theirs.Typers()) == 0 }, waitFor, tick)
	assert.GreaterOrEqual(t, time.Since(started), timeout)
}

func TestTyping_KeystrokesExtendTimer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	grace := env.viewer(t, "b", "Grace", models.RoleInvestor)
	conv := env.direct(t, "a", "b")

	const timeout = 300 * time.Millisecond
	mine := typingIndicator(t, env.session(t, ada, chat.Options{TypingTimeout: timeout}), conv.ID)
	theirs := typingIndicator(t, env.session(t, grace, chat.Options{}), conv.ID)
	<-mine.Ready()
	<-theirs.Ready()

	require.NoError(t, mine.StartTyping(ctx))
	require.Eventually(t, func() bool { return len(theirs.Typers()) == 1 }, waitFor, tick)

	// Zamanlayıcıdan kısa aralıklarla yazmaya devam etmek göstergeyi açık tutar.
	for range 4 {
		time.Sleep(timeout / 2)
		require.NoError(t, mine.StartTyping(ctx))
		assert.Len(t, theirs.Typers(), 1)
	}
}

func TestTyping_CloseReleasesPresence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	grace := env.viewer(t, "b", "Grace", models.RoleInvestor)
	conv := env.direct(t, "a", "b")

	mine := env.session(t, ada, chat.Options{TypingTimeout: time.Minute}).Typing(conv.ID)
	theirs := typingIndicator(t, env.session(t, grace, chat.Options{}), conv.ID)
	<-theirs.Ready()

	require.NoError(t, mine.StartTyping(ctx))
	require.Eventually(t, func() bool { return len(theirs.Typers()) == 1 }, waitFor, tick)

	require.NoError(t, mine.Close(ctx))
	require.Eventually(t, func() bool { return len(theirs.Typers()) == 0 }, waitFor, tick)
}

// ─── trackingClient ───

// trackingClient, açtığı kanalların Track çağrılarını sayar. subscribeDelay
// join'i geciktirir; failFirstTrack ilk Track'i ErrNotSubscribed ile reddeder.
type trackingClient struct {
	realtime.Client

	subscribeDelay time.Duration
	failFirstTrack bool

	mu     sync.Mutex
	tracks int
}

func (c *trackingClient) Channel(topic string) realtime.Channel {
	return &trackingChannel{Channel: c.Client.Channel(topic), client: c}
}

func (c *trackingClient) trackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracks
}

type trackingChannel struct {
	realtime.Channel
	client *trackingClient
}

func (ch *trackingChannel) OnChange(filter realtime.ChangeFilter, fn func(realtime.Change)) realtime.Channel {
	ch.Channel = ch.Channel.OnChange(filter, fn)
	return ch
}

func (ch *trackingChannel) OnPresence(fn func(realtime.PresenceEvent)) realtime.Channel {
	ch.Channel = ch.Channel.OnPresence(fn)
	return ch
}

func (ch *trackingChannel) Subscribe(ctx context.Context) error {
	if d := ch.client.subscribeDelay; d > 0 {
		time.Sleep(d)
	}
	return ch.Channel.Subscribe(ctx)
}

func (ch *trackingChannel) Track(ctx context.Context, meta realtime.PresenceMeta) error {
	ch.client.mu.Lock()
	ch.client.tracks++
	reject := ch.client.failFirstTrack && ch.client.tracks == 1
	ch.client.mu.Unlock()
	if reject {
		return realtime.ErrNotSubscribed
	}
	return ch.Channel.Track(ctx, meta)
}

func trackingSession(t *testing.T, env *testEnv, v chat.Viewer, rt *trackingClient) *chat.Session {
	t.Helper()
	conn := env.hub.Connect(v.ID)
	t.Cleanup(func() { conn.Close() })
	rt.Client = conn

	s, err := chat.NewSession(v, chat.Options{
		Store:         env.store(v.ID),
		Realtime:      rt,
		Logger:        zerolog.Nop(),
		TypingTimeout: time.Minute,
	})
	require.NoError(t, err)
	return s
}

func TestTyping_StartBeforeSubscribed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	grace := env.viewer(t, "b", "Grace", models.RoleInvestor)
	conv := env.direct(t, "a", "b")

	theirs := typingIndicator(t, env.session(t, grace, chat.Options{}), conv.ID)
	<-theirs.Ready()

	rt := &trackingClient{subscribeDelay: 50 * time.Millisecond}
	mine := typingIndicator(t, trackingSession(t, env, ada, rt), conv.ID)

	// Join henüz gönderilmedi; ilk Track reddedilir, bekleme sonrası tekrar denenir.
	require.NoError(t, mine.StartTyping(ctx))
	assert.Equal(t, 2, rt.trackCount())

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]chat.Typer{{UserID: "a", Name: "Ada"}}, theirs.Typers())
	}, waitFor, tick)
}

func TestTyping_RetriesTrackOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	grace := env.viewer(t, "b", "Grace", models.RoleInvestor)
	conv := env.direct(t, "a", "b")

	theirs := typingIndicator(t, env.session(t, grace, chat.Options{}), conv.ID)
	<-theirs.Ready()

	rt := &trackingClient{failFirstTrack: true}
	mine := typingIndicator(t, trackingSession(t, env, ada, rt), conv.ID)
	<-mine.Ready()

	started := time.Now()
	require.NoError(t, mine.StartTyping(ctx))
	assert.Equal(t, 2, rt.trackCount())
	assert.GreaterOrEqual(t, time.Since(started), 150*time.Millisecond)
	require.Eventually(t, func() bool { return len(theirs.Typers()) == 1 }, waitFor, tick)

	// Yazmaya devam etmek yeni bir Track üretmez.
	require.NoError(t, mine.StartTyping(ctx))
	assert.Equal(t, 2, rt.trackCount())
}
