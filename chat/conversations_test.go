package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pitchline/chat"
	"github.com/akinalp/pitchline/models"
)

func TestUnreadCounts_SetSubtraction(t *testing.T) {
	others := []models.MessageRef{
		{ID: "m1", ConversationID: "c1"},
		{ID: "m2", ConversationID: "c1"},
		{ID: "m2", ConversationID: "c1"},
		{ID: "m3", ConversationID: "c2"},
	}
	reads := []models.MessageRead{
		{MessageID: "m1", ProfileID: "v"},
		{MessageID: "m1", ProfileID: "v"},
		{MessageID: "m9", ProfileID: "v"},
	}

	counts := chat.UnreadCounts(others, reads)
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, counts)
}

func TestIsSelfConversation(t *testing.T) {
	viewer := chat.Viewer{ID: "u", DisplayName: "Ada"}
	direct := models.Conversation{ID: "c"}
	member := func(id, name string) models.ConversationMember {
		return models.ConversationMember{ProfileID: id, DisplayName: name}
	}

	tests := []struct {
		name    string
		conv    models.Conversation
		members []models.ConversationMember
		want    bool
	}{
		{"only viewer", direct, []models.ConversationMember{member("u", "Ada")}, true},
		{"viewer twice", direct, []models.ConversationMember{member("u", "Ada"), member("u", "Ada")}, true},
		{"other has viewer name", direct, []models.ConversationMember{member("u", "Ada"), member("x", "Ada")}, true},
		{"regular direct", direct, []models.ConversationMember{member("u", "Ada"), member("x", "Grace")}, false},
		{"group with one member", models.Conversation{ID: "g", IsGroup: true}, []models.ConversationMember{member("u", "Ada")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chat.IsSelfConversation(tt.conv, tt.members, viewer))
		})
	}
}

func TestDedupeCommunity(t *testing.T) {
	items := []chat.Conversation{
		{ID: "a", Type: chat.TypeChannel, Name: "Community Chat"},
		{ID: "d", Type: chat.TypeDirect, Name: "Grace"},
		{ID: "b", Type: chat.TypeChannel, Name: "Community Chat"},
		{ID: "g", Type: chat.TypeChannel, Name: "Investors"},
	}
	ids := func(cs []chat.Conversation) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}
		return out
	}

	assert.Equal(t, []string{"d", "b", "g"}, ids(chat.DedupeCommunity(items, "Community Chat", "b")))
	assert.Equal(t, []string{"a", "d", "g"}, ids(chat.DedupeCommunity(items, "Community Chat", "")))
	assert.Equal(t, []string{"a", "d", "g"}, ids(chat.DedupeCommunity(items, "Community Chat", "missing")))
}

func TestConversationList_UnreadAndOrdering(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	env.viewer(t, "b", "Grace", models.RoleInvestor)
	env.viewer(t, "c", "Linus", models.RoleExpert)

	withGrace := env.direct(t, "a", "b")
	withLinus := env.direct(t, "a", "c")
	env.send(t, withLinus.ID, "c", "old news")
	time.Sleep(5 * time.Millisecond)
	env.send(t, withGrace.ID, "b", "hello")
	env.send(t, withGrace.ID, "b", "are you there?")
	env.send(t, withGrace.ID, "a", "yes")

	s := env.session(t, ada, chat.Options{})
	list := s.Conversations()
	require.NoError(t, list.Start(ctx))
	t.Cleanup(func() { list.Close(ctx) })

	items := list.Items()
	grace, ok := find(items, withGrace.ID)
	require.True(t, ok)
	assert.Equal(t, chat.TypeDirect, grace.Type)
	assert.Equal(t, "Grace", grace.Name)
	assert.Equal(t, "b", grace.PeerID)
	assert.Equal(t, "yes", grace.LastMessage)
	assert.Equal(t, 2, grace.UnreadCount)

	linus, ok := find(items, withLinus.ID)
	require.True(t, ok)
	assert.Equal(t, 1, linus.UnreadCount)

	// Topluluk kanalı otomatik katılımla listede, mesajsız olduğu için createdAt ile sıralanır.
	community, ok := find(items, s.Registrar().ChannelID())
	require.True(t, ok)
	assert.Equal(t, chat.TypeChannel, community.Type)
	assert.Equal(t, chat.DefaultCommunityTitle, community.Name)

	var graceIdx, linusIdx int
	for i, c := range items {
		switch c.ID {
		case withGrace.ID:
			graceIdx = i
		case withLinus.ID:
			linusIdx = i
		}
	}
	assert.Less(t, graceIdx, linusIdx)

	require.True(t, s.MarkMessagesAsRead(ctx, withGrace.ID))
	require.Eventually(t, func() bool {
		c, ok := find(list.Items(), withGrace.ID)
		return ok && c.UnreadCount == 0
	}, waitFor, tick)

	c, _ := find(list.Items(), withLinus.ID)
	assert.Equal(t, 1, c.UnreadCount)
}

func TestConversationList_LiveUpdates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	env.viewer(t, "b", "Grace", models.RoleInvestor)

	s := env.session(t, ada, chat.Options{})
	list := s.Conversations()
	require.NoError(t, list.Start(ctx))
	t.Cleanup(func() { list.Close(ctx) })

	changed := make(chan struct{}, 1)
	cancel := list.OnChange(func([]chat.Conversation) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	conv := env.direct(t, "b", "a")
	env.send(t, conv.ID, "b", "ping")

	require.Eventually(t, func() bool {
		c, ok := find(list.Items(), conv.ID)
		return ok && c.LastMessage == "ping" && c.UnreadCount == 1
	}, waitFor, tick)
	assert.NotEmpty(t, changed)
}

func TestConversationList_SuppressesSelfConversations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)

	self := &models.Conversation{ID: uuid.NewString(), CreatedAt: time.Now()}
	require.NoError(t, env.convRepo.CreateWithMembers(ctx, self, []models.ConversationMember{
		{ProfileID: "a", Role: models.MemberRoleMember, JoinedAt: time.Now()},
	}))

	s := env.session(t, ada, chat.Options{})
	list := s.Conversations()
	require.NoError(t, list.Refresh(ctx))

	_, ok := find(list.Items(), self.ID)
	assert.False(t, ok)
}

func TestConversationList_DropsConversationWithUnreadableMembers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	env.viewer(t, "b", "Grace", models.RoleInvestor)
	env.viewer(t, "c", "Linus", models.RoleExpert)

	broken := env.direct(t, "a", "b")
	healthy := env.direct(t, "a", "c")

	store := &faultyStore{Store: env.store("a"), membersErr: map[string]error{broken.ID: errors.New("boom")}}
	s := env.session(t, ada, chat.Options{Store: store})
	list := s.Conversations()
	require.NoError(t, list.Refresh(ctx))

	_, ok := find(list.Items(), broken.ID)
	assert.False(t, ok)
	_, ok = find(list.Items(), healthy.ID)
	assert.True(t, ok)
}

func TestConversationList_KeepsLastGoodStateOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	env.viewer(t, "b", "Grace", models.RoleInvestor)
	conv := env.direct(t, "a", "b")

	store := &faultyStore{Store: env.store("a")}
	s := env.session(t, ada, chat.Options{Store: store})
	list := s.Conversations()
	require.NoError(t, list.Refresh(ctx))
	before := list.Items()
	_, ok := find(before, conv.ID)
	require.True(t, ok)

	store.set(func(f *faultyStore) { f.listErr = errors.New("offline") })
	err := list.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, before, list.Items())
	assert.Error(t, list.Err())
	assert.True(t, list.Loaded())
}

func TestConversationList_DedupesCommunityRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)

	// Eşzamanlı oluşturmadan kalmış canonical işaretsiz bir kopya ve asıl kanal.
	dup, err := env.store("a").CreateGroup(ctx, models.CreateGroupRequest{Title: chat.DefaultCommunityTitle})
	require.NoError(t, err)
	key := models.CommunityCanonicalKey
	canonical, err := env.store("a").CreateGroup(ctx, models.CreateGroupRequest{
		Title:        chat.DefaultCommunityTitle,
		Metadata:     models.Metadata{models.MetadataCanonical: true},
		CanonicalKey: &key,
	})
	require.NoError(t, err)

	s := env.session(t, ada, chat.Options{})
	list := s.Conversations()
	require.NoError(t, list.Refresh(ctx))

	var shown []string
	for _, c := range list.Items() {
		if c.Name == chat.DefaultCommunityTitle {
			shown = append(shown, c.ID)
		}
	}
	assert.Equal(t, []string{canonical.ID}, shown)
	assert.NotEqual(t, dup.ID, canonical.ID)
}

func TestConversationList_ConcurrentRefreshCoalesces(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ada := env.viewer(t, "a", "Ada", models.RoleFounder)
	env.viewer(t, "b", "Grace", models.RoleInvestor)
	env.viewer(t, "c", "Linus", models.RoleExpert)
	first := env.direct(t, "a", "b")

	store := &faultyStore{Store: env.store("a"), listDelay: 500 * time.Millisecond}
	list := env.session(t, ada, chat.Options{Store: store}).Conversations()

	const n = 20
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = list.Refresh(ctx)
	}()

	// İlk fetch satırları okudu ve bekliyor; bu noktadaki değişikliği
	// ancak trailing pass görebilir.
	require.Eventually(t, func() bool { return store.listCallCount() == 1 }, waitFor, tick)
	second := env.direct(t, "a", "c")

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = list.Refresh(ctx)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "refresh %d", i)
	}
	assert.Equal(t, 2, store.listCallCount())

	_, ok := find(list.Items(), first.ID)
	assert.True(t, ok)
	_, ok = find(list.Items(), second.ID)
	assert.True(t, ok, "trailing pass must pick up the change made mid-flight")
}
