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
)

func communityRows(t *testing.T, env *testEnv) []models.Conversation {
	t.Helper()
	groups, err := env.svcs.Conversations.FindGroups(context.Background(), chat.DefaultCommunityTitle, 50)
	require.NoError(t, err)
	return groups
}

func memberCount(t *testing.T, env *testEnv, convID, profileID string) int {
	t.Helper()
	members, err := env.svcs.Conversations.ListMembers(context.Background(), convID, profileID)
	require.NoError(t, err)
	n := 0
	for _, m := range members {
		if m.ProfileID == profileID {
			n++
		}
	}
	return n
}

func TestRegistrar_IneligibleRole(t *testing.T) {
	env := newTestEnv(t)
	env.viewer(t, "u1", "Ada", models.RoleFounder)
	r := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop())

	id, err := r.Ensure(context.Background(), env.store("u1"), "u1", models.Role("admin"))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, communityRows(t, env))
}

func TestRegistrar_ConcurrentEnsure(t *testing.T) {
	env := newTestEnv(t)
	env.viewer(t, "u1", "Ada", models.RoleFounder)
	r := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop())
	store := env.store("u1")

	const n = 10
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = r.Ensure(context.Background(), store, "u1", models.RoleFounder)
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	rows := communityRows(t, env)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[0], rows[0].ID)
	assert.True(t, rows[0].Metadata.Bool(models.MetadataCanonical))
	assert.Equal(t, 1, memberCount(t, env, ids[0], "u1"))
	assert.Equal(t, ids[0], r.ChannelID())
}

// İki ayrı process: registrar'lar paylaşılmaz, yarış canonical_key ile çözülür.
func TestRegistrar_TwoProcesses(t *testing.T) {
	env := newTestEnv(t)
	env.viewer(t, "u1", "Ada", models.RoleFounder)
	env.viewer(t, "u2", "Grace", models.RoleInvestor)

	first := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop())
	second := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop())

	var (
		wg       sync.WaitGroup
		id1, id2 string
		err1     error
		err2     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		id1, err1 = first.Ensure(context.Background(), env.store("u1"), "u1", models.RoleFounder)
	}()
	go func() {
		defer wg.Done()
		id2, err2 = second.Ensure(context.Background(), env.store("u2"), "u2", models.RoleInvestor)
	}()
	wg.Wait()

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, id1, id2)

	rows := communityRows(t, env)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, memberCount(t, env, id1, "u1"))
	assert.Equal(t, 1, memberCount(t, env, id1, "u2"))
}

func TestRegistrar_RecoversFromCreateConflict(t *testing.T) {
	env := newTestEnv(t)
	env.viewer(t, "u1", "Ada", models.RoleFounder)
	env.viewer(t, "u2", "Grace", models.RoleExpert)

	existing, err := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop()).
		Ensure(context.Background(), env.store("u1"), "u1", models.RoleFounder)
	require.NoError(t, err)

	// İlk arama satırı görmüyor; oluşturma çakışır, ikinci arama bulur.
	store := &faultyStore{Store: env.store("u2"), hiddenLookups: 1}
	r := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop())

	id, err := r.Ensure(context.Background(), store, "u2", models.RoleExpert)
	require.NoError(t, err)
	assert.Equal(t, existing, id)
	assert.Equal(t, 2, store.findGroupCalls)
	assert.Len(t, communityRows(t, env), 1)
	assert.Equal(t, 1, memberCount(t, env, id, "u2"))
}

func TestRegistrar_PrefersCanonicalRow(t *testing.T) {
	env := newTestEnv(t)
	env.viewer(t, "u1", "Ada", models.RoleFounder)
	store := env.store("u1")
	ctx := context.Background()

	plain, err := store.CreateGroup(ctx, models.CreateGroupRequest{Title: chat.DefaultCommunityTitle})
	require.NoError(t, err)
	key := models.CommunityCanonicalKey
	canonical, err := store.CreateGroup(ctx, models.CreateGroupRequest{
		Title:        chat.DefaultCommunityTitle,
		Metadata:     models.Metadata{models.MetadataCanonical: true},
		CanonicalKey: &key,
	})
	require.NoError(t, err)
	require.NotEqual(t, plain.ID, canonical.ID)

	r := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop())
	id, err := r.Ensure(ctx, store, "u1", models.RoleFounder)
	require.NoError(t, err)
	assert.Equal(t, canonical.ID, id)
}

// gatedStore, ilk FindGroups çağrısını release kapanana kadar bekletir.
type gatedStore struct {
	chat.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) FindGroups(ctx context.Context, title string, limit int) ([]models.Conversation, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Store.FindGroups(ctx, title, limit)
}

func TestRegistrar_CancelledCallerDoesNotFailOthers(t *testing.T) {
	env := newTestEnv(t)
	env.viewer(t, "u1", "Ada", models.RoleFounder)
	env.viewer(t, "u2", "Grace", models.RoleInvestor)
	r := chat.NewCommunityRegistrar(chat.DefaultCommunityTitle, zerolog.Nop())
	store := &gatedStore{Store: env.store("u1"), entered: make(chan struct{}), release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Ensure(ctx, store, "u1", models.RoleFounder)
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := r.Ensure(context.Background(), env.store("u2"), "u2", models.RoleInvestor)
		second <- result{id, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(store.release)
	res := <-second
	require.NoError(t, res.err)
	require.NotEmpty(t, res.id)
	assert.Len(t, communityRows(t, env), 1)
	assert.Equal(t, 1, memberCount(t, env, res.id, "u2"))
}
