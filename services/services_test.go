package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/pkg/email"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/repository"
)

// fakePublisher, yayınlanan change'leri kaydeder.
type fakePublisher struct {
	mu      sync.Mutex
	changes []realtime.Change
}

func (p *fakePublisher) Publish(c realtime.Change) {
	p.mu.Lock()
	p.changes = append(p.changes, c)
	p.mu.Unlock()
}

func (p *fakePublisher) count(table, changeType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.changes {
		if c.Table == table && c.Type == changeType {
			n++
		}
	}
	return n
}

type testEnv struct {
	profiles      repository.ProfileRepository
	convRepo      repository.ConversationRepository
	conversations ConversationService
	messages      MessageService
	reads         ReadService
	pub           *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "services.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	profiles := repository.NewSQLiteProfileRepo(db.Conn)
	convRepo := repository.NewSQLiteConversationRepo(db.Conn)
	msgRepo := repository.NewSQLiteMessageRepo(db.Conn)
	readRepo := repository.NewSQLiteReadRepo(db.Conn)
	pub := &fakePublisher{}

	return &testEnv{
		profiles:      profiles,
		convRepo:      convRepo,
		conversations: NewConversationService(convRepo, profiles, pub),
		messages:      NewMessageService(msgRepo, convRepo, profiles, pub, nil),
		reads:         NewReadService(readRepo, convRepo, pub),
		pub:           pub,
	}
}

func (e *testEnv) profile(t *testing.T, id string, mail string) {
	t.Helper()
	p := &models.Profile{ID: id, DisplayName: "User " + id, Role: models.RoleFounder, CreatedAt: time.Now()}
	if mail != "" {
		p.Email = &mail
	}
	require.NoError(t, e.profiles.Upsert(context.Background(), p))
}

func TestGetOrCreateDirect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "")

	_, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u1")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.conversations.GetOrCreateDirect(ctx, "u1", "ghost")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	first, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, first.IsGroup)

	// Ters yönden başlatmak aynı konuşmayı döner.
	second, err := env.conversations.GetOrCreateDirect(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	members, err := env.conversations.ListMembers(ctx, first.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, 1, env.pub.count(TableConversations, realtime.ChangeInsert))
	assert.Equal(t, 2, env.pub.count(TableMembers, realtime.ChangeInsert))
}

func TestCreateGroup_CanonicalConflict(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "")

	key := models.CommunityCanonicalKey
	req := func() *models.CreateGroupRequest {
		return &models.CreateGroupRequest{
			Title:        "Community Chat",
			Metadata:     models.Metadata{models.MetadataCanonical: true},
			CanonicalKey: &key,
		}
	}

	conv, err := env.conversations.CreateGroup(ctx, "u1", req())
	require.NoError(t, err)
	assert.True(t, conv.Metadata.Bool(models.MetadataCanonical))

	_, err = env.conversations.CreateGroup(ctx, "u2", req())
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)

	groups, err := env.conversations.FindGroups(ctx, "Community Chat", 100)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, conv.ID, groups[0].ID)

	_, err = env.conversations.CreateGroup(ctx, "u1", &models.CreateGroupRequest{Title: "  "})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestAddMember(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "")
	env.profile(t, "u3", "")

	group, err := env.conversations.CreateGroup(ctx, "u1", &models.CreateGroupRequest{Title: "Founders"})
	require.NoError(t, err)

	// Oluşturan zaten owner olarak üyedir.
	_, err = env.conversations.AddMember(ctx, group.ID, "u1", "")
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)

	member, err := env.conversations.AddMember(ctx, group.ID, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, models.MemberRoleMember, member.Role)

	_, err = env.conversations.AddMember(ctx, group.ID, "u3", models.MemberRoleOwner)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	direct, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	_, err = env.conversations.AddMember(ctx, direct.ID, "u3", "")
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestSendAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "")
	env.profile(t, "u3", "")

	conv, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)

	msg, err := env.messages.Send(ctx, conv.ID, "u1", &models.SendMessageRequest{Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "User u1", msg.SenderName)
	assert.Equal(t, 1, env.pub.count(TableMessages, realtime.ChangeInsert))

	_, err = env.messages.Send(ctx, conv.ID, "u3", &models.SendMessageRequest{Content: "intruder"})
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	_, err = env.messages.Send(ctx, conv.ID, "u1", &models.SendMessageRequest{Content: " "})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	got, err := env.messages.Get(ctx, msg.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)

	assert.ErrorIs(t, env.messages.Delete(ctx, msg.ID, "u2"), pkg.ErrForbidden)
	require.NoError(t, env.messages.Delete(ctx, msg.ID, "u1"))
	require.NoError(t, env.messages.Delete(ctx, msg.ID, "u1"))
	assert.Equal(t, 1, env.pub.count(TableMessages, realtime.ChangeUpdate))

	_, err = env.messages.Get(ctx, msg.ID, "u2")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	list, err := env.messages.List(ctx, conv.ID, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBatchQueriesSkipForeignConversations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "")
	env.profile(t, "u3", "")

	mine, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	theirs, err := env.conversations.GetOrCreateDirect(ctx, "u2", "u3")
	require.NoError(t, err)

	_, err = env.messages.Send(ctx, mine.ID, "u2", &models.SendMessageRequest{Content: "for u1"})
	require.NoError(t, err)
	_, err = env.messages.Send(ctx, theirs.ID, "u2", &models.SendMessageRequest{Content: "for u3"})
	require.NoError(t, err)

	latest, err := env.messages.LatestByConversations(ctx, "u1", []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Len(t, latest, 1)
	assert.Equal(t, "for u1", latest[mine.ID].Content)

	refs, err := env.messages.FromOthers(ctx, "u1", []string{mine.ID, theirs.ID, mine.ID})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, mine.ID, refs[0].ConversationID)
}

func TestMarkConversationRead_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "")

	conv, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	for _, text := range []string{"one", "two"} {
		_, err := env.messages.Send(ctx, conv.ID, "u2", &models.SendMessageRequest{Content: text})
		require.NoError(t, err)
	}
	_, err = env.messages.Send(ctx, conv.ID, "u1", &models.SendMessageRequest{Content: "mine"})
	require.NoError(t, err)

	n, err := env.reads.MarkConversationRead(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = env.reads.MarkConversationRead(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, env.pub.count(TableReads, realtime.ChangeInsert))

	reads, err := env.reads.ByProfile(ctx, "u1", []string{conv.ID})
	require.NoError(t, err)
	assert.Len(t, reads, 2)
	for _, r := range reads {
		assert.Equal(t, conv.ID, r.ConversationID)
	}

	env.profile(t, "u3", "")
	_, err = env.reads.MarkConversationRead(ctx, conv.ID, "u3")
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	ids := make([]string, 0, len(reads))
	for _, r := range reads {
		ids = append(ids, r.MessageID)
	}
	visible, err := env.reads.ForMessages(ctx, "u3", &models.ReadQueryRequest{MessageIDs: ids})
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestMarkConversationRead_Concurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "")

	conv, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := env.messages.Send(ctx, conv.ID, "u2", &models.SendMessageRequest{Content: "msg"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := env.reads.MarkConversationRead(ctx, conv.ID, "u1")
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, total)
	reads, err := env.reads.ByProfile(ctx, "u1", []string{conv.ID})
	require.NoError(t, err)
	assert.Len(t, reads, 5)
}

// ─── Notifier ───

type fakeSender struct {
	mu   sync.Mutex
	sent []email.MessageNotification
	fail bool
}

func (f *fakeSender) SendMessageNotification(_ context.Context, n email.MessageNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakePresence map[string]bool

func (p fakePresence) IsOnline(userID string) bool { return p[userID] }

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.profile(t, "u1", "")
	env.profile(t, "u2", "u2@example.com")
	env.profile(t, "u3", "u3@example.com")

	sender := &fakeSender{}
	online := fakePresence{}
	notifier := NewNotificationService(sender, env.convRepo, env.profiles, online, time.Minute, zerolog.Nop())
	t.Cleanup(notifier.Close)

	direct, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	msg := &models.Message{ID: "m1", ConversationID: direct.ID, SenderID: "u1", SenderName: "Ada", Content: "hi"}

	sender.fail = true
	assert.Equal(t, 0, notifier.Notify(ctx, msg))
	sender.fail = false

	// Başarısız deneme cooldown'ı tüketmediği için ilk gerçek gönderim gider.
	assert.Equal(t, 1, notifier.Notify(ctx, msg))
	assert.Equal(t, 0, notifier.Notify(ctx, msg), "cooldown suppresses repeats")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "u2@example.com", sender.sent[0].To)
	assert.Equal(t, "Ada", sender.sent[0].SenderName)

	// Çevrimiçi alıcıya e-posta gitmez.
	other, err := env.conversations.GetOrCreateDirect(ctx, "u1", "u3")
	require.NoError(t, err)
	online["u3"] = true
	assert.Equal(t, 0, notifier.Notify(ctx, &models.Message{ConversationID: other.ID, SenderID: "u1", Content: "x"}))

	// Grup konuşmaları bildirim üretmez.
	group, err := env.conversations.CreateGroup(ctx, "u1", &models.CreateGroupRequest{Title: "g"})
	require.NoError(t, err)
	_, err = env.conversations.AddMember(ctx, group.ID, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, 0, notifier.Notify(ctx, &models.Message{ConversationID: group.ID, SenderID: "u1", Content: "x"}))
}

// ─── Token ───

func TestTokenService(t *testing.T) {
	svc := NewTokenService("secret", "pitchline-auth")

	token, err := svc.Issue("u1", "Ada", models.RoleInvestor, "ada@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, models.RoleInvestor, claims.Role)
	assert.Equal(t, "Ada", claims.Name)

	_, err = NewTokenService("other", "pitchline-auth").ValidateAccessToken(token)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = NewTokenService("secret", "someone-else").ValidateAccessToken(token)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	expired, err := svc.Issue("u1", "Ada", models.RoleInvestor, "", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(expired)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = svc.Issue("u1", "Ada", models.Role("admin"), "", time.Hour)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}
