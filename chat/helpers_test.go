package chat_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pitchline/chat"
	"github.com/akinalp/pitchline/chat/inproc"
	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/repository"
	"github.com/akinalp/pitchline/services"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type testEnv struct {
	hub      *realtime.Hub
	svcs     inproc.Services
	profiles repository.ProfileRepository
	convRepo repository.ConversationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "chat.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := realtime.NewHub(zerolog.Nop(), 256)
	t.Cleanup(hub.Shutdown)

	profiles := repository.NewSQLiteProfileRepo(db.Conn)
	convRepo := repository.NewSQLiteConversationRepo(db.Conn)
	msgRepo := repository.NewSQLiteMessageRepo(db.Conn)
	readRepo := repository.NewSQLiteReadRepo(db.Conn)

	return &testEnv{
		hub: hub,
		svcs: inproc.Services{
			Conversations: services.NewConversationService(convRepo, profiles, hub),
			Messages:      services.NewMessageService(msgRepo, convRepo, profiles, hub, nil),
			Reads:         services.NewReadService(readRepo, convRepo, hub),
		},
		profiles: profiles,
		convRepo: convRepo,
	}
}

// viewer, profili oluşturur ve karşılık gelen Viewer'ı döner.
func (e *testEnv) viewer(t *testing.T, id, name string, role models.Role) chat.Viewer {
	t.Helper()
	require.NoError(t, e.profiles.Upsert(context.Background(), &models.Profile{
		ID: id, DisplayName: name, Role: role, CreatedAt: time.Now(),
	}))
	return chat.Viewer{ID: id, DisplayName: name, Role: role}
}

func (e *testEnv) store(id string) *inproc.Store {
	return inproc.New(e.svcs, id)
}

// session, viewer için hub'a yeni bir in-process bağlantı açar.
// opts.Store boşsa inproc store kullanılır.
func (e *testEnv) session(t *testing.T, v chat.Viewer, opts chat.Options) *chat.Session {
	t.Helper()
	conn := e.hub.Connect(v.ID)
	t.Cleanup(func() { conn.Close() })

	if opts.Store == nil {
		opts.Store = e.store(v.ID)
	}
	opts.Realtime = conn
	opts.Logger = zerolog.Nop()

	s, err := chat.NewSession(v, opts)
	require.NoError(t, err)
	return s
}

// direct, iki kullanıcı arasında direct konuşma açar.
func (e *testEnv) direct(t *testing.T, a, b string) *models.Conversation {
	t.Helper()
	conv, err := e.svcs.Conversations.GetOrCreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) send(t *testing.T, convID, senderID, content string) *models.Message {
	t.Helper()
	msg, err := e.store(senderID).SendMessage(context.Background(), convID, content)
	require.NoError(t, err)
	return msg
}

// ─── faultyStore ───

// faultyStore, gömülü Store'un seçili çağrılarını hata ile değiştirir.
type faultyStore struct {
	chat.Store

	mu             sync.Mutex
	sendErr        error
	listErr        error
	markReadErr    error
	membersErr     map[string]error
	hiddenLookups  int
	findGroupCalls int

	// listDelay, ListConversations sonucu okunduktan sonra beklenen süre.
	listDelay time.Duration
	listCalls int
	// slowGets, içeriğe göre GetMessage gecikmesi.
	slowGets map[string]time.Duration
}

func (f *faultyStore) set(fn func(f *faultyStore)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *faultyStore) SendMessage(ctx context.Context, conversationID, content string) (*models.Message, error) {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.SendMessage(ctx, conversationID, content)
}

func (f *faultyStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	err := f.listErr
	delay := f.listDelay
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	convs, err := f.Store.ListConversations(ctx)
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return convs, err
}

func (f *faultyStore) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *faultyStore) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := f.Store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	delay := f.slowGets[msg.Content]
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return msg, nil
}

func (f *faultyStore) ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error) {
	f.mu.Lock()
	err := f.membersErr[conversationID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ListMembers(ctx, conversationID)
}

func (f *faultyStore) MarkRead(ctx context.Context, conversationID string) (int, error) {
	f.mu.Lock()
	err := f.markReadErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.Store.MarkRead(ctx, conversationID)
}

// FindGroups, ilk hiddenLookups çağrıda boş sonuç döner (yarışta eski okuma).
func (f *faultyStore) FindGroups(ctx context.Context, title string, limit int) ([]models.Conversation, error) {
	f.mu.Lock()
	f.findGroupCalls++
	hide := f.hiddenLookups > 0
	if hide {
		f.hiddenLookups--
	}
	f.mu.Unlock()
	if hide {
		return []models.Conversation{}, nil
	}
	return f.Store.FindGroups(ctx, title, limit)
}

// find, listedeki ID'li konuşmayı döner.
func find(items []chat.Conversation, id string) (chat.Conversation, bool) {
	for _, c := range items {
		if c.ID == id {
			return c, true
		}
	}
	return chat.Conversation{}, false
}
