package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/services"
	"golang.org/x/sync/errgroup"
)

// ConversationType, display kaydındaki konuşma türü.
type ConversationType string

const (
	TypeChannel ConversationType = "channel"
	TypeDirect  ConversationType = "direct"
)

// memberFetchConcurrency, üye listelerini paralel çeken en fazla istek.
const memberFetchConcurrency = 8

// Conversation, konuşma listesinde gösterilen türetilmiş kayıt.
// LastMessageAt mesaj yoksa sıfır değerdir.
type Conversation struct {
	ID            string
	Type          ConversationType
	Name          string
	LastMessage   string
	LastMessageAt time.Time
	UnreadCount   int
	CreatedAt     time.Time

	// PeerID, direct konuşmada karşı tarafın profil ID'si.
	PeerID string
}

// activity, sıralama anahtarı: son mesaj zamanı, yoksa oluşturulma zamanı.
func (c Conversation) activity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// ConversationList, viewer'ın konuşma listesi (read-model).
//
// Refresh tek uçuşludur: fetch sürerken gelen çağrı beklemez, listeyi dirty
// işaretler; süren fetch bitince bir kez daha çalışır. Fetch hatası son
// başarılı listeyi korur.
type ConversationList struct {
	s *Session

	mu       sync.Mutex
	items    []Conversation
	loaded   bool
	fetching bool
	dirty    bool
	ensured  bool
	lastErr  error

	changes listeners[[]Conversation]

	// Start ile kurulur
	runCtx    context.Context
	stop      context.CancelFunc
	channel   realtime.Channel
	cancelBus func()
}

// Conversations, oturum için yeni bir ConversationList oluşturur.
// Start çağrılana kadar realtime dinlemez.
func (s *Session) Conversations() *ConversationList {
	return &ConversationList{s: s}
}

// Start, conversations:<viewer> feed'ine ve RefreshBus'a abone olur, ardından
// ilk fetch'i yapar. İlk fetch'in hatası döner ama abonelik açık kalır.
func (l *ConversationList) Start(ctx context.Context) error {
	viewerID := l.s.viewer.ID
	l.runCtx, l.stop = context.WithCancel(context.Background())

	trigger := func(realtime.Change) { go l.refreshInBackground() }
	ch := l.s.rt.Channel(realtime.ConversationsTopic(viewerID)).
		OnChange(realtime.ChangeFilter{
			Event:  realtime.ChangeInsert,
			Table:  services.TableMembers,
			Filter: realtime.EqFilter("profile_id", viewerID),
		}, trigger).
		OnChange(realtime.ChangeFilter{Event: realtime.ChangeInsert, Table: services.TableMessages}, trigger).
		OnChange(realtime.ChangeFilter{Event: realtime.ChangeUpdate, Table: services.TableMessages}, trigger).
		OnChange(realtime.ChangeFilter{
			Event:  realtime.ChangeInsert,
			Table:  services.TableReads,
			Filter: realtime.EqFilter("profile_id", viewerID),
		}, trigger)

	if err := ch.Subscribe(ctx); err != nil {
		l.stop()
		return fmt.Errorf("failed to subscribe conversation feed: %w", err)
	}
	l.channel = ch
	l.cancelBus = l.s.bus.Subscribe(func() {
		if err := l.Refresh(l.runCtx); err != nil {
			l.s.log.Warn().Err(err).Msg("conversation refresh failed")
		}
	})

	return l.Refresh(ctx)
}

func (l *ConversationList) refreshInBackground() {
	if err := l.Refresh(l.runCtx); err != nil && l.runCtx.Err() == nil {
		l.s.log.Warn().Err(err).Msg("conversation refresh failed")
	}
}

// Close, aboneliği ve bus kaydını kaldırır.
func (l *ConversationList) Close(ctx context.Context) error {
	if l.cancelBus != nil {
		l.cancelBus()
	}
	if l.stop != nil {
		l.stop()
	}
	if l.channel == nil {
		return nil
	}
	return l.channel.Unsubscribe(ctx)
}

// Items, son başarılı fetch'in kopyası.
func (l *ConversationList) Items() []Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Conversation(nil), l.items...)
}

// Loaded, en az bir fetch'in başarılı olup olmadığı.
func (l *ConversationList) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Err, son fetch'in hatası (başarılıysa nil).
func (l *ConversationList) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// OnChange, her başarılı fetch sonrası yeni listeyle çağrılır.
func (l *ConversationList) OnChange(fn func([]Conversation)) (cancel func()) {
	return l.changes.add(fn)
}

// Refresh, listeyi yeniden hesaplar. Başka bir fetch sürüyorsa hemen döner.
func (l *ConversationList) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if l.fetching {
		l.dirty = true
		l.mu.Unlock()
		return nil
	}
	l.fetching = true
	l.mu.Unlock()

	var lastErr error
	for {
		l.mu.Lock()
		l.dirty = false
		l.mu.Unlock()

		items, err := l.fetch(ctx)

		l.mu.Lock()
		l.lastErr = err
		if err == nil {
			l.items = items
			l.loaded = true
		}
		again := l.dirty && ctx.Err() == nil
		if !again {
			l.fetching = false
		}
		l.mu.Unlock()

		lastErr = err
		if err != nil {
			l.s.log.Warn().Err(err).Msg("failed to fetch conversations, keeping previous list")
		} else {
			l.changes.emit(append([]Conversation(nil), items...))
		}
		if !again {
			return lastErr
		}
	}
}

// fetch, display kayıtlarını sıfırdan hesaplar. Satır sorgularından biri
// hata verirse hiçbir kısmi sonuç dönmez.
func (l *ConversationList) fetch(ctx context.Context) ([]Conversation, error) {
	l.ensureCommunity(ctx)

	store := l.s.store
	convs, err := store.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(convs) == 0 {
		return []Conversation{}, nil
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}

	var (
		latest map[string]models.Message
		others []models.MessageRef
		reads  []models.MessageRead
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if latest, err = store.LatestMessages(gctx, ids); err != nil {
			return fmt.Errorf("failed to load latest messages: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if others, err = store.MessagesFromOthers(gctx, ids); err != nil {
			return fmt.Errorf("failed to load messages from others: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if reads, err = store.MyReads(gctx, ids); err != nil {
			return fmt.Errorf("failed to load read receipts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	members := l.loadMembers(ctx, convs)
	unread := UnreadCounts(others, reads)

	items := make([]Conversation, 0, len(convs))
	for i, conv := range convs {
		m := members[i]
		if len(m) == 0 {
			continue
		}
		if IsSelfConversation(conv, m, l.s.viewer) {
			continue
		}
		items = append(items, l.display(conv, m, latest, unread))
	}

	items = DedupeCommunity(items, l.s.registrar.Title(), l.s.registrar.ChannelID())
	sortConversations(items)
	return items, nil
}

// ensureCommunity, topluluk kanalı kaydını liste ömrü boyunca bir kez yapar.
// Hata fetch'i durdurmaz; bir sonraki fetch tekrar dener.
func (l *ConversationList) ensureCommunity(ctx context.Context) {
	l.mu.Lock()
	ensured := l.ensured
	l.mu.Unlock()
	if ensured {
		return
	}

	if _, err := l.s.EnsureCommunityChannel(ctx); err != nil {
		l.s.log.Warn().Err(err).Msg("failed to ensure community channel")
		return
	}
	l.mu.Lock()
	l.ensured = true
	l.mu.Unlock()
}

// loadMembers, her konuşmanın üyelerini paralel çeker. Hata veren veya boş
// dönen konuşmanın girdisi nil kalır ve listeden düşer.
func (l *ConversationList) loadMembers(ctx context.Context, convs []models.Conversation) [][]models.ConversationMember {
	out := make([][]models.ConversationMember, len(convs))

	var g errgroup.Group
	g.SetLimit(memberFetchConcurrency)
	for i, conv := range convs {
		g.Go(func() error {
			members, err := l.s.store.ListMembers(ctx, conv.ID)
			if err != nil {
				l.s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("dropping conversation with unreadable members")
				return nil
			}
			out[i] = members
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (l *ConversationList) display(conv models.Conversation, members []models.ConversationMember, latest map[string]models.Message, unread map[string]int) Conversation {
	item := Conversation{
		ID:          conv.ID,
		UnreadCount: unread[conv.ID],
		CreatedAt:   conv.CreatedAt,
	}

	if conv.IsGroup {
		item.Type = TypeChannel
		item.Name = conv.TitleOr("Group")
	} else {
		item.Type = TypeDirect
		if other, ok := otherMember(members, l.s.viewer.ID); ok {
			item.PeerID = other.ProfileID
			item.Name = conv.TitleOr(other.DisplayName)
		}
	}

	if msg, ok := latest[conv.ID]; ok {
		item.LastMessage = msg.Content
		item.LastMessageAt = msg.CreatedAt
	}
	return item
}

// UnreadCounts, konuşma başına okunmamış sayısı: diğerlerinden gelen mesaj
// kümesi eksi viewer'ın read kümesi. Tekrarlanan satırlar iki kez sayılmaz.
func UnreadCounts(fromOthers []models.MessageRef, viewerReads []models.MessageRead) map[string]int {
	read := make(map[string]bool, len(viewerReads))
	for _, r := range viewerReads {
		read[r.MessageID] = true
	}

	seen := make(map[string]bool, len(fromOthers))
	counts := make(map[string]int)
	for _, ref := range fromOthers {
		if seen[ref.ID] || read[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		counts[ref.ConversationID]++
	}
	return counts
}

// sortConversations, en son aktif olan önce; eşitlikte ID'ye göre.
func sortConversations(items []Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := items[i].activity(), items[j].activity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return items[i].ID < items[j].ID
	})
}
