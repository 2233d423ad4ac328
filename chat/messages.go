package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/services"
	"github.com/google/uuid"
)

// MessageState, mesajın optimistic durumu.
type MessageState int

const (
	// Confirmed, ID backend'in atadığı kalıcı ID'dir.
	Confirmed MessageState = iota
	// Provisional, gönderim onayı beklenen yerel mesaj; ID geçici ID'dir.
	Provisional
)

// provisionalPrefix, geçici mesaj ID'lerinin ön eki.
const provisionalPrefix = "tmp-"

// realtimeFetchTimeout, realtime'dan gelen tek mesajın projeksiyonunu çekme süresi.
const realtimeFetchTimeout = 10 * time.Second

// Message, akıştaki bir mesaj. ReadBy mesajı okuyan profil ID'leri.
type Message struct {
	ID             string
	State          MessageState
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	CreatedAt      time.Time
	ReadBy         []string
}

func (m Message) clone() Message {
	m.ReadBy = append([]string(nil), m.ReadBy...)
	return m
}

func (m *Message) addReader(profileID string) bool {
	for _, id := range m.ReadBy {
		if id == profileID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, profileID)
	return true
}

func confirmedMessage(msg models.Message, readers []string) Message {
	return Message{
		ID:             msg.ID,
		State:          Confirmed,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		ReadBy:         readers,
	}
}

// MessageStream, tek bir konuşmanın (eskiden yeniye) silinmemiş mesajları.
//
// Realtime olayları ve Send cevabı herhangi bir sırada gelebilir; tüm
// uzlaştırma ID ile yapılır, index ile değil.
type MessageStream struct {
	s              *Session
	conversationID string

	mu       sync.Mutex
	messages []Message

	changes listeners[[]Message]

	runCtx  context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	channel realtime.Channel
}

// OpenMessages, konuşmanın mesaj akışını açar: feed'e abone olur, geçmişi
// yükler ve mevcut okunmamış mesajları okundu işaretler.
//
// Abonelik geçmişten önce kurulur; arada gelen mesajlar kaybolmaz.
func (s *Session) OpenMessages(ctx context.Context, conversationID string) (*MessageStream, error) {
	ms := &MessageStream{s: s, conversationID: conversationID}
	ms.runCtx, ms.stop = context.WithCancel(context.Background())

	byConversation := realtime.EqFilter("conversation_id", conversationID)
	ch := s.rt.Channel(realtime.MessagesTopic(conversationID, s.viewer.ID)).
		OnChange(realtime.ChangeFilter{Event: realtime.ChangeInsert, Table: services.TableMessages, Filter: byConversation}, ms.onInsert).
		OnChange(realtime.ChangeFilter{Event: realtime.ChangeUpdate, Table: services.TableMessages, Filter: byConversation}, ms.onUpdate).
		OnChange(realtime.ChangeFilter{Event: realtime.ChangeInsert, Table: services.TableReads, Filter: byConversation}, ms.onRead)

	if err := ch.Subscribe(ctx); err != nil {
		ms.stop()
		return nil, fmt.Errorf("failed to subscribe message feed: %w", err)
	}
	ms.channel = ch

	if err := ms.Reload(ctx); err != nil {
		_ = ms.Close(ctx)
		return nil, err
	}

	s.MarkMessagesAsRead(ctx, conversationID)
	return ms, nil
}

// ConversationID, akışın konuşması.
func (ms *MessageStream) ConversationID() string { return ms.conversationID }

// Messages, güncel listenin kopyası.
func (ms *MessageStream) Messages() []Message {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.snapshotLocked()
}

func (ms *MessageStream) snapshotLocked() []Message {
	out := make([]Message, len(ms.messages))
	for i, m := range ms.messages {
		out[i] = m.clone()
	}
	return out
}

// OnChange, liste her değiştiğinde yeni kopyayla çağrılır.
func (ms *MessageStream) OnChange(fn func([]Message)) (cancel func()) {
	return ms.changes.add(fn)
}

// Close, aboneliği kapatır ve arka plan işlerini bekler.
func (ms *MessageStream) Close(ctx context.Context) error {
	ms.stop()
	err := ms.channel.Unsubscribe(ctx)
	ms.wg.Wait()
	return err
}

// Reload, geçmişi ve read receipt'leri yeniden çeker. Hata mevcut listeyi korur.
//
// Geçmişte olmayan yerel kayıtlardan provisional mesajlar ve geçmişin son
// mesajından yeni olanlar (realtime ile gelmiş) korunur.
func (ms *MessageStream) Reload(ctx context.Context) error {
	history, err := ms.s.store.ListMessages(ctx, ms.conversationID)
	if err != nil {
		ms.s.log.Warn().Err(err).Str("conversation_id", ms.conversationID).Msg("failed to load messages")
		return fmt.Errorf("failed to load messages: %w", err)
	}

	ids := make([]string, len(history))
	for i, m := range history {
		ids[i] = m.ID
	}
	readers, err := ms.readers(ctx, ids)
	if err != nil {
		ms.s.log.Warn().Err(err).Str("conversation_id", ms.conversationID).Msg("failed to load read receipts")
		return err
	}

	var cutoff time.Time
	if n := len(history); n > 0 {
		cutoff = history[n-1].CreatedAt
	}

	ms.mu.Lock()
	loaded := make(map[string]bool, len(history))
	merged := make([]Message, 0, len(history)+len(ms.messages))
	for _, m := range history {
		loaded[m.ID] = true
		merged = append(merged, confirmedMessage(m, readers[m.ID]))
	}
	for _, m := range ms.messages {
		if loaded[m.ID] {
			continue
		}
		if m.State == Provisional || m.CreatedAt.After(cutoff) {
			merged = append(merged, m)
		}
	}
	ms.messages = merged
	snapshot := ms.snapshotLocked()
	ms.mu.Unlock()

	ms.changes.emit(snapshot)
	return nil
}

// readers, mesaj ID'lerinin read receipt'lerini MaxBatchIDs'lik parçalarla çeker.
func (ms *MessageStream) readers(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for start := 0; start < len(ids); start += models.MaxBatchIDs {
		end := min(start+models.MaxBatchIDs, len(ids))
		reads, err := ms.s.store.ReadsForMessages(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to load read receipts: %w", err)
		}
		for _, r := range reads {
			out[r.MessageID] = append(out[r.MessageID], r.ProfileID)
		}
	}
	return out, nil
}

// ─── Send ───

// Send, mesajı optimistic olarak listeye ekler ve backend'e yazar.
//
// Hata durumunda provisional kayıt kaldırılır ve hata döner. Başarıda kayıt
// yerinde onaylanır; realtime aynı mesajı önce getirdiyse provisional kayıt düşer.
func (ms *MessageStream) Send(ctx context.Context, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, fmt.Errorf("%w: message content is required", pkg.ErrBadRequest)
	}

	viewer := ms.s.viewer
	tempID := provisionalPrefix + uuid.NewString()
	ms.mutate(func() bool {
		ms.messages = append(ms.messages, Message{
			ID:             tempID,
			State:          Provisional,
			ConversationID: ms.conversationID,
			SenderID:       viewer.ID,
			SenderName:     viewer.DisplayName,
			Content:        content,
			CreatedAt:      time.Now().UTC(),
		})
		return true
	})

	msg, err := ms.s.store.SendMessage(ctx, ms.conversationID, content)
	if err != nil {
		ms.mutate(func() bool { return ms.removeLocked(Provisional, tempID) })
		ms.s.log.Warn().Err(err).Str("conversation_id", ms.conversationID).Msg("failed to send message")
		return Message{}, err
	}

	var confirmed Message
	ms.mutate(func() bool {
		if i := ms.indexLocked(Confirmed, msg.ID); i >= 0 {
			confirmed = ms.messages[i].clone()
			return ms.removeLocked(Provisional, tempID)
		}
		i := ms.indexLocked(Provisional, tempID)
		if i < 0 {
			// Provisional kayıt bu sırada bir Reload ile düşmüş olabilir.
			ms.messages = append(ms.messages, confirmedMessage(*msg, nil))
			confirmed = ms.messages[len(ms.messages)-1].clone()
			return true
		}
		m := &ms.messages[i]
		m.ID = msg.ID
		m.State = Confirmed
		m.CreatedAt = msg.CreatedAt
		m.Content = msg.Content
		if msg.SenderName != "" {
			m.SenderName = msg.SenderName
		}
		confirmed = m.clone()
		return true
	})
	return confirmed, nil
}

// Delete, viewer'ın kendi mesajını siler ve listeden kaldırır.
func (ms *MessageStream) Delete(ctx context.Context, messageID string) error {
	if err := ms.s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	ms.mutate(func() bool { return ms.removeLocked(Confirmed, messageID) })
	return nil
}

// ─── Realtime ───

// onInsert, yeni mesaj bildirimi. Okuma goroutine'inde çalışır; projeksiyon
// ayrı goroutine'de çekilir.
func (ms *MessageStream) onInsert(change realtime.Change) {
	var rec models.Message
	if err := change.Decode(&rec); err != nil || rec.ID == "" {
		ms.s.log.Warn().Err(err).Msg("invalid message change")
		return
	}
	if rec.ConversationID != ms.conversationID || ms.has(rec.ID) {
		return
	}

	ms.wg.Add(1)
	go func() {
		defer ms.wg.Done()
		ms.fetchIncoming(rec)
	}()
}

func (ms *MessageStream) fetchIncoming(rec models.Message) {
	ctx, cancel := context.WithTimeout(ms.runCtx, realtimeFetchTimeout)
	defer cancel()

	msg, err := ms.s.store.GetMessage(ctx, rec.ID)
	if err != nil {
		if ms.runCtx.Err() == nil {
			ms.s.log.Warn().Err(err).Str("message_id", rec.ID).Msg("failed to fetch incoming message")
		}
		return
	}
	readers, err := ms.readers(ctx, []string{msg.ID})
	if err != nil {
		ms.s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to fetch incoming read receipts")
	}

	// Paralel fetch'ler farklı sırada bitebilir; mesaj CreatedAt sırasındaki
	// yerine konur.
	appended := ms.mutate(func() bool {
		if ms.indexLocked(Confirmed, msg.ID) >= 0 {
			return false
		}
		ms.insertLocked(confirmedMessage(*msg, readers[msg.ID]))
		return true
	})
	if !appended || msg.SenderID == ms.s.viewer.ID {
		return
	}

	// Konuşma açık; başkasının mesajı hemen okundu sayılır.
	if ms.s.MarkMessagesAsRead(ctx, ms.conversationID) {
		ms.patchReader(msg.ID, ms.s.viewer.ID)
	}
}

// onUpdate, silinen mesajı listeden kaldırır.
func (ms *MessageStream) onUpdate(change realtime.Change) {
	var rec models.Message
	if err := change.Decode(&rec); err != nil {
		ms.s.log.Warn().Err(err).Msg("invalid message change")
		return
	}
	if !rec.Deleted {
		return
	}
	ms.mutate(func() bool { return ms.removeLocked(Confirmed, rec.ID) })
}

// onRead, read receipt bildirimini ilgili mesajın ReadBy listesine işler.
func (ms *MessageStream) onRead(change realtime.Change) {
	var rec models.MessageRead
	if err := change.Decode(&rec); err != nil {
		ms.s.log.Warn().Err(err).Msg("invalid read change")
		return
	}
	ms.patchReader(rec.MessageID, rec.ProfileID)
}

func (ms *MessageStream) patchReader(messageID, profileID string) {
	ms.mutate(func() bool {
		i := ms.indexLocked(Confirmed, messageID)
		if i < 0 {
			return false
		}
		return ms.messages[i].addReader(profileID)
	})
}

// ─── Yardımcılar ───

// mutate, fn'i lock altında çalıştırır; fn true dönerse aboneleri bilgilendirir.
func (ms *MessageStream) mutate(fn func() bool) bool {
	ms.mu.Lock()
	changed := fn()
	var snapshot []Message
	if changed {
		snapshot = ms.snapshotLocked()
	}
	ms.mu.Unlock()

	if changed {
		ms.changes.emit(snapshot)
	}
	return changed
}

func (ms *MessageStream) has(id string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.indexLocked(Confirmed, id) >= 0
}

// insertLocked, m'yi onaylı mesajlar arasında (CreatedAt, ID) sırasındaki
// yerine koyar. Provisional kayıtlar listenin sonunda kalır.
func (ms *MessageStream) insertLocked(m Message) {
	i := len(ms.messages)
	for i > 0 {
		prev := ms.messages[i-1]
		if prev.State == Confirmed && !confirmedAfter(prev, m) {
			break
		}
		i--
	}
	ms.messages = slices.Insert(ms.messages, i, m)
}

// confirmedAfter, a'nın b'den sonra sıralanıp sıralanmadığı.
func confirmedAfter(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (ms *MessageStream) indexLocked(state MessageState, id string) int {
	for i, m := range ms.messages {
		if m.State == state && m.ID == id {
			return i
		}
	}
	return -1
}

func (ms *MessageStream) removeLocked(state MessageState, id string) bool {
	i := ms.indexLocked(state, id)
	if i < 0 {
		return false
	}
	ms.messages = append(ms.messages[:i], ms.messages[i+1:]...)
	return true
}
