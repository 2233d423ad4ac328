package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/akinalp/pitchline/realtime"
)

// Typer, bir konuşmada yazmakta olan kullanıcı.
type Typer struct {
	UserID string
	Name   string
}

// TypingIndicator, konuşma başına yazıyor göstergesi.
//
// Durum makinesi: idle → typing (StartTyping) → idle (timeout, StopTyping
// veya Close). Abonelik arka planda kurulur; henüz tamamlanmadan yapılan
// track 200ms sonra bir kez tekrar denenir.
type TypingIndicator struct {
	s              *Session
	conversationID string
	channel        realtime.Channel

	subscribed chan struct{}
	subErr     error

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	gen    uint64
	typers []Typer

	changes listeners[[]Typer]
}

// Typing, konuşmanın typing:<id> kanalına abone olan göstergeyi döner.
// Abonelik beklenmez.
func (s *Session) Typing(conversationID string) *TypingIndicator {
	t := &TypingIndicator{
		s:              s,
		conversationID: conversationID,
		subscribed:     make(chan struct{}),
	}
	t.channel = s.rt.Channel(realtime.TypingTopic(conversationID)).OnPresence(t.onPresence)

	go func() {
		defer close(t.subscribed)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.channel.Subscribe(ctx); err != nil {
			t.subErr = err
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to subscribe typing channel")
		}
	}()
	return t
}

// Ready, abonelik denemesi bitince kapanır.
func (t *TypingIndicator) Ready() <-chan struct{} { return t.subscribed }

// Typers, viewer hariç yazmakta olanlar (isme göre sıralı).
func (t *TypingIndicator) Typers() []Typer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Typer(nil), t.typers...)
}

// OnChange, yazanlar kümesi değiştiğinde çağrılır.
func (t *TypingIndicator) OnChange(fn func([]Typer)) (cancel func()) {
	return t.changes.add(fn)
}

// StartTyping, yerel durumu typing yapar, ilk geçişte presence yayınlar ve
// hareketsizlik zamanlayıcısını yeniden kurar.
func (t *TypingIndicator) StartTyping(ctx context.Context) error {
	t.mu.Lock()
	wasTyping := t.typing
	t.typing = true
	t.armLocked()
	t.mu.Unlock()

	if wasTyping {
		return nil
	}

	err := t.track(ctx)
	if err != nil {
		t.s.log.Warn().Err(err).Str("conversation_id", t.conversationID).Msg("failed to publish typing state")
		// Sonraki tuş vuruşu yeniden denesin.
		t.mu.Lock()
		t.typing = false
		t.mu.Unlock()
	}
	return err
}

func (t *TypingIndicator) track(ctx context.Context) error {
	viewer := t.s.viewer
	meta := realtime.PresenceMeta{
		"user_id": viewer.ID,
		"name":    viewer.DisplayName,
		"typing":  true,
	}

	err := t.channel.Track(ctx, meta)
	if !errors.Is(err, realtime.ErrNotSubscribed) {
		return err
	}

	select {
	case <-time.After(typingRetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return t.channel.Track(ctx, meta)
}

// armLocked, zamanlayıcıyı yeniden kurar. gen eski zamanlayıcıların geç
// tetiklenmesini etkisiz kılar.
func (t *TypingIndicator) armLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.s.typingTimeout, func() {
		t.mu.Lock()
		stale := gen != t.gen
		t.mu.Unlock()
		if stale {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.StopTyping(ctx); err != nil {
			t.s.log.Debug().Err(err).Str("conversation_id", t.conversationID).Msg("typing auto-stop failed")
		}
	})
}

// StopTyping, yerel durumu temizler, zamanlayıcıyı iptal eder ve presence
// kaydını kaldırır.
func (t *TypingIndicator) StopTyping(ctx context.Context) error {
	t.mu.Lock()
	t.typing = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	return t.channel.Untrack(ctx)
}

// Close, presence kaydını kaldırır ve aboneliği kapatır.
func (t *TypingIndicator) Close(ctx context.Context) error {
	select {
	case <-t.subscribed:
	case <-ctx.Done():
		return ctx.Err()
	}
	_ = t.StopTyping(ctx)
	return t.channel.Unsubscribe(ctx)
}

// onPresence, her join/leave/sync olayında yazanlar kümesini kanalın güncel
// snapshot'ından baştan kurar.
func (t *TypingIndicator) onPresence(realtime.PresenceEvent) {
	next := typersFrom(t.channel.PresenceState(), t.s.viewer.ID)

	t.mu.Lock()
	same := equalTypers(t.typers, next)
	t.typers = next
	t.mu.Unlock()

	if !same {
		t.changes.emit(append([]Typer(nil), next...))
	}
}

func typersFrom(state realtime.PresenceState, viewerID string) []Typer {
	out := make([]Typer, 0, len(state))
	for key, metas := range state {
		if key == viewerID {
			continue
		}
		for _, m := range metas {
			if !m.Bool("typing") {
				continue
			}
			name := m.String("name")
			if name == "" {
				name = key
			}
			out = append(out, Typer{UserID: key, Name: name})
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func equalTypers(a, b []Typer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
