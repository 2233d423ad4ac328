package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akinalp/pitchline/realtime"
)

// ─── Yayın (kendini duyurma) ───

// PresenceBroadcaster, viewer'ı presence:global kapsamında çevrimiçi duyurur
// ve presenceInterval aralıklarla aynı kaydı yeniden yayınlar.
type PresenceBroadcaster struct {
	s       *Session
	channel realtime.Channel
	meta    realtime.PresenceMeta

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// BroadcastPresence, global kapsama abone olur ve {user_id, name, online_at} yayınlar.
func (s *Session) BroadcastPresence(ctx context.Context) (*PresenceBroadcaster, error) {
	ch := s.rt.Channel(realtime.PresenceTopic)
	if err := ch.Subscribe(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe presence channel: %w", err)
	}

	b := &PresenceBroadcaster{
		s:       s,
		channel: ch,
		meta: realtime.PresenceMeta{
			"user_id":   s.viewer.ID,
			"name":      s.viewer.DisplayName,
			"online_at": time.Now().UTC().Format(time.RFC3339),
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := ch.Track(ctx, b.meta); err != nil {
		_ = ch.Unsubscribe(ctx)
		return nil, fmt.Errorf("failed to track presence: %w", err)
	}

	go b.keepAlive()
	return b, nil
}

func (b *PresenceBroadcaster) keepAlive() {
	defer close(b.done)

	ticker := time.NewTicker(b.s.presenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), b.s.presenceInterval)
			if err := b.channel.Track(ctx, b.meta); err != nil {
				b.s.log.Debug().Err(err).Msg("presence refresh failed")
			}
			cancel()
		case <-b.stop:
			return
		}
	}
}

// Close, yenilemeyi durdurur, presence kaydını kaldırır ve aboneliği kapatır.
func (b *PresenceBroadcaster) Close(ctx context.Context) error {
	b.once.Do(func() { close(b.stop) })
	<-b.done

	_ = b.channel.Untrack(ctx)
	return b.channel.Unsubscribe(ctx)
}

// ─── Gözlem ───

// PresenceWatcher, hedef kullanıcının çevrimiçi olup olmadığını global
// kapsamın tam snapshot'ından türetir. Kullanıcının birden fazla oturumu
// olabilir; biri kapanınca diğerleri çevrimiçi tutar.
type PresenceWatcher struct {
	targetID string
	channel  realtime.Channel

	mu     sync.Mutex
	online bool

	changes listeners[bool]
}

// WatchPresence, global kapsama salt okunur abone olur.
func (s *Session) WatchPresence(ctx context.Context, targetUserID string) (*PresenceWatcher, error) {
	w := &PresenceWatcher{targetID: targetUserID}
	w.channel = s.rt.Channel(realtime.PresenceTopic).OnPresence(w.onPresence)

	if err := w.channel.Subscribe(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe presence channel: %w", err)
	}
	return w, nil
}

// IsOnline, hedefin son bilinen durumu.
func (w *PresenceWatcher) IsOnline() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// OnChange, durum değiştiğinde yeni değerle çağrılır.
func (w *PresenceWatcher) OnChange(fn func(online bool)) (cancel func()) {
	return w.changes.add(fn)
}

// Close, aboneliği kapatır.
func (w *PresenceWatcher) Close(ctx context.Context) error {
	return w.channel.Unsubscribe(ctx)
}

func (w *PresenceWatcher) onPresence(realtime.PresenceEvent) {
	online := containsUser(w.channel.PresenceState(), w.targetID)

	w.mu.Lock()
	changed := online != w.online
	w.online = online
	w.mu.Unlock()

	if changed {
		w.changes.emit(online)
	}
}

// containsUser, snapshot'ta key'i veya user_id meta'sı userID olan kayıt var mı.
func containsUser(state realtime.PresenceState, userID string) bool {
	if len(state[userID]) > 0 {
		return true
	}
	for _, metas := range state {
		for _, m := range metas {
			if m.String("user_id") == userID {
				return true
			}
		}
	}
	return false
}
