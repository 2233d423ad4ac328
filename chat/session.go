// Package chat, realtime chat client'ı: konuşma listesi (okunmamış sayaçları,
// topluluk kanalı tekilleştirmesi), mesaj akışı (optimistic send),
// read receipt yayılımı, yazıyor göstergesi ve global presence.
//
// Mimari:
//   - Session: viewer kimliği + Store + realtime.Client + paylaşılan
//     CommunityRegistrar ve RefreshBus. Tüm bileşenler Session'dan üretilir.
//   - Store: backend erişimi (chat/inproc veya chat/chatapi)
//   - realtime.Client: change-feed ve presence (Hub.Connect veya realtime.Dial)
//
// Realtime callback'leri bağlantının okuma goroutine'inde çalışır; bu paket
// callback içinden Store veya bloklayan Channel çağrısı yapmaz, işi ayrı
// goroutine'e devreder.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/realtime"
	"github.com/rs/zerolog"
)

// Varsayılan zamanlamalar
const (
	DefaultTypingTimeout    = 3 * time.Second
	DefaultPresenceInterval = 15 * time.Second
	DefaultCommunityTitle   = "Community Chat"

	// typingRetryDelay, abonelik tamamlanmadan yapılan track'in tekrar denenme gecikmesi.
	typingRetryDelay = 200 * time.Millisecond
)

// Viewer, oturum sahibi kullanıcı.
type Viewer struct {
	ID          string
	DisplayName string
	Role        models.Role
}

// Options, NewSession bağımlılıkları. Store ve Realtime zorunludur.
type Options struct {
	Store    Store
	Realtime realtime.Client
	Logger   zerolog.Logger

	// Registrar ve Bus aynı process'teki oturumlar arasında paylaşılabilir.
	// nil ise oturuma özel yenisi oluşturulur.
	Registrar *CommunityRegistrar
	Bus       *RefreshBus

	TypingTimeout    time.Duration
	PresenceInterval time.Duration
}

// Session, bir viewer'ın chat bağlamı.
type Session struct {
	viewer    Viewer
	store     Store
	rt        realtime.Client
	log       zerolog.Logger
	registrar *CommunityRegistrar
	bus       *RefreshBus

	typingTimeout    time.Duration
	presenceInterval time.Duration
}

// NewSession, opts'taki eksik alanları varsayılanlarla doldurarak Session oluşturur.
func NewSession(viewer Viewer, opts Options) (*Session, error) {
	if viewer.ID == "" {
		return nil, fmt.Errorf("%w: viewer id is required", pkg.ErrBadRequest)
	}
	if opts.Store == nil || opts.Realtime == nil {
		return nil, errors.New("chat: store and realtime client are required")
	}

	s := &Session{
		viewer:           viewer,
		store:            opts.Store,
		rt:               opts.Realtime,
		log:              opts.Logger.With().Str("component", "chat").Str("user_id", viewer.ID).Logger(),
		registrar:        opts.Registrar,
		bus:              opts.Bus,
		typingTimeout:    opts.TypingTimeout,
		presenceInterval: opts.PresenceInterval,
	}
	if s.registrar == nil {
		s.registrar = NewCommunityRegistrar(DefaultCommunityTitle, opts.Logger)
	}
	if s.bus == nil {
		s.bus = NewRefreshBus()
	}
	if s.typingTimeout <= 0 {
		s.typingTimeout = DefaultTypingTimeout
	}
	if s.presenceInterval <= 0 {
		s.presenceInterval = DefaultPresenceInterval
	}
	return s, nil
}

func (s *Session) Viewer() Viewer                 { return s.viewer }
func (s *Session) Bus() *RefreshBus               { return s.bus }
func (s *Session) Registrar() *CommunityRegistrar { return s.registrar }

// EnsureCommunityChannel, viewer için topluluk kanalını bulur/oluşturur ve
// viewer'ı üye yapar. Rolü uygun değilse "" döner.
func (s *Session) EnsureCommunityChannel(ctx context.Context) (string, error) {
	return s.registrar.Ensure(ctx, s.store, s.viewer.ID, s.viewer.Role)
}

// StartDirect, other ile direct konuşmayı başlatır veya mevcut olanı döner.
func (s *Session) StartDirect(ctx context.Context, otherID string) (*models.Conversation, error) {
	conv, err := s.store.StartDirect(ctx, otherID)
	if err != nil {
		return nil, err
	}
	s.bus.Publish()
	return conv, nil
}

// MarkMessagesAsRead, konuşmadaki diğerlerinden gelen okunmamış mesajları
// okundu işaretler ve başarılıysa RefreshBus'ı senkron tetikler.
// Hata dönmez; backend hatası loglanır ve false döner.
func (s *Session) MarkMessagesAsRead(ctx context.Context, conversationID string) bool {
	count, err := s.store.MarkRead(ctx, conversationID)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to mark messages as read")
		return false
	}
	s.log.Debug().Str("conversation_id", conversationID).Int("count", count).Msg("messages marked as read")
	s.bus.Publish()
	return true
}
