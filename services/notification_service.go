package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg/cache"
	"github.com/akinalp/pitchline/pkg/email"
	"github.com/akinalp/pitchline/repository"
)

// notifyTimeout, tek bir mesaj için tüm bildirimlerin üst süresi.
const notifyTimeout = 15 * time.Second

// PresenceChecker, kullanıcının açık realtime bağlantısı olup olmadığını söyler.
// realtime.Hub bunu karşılar.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// NotificationService, çevrimdışı alıcılara direct mesaj e-postası gönderir.
//
// Kurallar:
//   - Sadece direct (grup olmayan) konuşmalar
//   - Gönderen hariç, realtime bağlantısı olmayan ve e-postası kayıtlı üyeler
//   - (konuşma, alıcı) başına cooldown süresinde en fazla bir e-posta
type NotificationService interface {
	MessageNotifier
	Notify(ctx context.Context, msg *models.Message) int
	Close()
}

type notificationService struct {
	sender      email.EmailSender
	convRepo    repository.ConversationRepository
	profileRepo repository.ProfileRepository
	presence    PresenceChecker
	cooldowns   *cache.TTLCache[string, struct{}]
	log         zerolog.Logger
}

// NewNotificationService, constructor.
func NewNotificationService(
	sender email.EmailSender,
	convRepo repository.ConversationRepository,
	profileRepo repository.ProfileRepository,
	presence PresenceChecker,
	cooldown time.Duration,
	log zerolog.Logger,
) NotificationService {
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	return &notificationService{
		sender:      sender,
		convRepo:    convRepo,
		profileRepo: profileRepo,
		presence:    presence,
		cooldowns:   cache.New[string, struct{}](cooldown, time.Minute),
		log:         log.With().Str("component", "notifier").Logger(),
	}
}

// MessageSent, bildirimleri arka planda gönderir; mesaj gönderimini bekletmez.
func (s *notificationService) MessageSent(msg *models.Message) {
	copied := *msg
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		s.Notify(ctx, &copied)
	}()
}

// Notify, bildirimleri senkron gönderir ve gönderilen e-posta sayısını döner.
// Hatalar loglanır, çağırana dönmez.
func (s *notificationService) Notify(ctx context.Context, msg *models.Message) int {
	conv, err := s.convRepo.GetByID(ctx, msg.ConversationID)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", msg.ConversationID).Msg("failed to load conversation for notification")
		return 0
	}
	if conv.IsGroup {
		return 0
	}

	members, err := s.convRepo.ListMembers(ctx, msg.ConversationID)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", msg.ConversationID).Msg("failed to load members for notification")
		return 0
	}

	senderName := msg.SenderName
	sent := 0
	for _, m := range members {
		if m.ProfileID == msg.SenderID || s.presence.IsOnline(m.ProfileID) {
			continue
		}

		profile, err := s.profileRepo.GetByID(ctx, m.ProfileID)
		if err != nil || profile.Email == nil || *profile.Email == "" {
			continue
		}

		key := msg.ConversationID + ":" + m.ProfileID
		if !s.cooldowns.SetIfAbsent(key, struct{}{}) {
			continue
		}

		if senderName == "" {
			senderName = "Someone"
		}
		err = s.sender.SendMessageNotification(ctx, email.MessageNotification{
			To:             *profile.Email,
			SenderName:     senderName,
			ConversationID: msg.ConversationID,
			Content:        msg.Content,
		})
		if err != nil {
			// Başarısız gönderim cooldown'ı tüketmez.
			s.cooldowns.Delete(key)
			s.log.Error().Err(err).Str("user_id", m.ProfileID).Msg("failed to send message notification")
			continue
		}
		sent++
	}
	return sent
}

func (s *notificationService) Close() {
	s.cooldowns.Close()
}
