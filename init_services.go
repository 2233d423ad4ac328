package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/akinalp/pitchline/config"
	"github.com/akinalp/pitchline/pkg/email"
	"github.com/akinalp/pitchline/pkg/ratelimit"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/services"
)

// Services, tüm service instance'larını tutar.
// Notifier e-posta ayarları yoksa nil'dir.
type Services struct {
	Token        services.TokenService
	Conversation services.ConversationService
	Message      services.MessageService
	Read         services.ReadService
	Notifier     services.NotificationService
}

// Limiters, rate limiter instance'ları.
type Limiters struct {
	Message *ratelimit.MessageRateLimiter
}

// initServices, service'leri dependency sırasına göre oluşturur.
func initServices(cfg *config.Config, repos *Repositories, hub *realtime.Hub, log zerolog.Logger) (*Services, *Limiters) {
	var notifier services.NotificationService
	var messageNotifier services.MessageNotifier
	if cfg.Email.Enabled() {
		sender := email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.FromEmail, cfg.Email.AppURL)
		notifier = services.NewNotificationService(sender, repos.Conversation, repos.Profile, hub, cfg.Email.Cooldown, log)
		messageNotifier = notifier
		log.Info().Msg("offline message e-mail notifications enabled")
	}

	svcs := &Services{
		Token:        services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Conversation: services.NewConversationService(repos.Conversation, repos.Profile, hub),
		Message:      services.NewMessageService(repos.Message, repos.Conversation, repos.Profile, hub, messageNotifier),
		Read:         services.NewReadService(repos.Read, repos.Conversation, hub),
		Notifier:     notifier,
	}

	// 10 saniyede 20 mesaj; aşılırsa 15 saniye cooldown.
	limiters := &Limiters{
		Message: ratelimit.NewMessageRateLimiter(20, 10*time.Second, 15*time.Second),
	}
	return svcs, limiters
}
