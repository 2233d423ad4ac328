package main

import (
	"github.com/akinalp/pitchline/config"
	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/handlers"
	"github.com/akinalp/pitchline/realtime"
)

// Handlers, tüm HTTP handler instance'larını tutar.
type Handlers struct {
	Health       *handlers.HealthHandler
	Profile      *handlers.ProfileHandler
	Conversation *handlers.ConversationHandler
	Message      *handlers.MessageHandler
	Read         *handlers.ReadHandler
	WS           *realtime.Handler
}

func initHandlers(cfg *config.Config, db *database.DB, repos *Repositories, svcs *Services, limiters *Limiters, hub *realtime.Hub) *Handlers {
	return &Handlers{
		Health:       handlers.NewHealthHandler(db.Conn),
		Profile:      handlers.NewProfileHandler(repos.Profile),
		Conversation: handlers.NewConversationHandler(svcs.Conversation),
		Message:      handlers.NewMessageHandler(svcs.Message, limiters.Message),
		Read:         handlers.NewReadHandler(svcs.Read),
		WS:           realtime.NewHandler(hub, svcs.Token, cfg.Server.AllowedOrigins, cfg.Realtime.PongWait),
	}
}
