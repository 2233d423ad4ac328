package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akinalp/pitchline/middleware"
)

// initRoutes, tüm endpoint'leri mux'a bağlar. /ws dışındaki tüm /api
// route'ları bearer JWT ister.
func initRoutes(mux *http.ServeMux, h *Handlers, authMw *middleware.AuthMiddleware) {
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}

	// Ops
	mux.HandleFunc("GET /api/health", h.Health.Check)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Profiles
	mux.Handle("GET /api/profiles/me", auth(h.Profile.Me))
	mux.Handle("GET /api/profiles/{id}", auth(h.Profile.Get))

	// Conversations
	mux.Handle("GET /api/conversations", auth(h.Conversation.List))
	mux.Handle("POST /api/conversations/direct", auth(h.Conversation.CreateDirect))
	mux.Handle("GET /api/conversations/groups", auth(h.Conversation.FindGroups))
	mux.Handle("POST /api/conversations/groups", auth(h.Conversation.CreateGroup))
	mux.Handle("GET /api/conversations/{id}/members", auth(h.Conversation.ListMembers))
	mux.Handle("POST /api/conversations/{id}/members", auth(h.Conversation.AddMember))
	mux.Handle("GET /api/conversations/{id}/membership", auth(h.Conversation.Membership))

	// Messages
	mux.Handle("GET /api/conversations/{id}/messages", auth(h.Message.List))
	mux.Handle("POST /api/conversations/{id}/messages", auth(h.Message.Send))
	mux.Handle("POST /api/messages/latest", auth(h.Message.Latest))
	mux.Handle("POST /api/messages/from-others", auth(h.Message.FromOthers))
	mux.Handle("GET /api/messages/{id}", auth(h.Message.Get))
	mux.Handle("DELETE /api/messages/{id}", auth(h.Message.Delete))

	// Read receipts
	mux.Handle("POST /api/reads/query", auth(h.Read.Query))
	mux.Handle("POST /api/reads/mine", auth(h.Read.Mine))
	mux.Handle("POST /api/rpc/mark_messages_read", auth(h.Read.MarkRead))

	// WebSocket: tarayıcılar upgrade sırasında header gönderemez,
	// JWT query parametresindedir ve handler kendisi doğrular.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
