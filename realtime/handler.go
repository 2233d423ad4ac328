package realtime

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/pitchline/models"
)

// TokenValidator, WebSocket handshake'inde JWT doğrulaması.
// services paketine bağımlılık (ve import cycle) yaratmamak için burada tanımlıdır.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// Handler, GET /ws?token=JWT isteklerini WebSocket'e yükseltir.
type Handler struct {
	hub       *Hub
	validator TokenValidator
	upgrader  websocket.Upgrader
	pongWait  time.Duration
}

// NewHandler, yeni bir WebSocket handler oluşturur.
//
// allowedOrigins boşsa veya "*" içeriyorsa tüm origin'ler kabul edilir.
// Origin header'ı olmayan (tarayıcı dışı) client'lar her zaman kabul edilir.
func NewHandler(hub *Hub, validator TokenValidator, allowedOrigins []string, pongWait time.Duration) *Handler {
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	return &Handler{
		hub:       hub,
		validator: validator,
		pongWait:  pongWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleConnection, token'ı doğrular, bağlantıyı yükseltir ve pump'ları başlatır.
// Tarayıcılar WebSocket handshake'inde header gönderemediği için token query'dedir.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.validator.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.Subject

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn().Err(err).Str("user_id", userID).Msg("upgrade failed")
		return
	}

	p := h.hub.addPeer(userID)
	client := &wsClient{
		hub:      h.hub,
		conn:     conn,
		peer:     p,
		pongWait: h.pongWait,
		log:      h.hub.log.With().Str("user_id", userID).Uint64("peer", p.id).Logger(),
	}

	go client.writePump()
	client.readPump()
}
