package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeWait: tek bir mesajı yazmak için üst süre.
	writeWait = 10 * time.Second

	// defaultPongWait: client heartbeat'i için beklenen üst süre.
	// Client 30 saniyede bir heartbeat gönderir; 3 kaçırma = 90s.
	defaultPongWait = 90 * time.Second

	// maxMessageSize: client'ın gönderebileceği en büyük frame (byte).
	maxMessageSize = 16 * 1024
)

// wsClient, Hub'a WebSocket üzerinden bağlı tek bir peer.
//
// Her bağlantı iki goroutine çalıştırır: readPump gelen event'leri Hub'a
// iletir, writePump peer.out'tan okuduklarını JSON olarak yazar.
type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	peer     *peer
	pongWait time.Duration
	log      zerolog.Logger
	mu       sync.Mutex
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.removePeer(c.peer)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("failed to set read deadline")
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Warn().Err(err).Msg("invalid message")
			continue
		}

		if ev.Op == OpHeartbeat {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
				c.log.Warn().Err(err).Msg("failed to set read deadline")
				return
			}
		}
		c.hub.dispatch(c.peer, ev)
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for ev := range c.peer.out {
		data, err := json.Marshal(ev)
		if err != nil {
			c.log.Error().Err(err).Str("op", ev.Op).Msg("failed to marshal event")
			continue
		}
		if err := c.writeMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	// out kapandı: Hub bağlantıyı çıkardı.
	_ = c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *wsClient) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
