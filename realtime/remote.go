package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DialOptions, RemoteConn ayarları. Sıfır değerler varsayılanlarla doldurulur.
type DialOptions struct {
	HeartbeatInterval time.Duration // varsayılan 30s
	MinBackoff        time.Duration // varsayılan 500ms
	MaxBackoff        time.Duration // varsayılan 30s
	Logger            zerolog.Logger
	Dialer            *websocket.Dialer
}

func (o *DialOptions) withDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// RemoteConn, sunucunun /ws endpoint'ine WebSocket ile bağlanan client.
//
// Bağlantı koparsa capped exponential backoff ile yeniden bağlanır; joined
// kanallar tekrar join edilir, track edilmiş meta'lar tekrar yayınlanır.
type RemoteConn struct {
	*core
	target string
	opts   DialOptions
	log    zerolog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	ws      *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial, rawURL'e (ör: ws://localhost:9090/ws) token ile bağlanır.
// İlk bağlantı başarısız olursa hata döner; sonraki kopmalarda otomatik yeniden bağlanır.
func Dial(ctx context.Context, rawURL, token string, opts DialOptions) (*RemoteConn, error) {
	opts.withDefaults()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	runCtx, cancel := context.WithCancel(context.Background())
	rc := &RemoteConn{
		target: u.String(),
		opts:   opts,
		log:    opts.Logger.With().Str("component", "realtime-client").Logger(),
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	rc.core = newCore(rc.send, rc.log)

	ws, err := rc.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	go rc.run(ws)
	return rc, nil
}

func (rc *RemoteConn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := rc.opts.Dialer.DialContext(ctx, rc.target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial realtime (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial realtime: %w", err)
	}
	ws.SetReadLimit(maxMessageSize * 64)

	rc.mu.Lock()
	rc.ws = ws
	rc.mu.Unlock()
	return ws, nil
}

// run, bağlantı ömrü boyunca oku → koptuysa bekle → yeniden bağlan döngüsü.
func (rc *RemoteConn) run(ws *websocket.Conn) {
	defer close(rc.done)

	for {
		err := rc.serve(ws)

		rc.mu.Lock()
		rc.ws = nil
		rc.mu.Unlock()
		rc.core.disconnected()

		if rc.ctx.Err() != nil {
			return
		}
		rc.log.Warn().Err(err).Msg("connection lost, reconnecting")

		ws = rc.reconnect()
		if ws == nil {
			return
		}
		if rc.ctx.Err() != nil {
			ws.Close()
			return
		}
		rc.log.Info().Msg("reconnected")
		go rc.core.resubscribe(rc.ctx)
	}
}

func (rc *RemoteConn) reconnect() *websocket.Conn {
	backoff := rc.opts.MinBackoff
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-rc.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ws, err := rc.dial(rc.ctx)
		if err == nil {
			return ws
		}
		rc.log.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect attempt failed")

		backoff *= 2
		if backoff > rc.opts.MaxBackoff {
			backoff = rc.opts.MaxBackoff
		}
	}
}

// serve, okuma döngüsünü ve heartbeat ticker'ını çalıştırır; okuma hatasında döner.
func (rc *RemoteConn) serve(ws *websocket.Conn) error {
	defer ws.Close()

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(rc.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := rc.send(Event{Op: OpHeartbeat}); err != nil {
					rc.log.Debug().Err(err).Msg("heartbeat failed")
				}
			case <-stop:
				return
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			rc.log.Warn().Err(err).Msg("invalid message from server")
			continue
		}
		rc.core.handle(ev)
	}
}

func (rc *RemoteConn) send(ev Event) error {
	rc.mu.Lock()
	ws := rc.ws
	rc.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close, yeniden bağlanma döngüsünü durdurur ve bağlantıyı kapatır.
func (rc *RemoteConn) Close() error {
	rc.cancel()

	rc.mu.Lock()
	ws := rc.ws
	rc.mu.Unlock()
	if ws != nil {
		rc.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		rc.writeMu.Unlock()
		ws.Close()
	}

	<-rc.done
	rc.core.close()
	return nil
}
