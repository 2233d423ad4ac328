// Package redisrelay, realtime.Relay'in Redis pub/sub implementasyonu.
//
// Her node değişiklikleri tek bir Redis kanalına yayınlar ve aynı kanalı
// dinler; kendi yayınladığı mesajları origin ID'si ile ayıklar.
package redisrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/akinalp/pitchline/realtime"
)

// envelope, Redis kanalındaki mesaj formatı.
type envelope struct {
	Origin string          `json:"origin"`
	Change realtime.Change `json:"change"`
}

// Relay, Redis pub/sub üzerinden node'lar arası change fan-out.
type Relay struct {
	client  redis.UniversalClient
	channel string
	nodeID  string
	log     zerolog.Logger
}

// New, redisURL'e bağlanır (ör: redis://localhost:6379/0) ve bağlantıyı ping ile doğrular.
func New(ctx context.Context, redisURL, channel string, log zerolog.Logger) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, channel, log), nil
}

// NewWithClient, hazır bir client ile Relay oluşturur.
func NewWithClient(client redis.UniversalClient, channel string, log zerolog.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		nodeID:  uuid.NewString(),
		log:     log.With().Str("component", "redisrelay").Logger(),
	}
}

// Publish, değişikliği bu node'un origin ID'siyle yayınlar.
func (r *Relay) Publish(ctx context.Context, change realtime.Change) error {
	payload, err := r.encode(change)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Subscribe, diğer node'ların değişikliklerini fn'e iletir; ctx bitene kadar bloklar.
func (r *Relay) Subscribe(ctx context.Context, fn func(realtime.Change)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Str("node", r.nodeID).Msg("relay subscribed")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(msg.Payload, fn)
		}
	}
}

// Close, Redis client'ını kapatır.
func (r *Relay) Close() error {
	return r.client.Close()
}

func (r *Relay) encode(change realtime.Change) (string, error) {
	raw, err := json.Marshal(envelope{Origin: r.nodeID, Change: change})
	if err != nil {
		return "", fmt.Errorf("failed to encode change envelope: %w", err)
	}
	return string(raw), nil
}

// handle, payload'ı çözer; kendi origin'imizden gelenleri atlar.
func (r *Relay) handle(payload string, fn func(realtime.Change)) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn().Err(err).Msg("invalid relay payload")
		return
	}
	if env.Origin == r.nodeID {
		return
	}
	fn(env.Change)
}
