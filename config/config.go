// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Her alt bölüm ayrı bir struct'tır; değerler caarlos0/env tag'leri ile doldurulur.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config, backend sunucusunun tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
	Chat     ChatConfig
	Email    EmailConfig
	Redis    RedisConfig
	Log      LogConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host           string   `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port           int      `env:"SERVER_PORT" envDefault:"9090"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8081"`
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string `env:"DATABASE_PATH" envDefault:"./data/pitchline.db"`
}

// AuthConfig, dış kimlik sağlayıcının imzaladığı JWT'lerin doğrulama ayarları.
// Token'ları bu servis üretmez; sadece doğrular.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"JWT_ISSUER"` // Boşsa issuer kontrolü yapılmaz
}

// RealtimeConfig, WebSocket broker ayarları.
type RealtimeConfig struct {
	PongWait       time.Duration `env:"REALTIME_PONG_WAIT" envDefault:"90s"`
	SendBufferSize int           `env:"REALTIME_SEND_BUFFER" envDefault:"256"`
	MembershipTTL  time.Duration `env:"REALTIME_MEMBERSHIP_TTL" envDefault:"30s"`
}

// ChatConfig, topluluk kanalı ve client zamanlayıcı varsayılanları.
type ChatConfig struct {
	CommunityTitle   string        `env:"CHAT_COMMUNITY_TITLE" envDefault:"Community Chat"`
	TypingTimeout    time.Duration `env:"CHAT_TYPING_TIMEOUT" envDefault:"3s"`
	PresenceInterval time.Duration `env:"CHAT_PRESENCE_INTERVAL" envDefault:"15s"`
}

// EmailConfig, çevrimdışı DM bildirimleri için Resend ayarları (opsiyonel).
type EmailConfig struct {
	ResendAPIKey string        `env:"RESEND_API_KEY"`
	FromEmail    string        `env:"RESEND_FROM"`
	AppURL       string        `env:"APP_URL"`
	Cooldown     time.Duration `env:"NOTIFY_COOLDOWN" envDefault:"10m"`
}

// Enabled, e-posta gönderimi için gerekli tüm alanlar dolu mu.
func (c EmailConfig) Enabled() bool {
	return c.ResendAPIKey != "" && c.FromEmail != "" && c.AppURL != ""
}

// RedisConfig, çok node'lu change-feed relay ayarı (opsiyonel).
type RedisConfig struct {
	URL     string `env:"REDIS_URL"`
	Channel string `env:"REDIS_RELAY_CHANNEL" envDefault:"pitchline:changes"`
}

// LogConfig, zerolog ayarları.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler; yoksa sessizce devam eder.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate, zorunlu alanları ve aralıkları kontrol eder.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}
	if c.Realtime.SendBufferSize <= 0 {
		return fmt.Errorf("invalid REALTIME_SEND_BUFFER: %d", c.Realtime.SendBufferSize)
	}
	if strings.TrimSpace(c.Chat.CommunityTitle) == "" {
		return fmt.Errorf("CHAT_COMMUNITY_TITLE must not be empty")
	}
	return nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
