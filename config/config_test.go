package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "Community Chat", cfg.Chat.CommunityTitle)
	assert.Equal(t, 3*time.Second, cfg.Chat.TypingTimeout)
	assert.Equal(t, 15*time.Second, cfg.Chat.PresenceInterval)
	assert.Equal(t, 256, cfg.Realtime.SendBufferSize)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:8081"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Email.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "8088")
	t.Setenv("CHAT_TYPING_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Chat.TypingTimeout)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
}

func TestValidate_Ranges(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
}

func TestEmailConfig_Enabled(t *testing.T) {
	c := EmailConfig{ResendAPIKey: "re_x", FromEmail: "chat@example.com"}
	assert.False(t, c.Enabled())

	c.AppURL = "https://app.example.com"
	assert.True(t, c.Enabled())
}
