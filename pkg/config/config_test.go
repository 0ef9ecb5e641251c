package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Signaling.RingTimeout)
	assert.Equal(t, 1000, cfg.Signaling.MaxConnections)
	assert.Equal(t, "calls:events", cfg.Signaling.CallEventsChannel)
	assert.False(t, cfg.Signaling.RequireAuth)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "PORT=9090\nSIGNALING_RING_TIMEOUT=45s\nWS_ALLOWED_ORIGINS=https://clientfriendclub.com,https://app.clientfriendclub.com\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ENV_FILE", path)
	// Variables already present in the environment win over the file.
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Signaling.RingTimeout)
	assert.Equal(t, []string{"https://clientfriendclub.com", "https://app.clientfriendclub.com"}, cfg.Signaling.AllowedOrigins)

	// godotenv sets process variables; clear the ones the file introduced.
	os.Unsetenv("SIGNALING_RING_TIMEOUT")
	os.Unsetenv("WS_ALLOWED_ORIGINS")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Environment: "production"},
		JWT:       JWTConfig{Secret: "short"},
		Signaling: SignalingConfig{RingTimeout: time.Second, MaxConnections: 1, PersistQueueSize: 1},
	}
	assert.ErrorContains(t, cfg.Validate(), "at least 32 characters")

	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.Signaling.RingTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "SIGNALING_RING_TIMEOUT")

	cfg.Signaling.RingTimeout = time.Second
	cfg.Server.Environment = "development"
	cfg.JWT.Secret = ""
	cfg.Signaling.RequireAuth = true
	assert.ErrorContains(t, cfg.Validate(), "SIGNALING_REQUIRE_AUTH")
}
