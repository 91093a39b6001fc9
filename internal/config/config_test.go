package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("API_URL", "http://localhost:8000")

	cfg := LoadConfig()

	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, "ws://localhost:8000", cfg.WSURL)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.HealthTimeout)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, 20, cfg.VitalsHistorySize)
	assert.Equal(t, "clinical_staff", cfg.AcknowledgedBy)
	assert.Equal(t, 2.0, cfg.ReconnectBackoff)
}

func TestLoadConfig_StreamURLOverride(t *testing.T) {
	t.Setenv("API_URL", "https://api.example.org/")
	t.Setenv("WS_URL", "wss://stream.example.org")

	cfg := LoadConfig()

	assert.Equal(t, "https://api.example.org", cfg.APIURL)
	assert.Equal(t, "wss://stream.example.org", cfg.WSURL)
}

func TestLoadConfig_ParsesTunables(t *testing.T) {
	t.Setenv("RECONNECT_DELAY", "250ms")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "0")
	t.Setenv("RECONNECT_BACKOFF", "1")
	t.Setenv("LOG_TO_CONSOLE", "TRUE")
	t.Setenv("HEALTH_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()

	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, 0, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 1.0, cfg.ReconnectBackoff)
	assert.True(t, cfg.LogToConsole)
	assert.Equal(t, 5*time.Second, cfg.HealthTimeout)
}

func TestStreamURLFromAPI(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000", StreamURLFromAPI("http://localhost:8000"))
	assert.Equal(t, "wss://api.example.org", StreamURLFromAPI("https://api.example.org"))
	assert.Equal(t, "ws://already", StreamURLFromAPI("ws://already"))
}
