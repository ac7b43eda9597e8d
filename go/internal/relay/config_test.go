package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:12345", config.TCPAddress())
	assert.Equal(t, ":8082", config.HTTP.Address)
	assert.Equal(t, 5, config.Relay.MaxConsecutiveErrors)
	assert.True(t, config.Relay.StrictHandshake)
	assert.Equal(t, 10*time.Second, config.Relay.WriteTimeout)
	assert.Zero(t, config.Relay.ReadTimeout)
	assert.Empty(t, config.NATS.URL)
	assert.Equal(t, "relay.state", config.NATS.SubjectPrefix)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen:
  address: 127.0.0.1
  port: 9000
relay:
  max_consecutive_errors: 2
  strict_handshake: false
  send_buffer: 16
  max_message_size: 4096
  read_timeout: 30s
nats:
  subject_prefix: games.state
log:
  level: debug
`), 0o600))

	t.Setenv("RELAY_PORT", "9100")
	t.Setenv("NATS_URL", "nats://nats:4222")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", config.TCPAddress())
	assert.Equal(t, 2, config.Relay.MaxConsecutiveErrors)
	assert.False(t, config.Relay.StrictHandshake)
	assert.Equal(t, 16, config.Relay.SendBuffer)
	assert.Equal(t, 4096, config.Relay.MaxMessageSize)
	assert.Equal(t, 30*time.Second, config.Relay.ReadTimeout)
	assert.Equal(t, 10*time.Second, config.Relay.WriteTimeout)
	assert.Equal(t, "nats://nats:4222", config.NATS.URL)
	assert.Equal(t, "games.state", config.NATS.SubjectPrefix)
	assert.Equal(t, "debug", config.Log.Level)

	handler := config.Relay.Handler()
	assert.Equal(t, 4096, handler.Transport.MaxMessageSize)
	assert.Equal(t, 30*time.Second, handler.Transport.ReadTimeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Listen.Port = 70000 }},
		{"negative error limit", func(c *Config) { c.Relay.MaxConsecutiveErrors = -1 }},
		{"empty send buffer", func(c *Config) { c.Relay.SendBuffer = 0 }},
		{"empty message size", func(c *Config) { c.Relay.MaxMessageSize = 0 }},
		{"negative timeout", func(c *Config) { c.Relay.WriteTimeout = -time.Second }},
		{"nats without prefix", func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.SubjectPrefix = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [oops"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
