package relay

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the full relay configuration
type Config struct {
	Listen struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"listen"`

	HTTP struct {
		// Empty disables the admin API and the WebSocket endpoint
		Address string `yaml:"address"`
	} `yaml:"http"`

	Relay RelayConfig `yaml:"relay"`
	NATS  NATSConfig  `yaml:"nats"`

	Log struct {
		Level string `yaml:"level"`
		// Zero disables the periodic stats line
		StatsInterval time.Duration `yaml:"stats_interval"`
	} `yaml:"log"`
}

// RelayConfig groups the per-connection settings
type RelayConfig struct {
	HandlerConfig   `yaml:",inline"`
	TransportConfig `yaml:",inline"`
}

// Handler returns the handler settings with the transport limits filled in
func (c RelayConfig) Handler() HandlerConfig {
	h := c.HandlerConfig
	h.Transport = c.TransportConfig
	return h
}

// DefaultConfig returns default configuration for the relay
func DefaultConfig() Config {
	var c Config
	c.Listen.Address = "0.0.0.0"
	c.Listen.Port = 12345
	c.HTTP.Address = ":8082"
	c.Relay = RelayConfig{
		HandlerConfig:   DefaultHandlerConfig(),
		TransportConfig: DefaultTransportConfig(),
	}
	c.NATS = DefaultNATSConfig()
	c.Log.Level = "info"
	c.Log.StatsInterval = time.Minute
	return c
}

// TCPAddress is the host:port the TCP listener binds
func (c Config) TCPAddress() string {
	return net.JoinHostPort(c.Listen.Address, strconv.Itoa(c.Listen.Port))
}

// Validate checks the configuration for values the relay cannot run with
func (c Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Relay.MaxConsecutiveErrors < 0 {
		return errors.New("relay.max_consecutive_errors must not be negative")
	}
	if c.Relay.SendBuffer <= 0 {
		return errors.New("relay.send_buffer must be positive")
	}
	if c.Relay.MaxMessageSize <= 0 {
		return errors.New("relay.max_message_size must be positive")
	}
	if c.Relay.ReadTimeout < 0 || c.Relay.WriteTimeout < 0 {
		return errors.New("relay timeouts must not be negative")
	}
	if c.Log.StatsInterval < 0 {
		return errors.New("log.stats_interval must not be negative")
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		return errors.New("nats.subject_prefix is required when nats.url is set")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// LoadConfig reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Listen.Address = getEnv("RELAY_ADDRESS", c.Listen.Address)
	c.Listen.Port = getEnvAsInt("RELAY_PORT", c.Listen.Port)
	c.HTTP.Address = getEnv("RELAY_HTTP_ADDR", c.HTTP.Address)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
