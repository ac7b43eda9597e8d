package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brickrelay/go/internal/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := getEnv("RELAY_CONFIG", "relay.yaml")
	config, err := relay.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("tcp_address", config.TCPAddress()).
		Str("http_address", config.HTTP.Address).
		Int("max_consecutive_errors", config.Relay.MaxConsecutiveErrors).
		Bool("strict_handshake", config.Relay.StrictHandshake).
		Msg("starting brick relay")

	service, err := relay.NewService(config, clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create relay service")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil {
		log.Error().Err(err).Msg("relay service failed")
		os.Exit(1)
	}

	log.Info().Msg("brick relay shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
