package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// StatePublisher mirrors accepted player states to an external sink
type StatePublisher interface {
	PublishState(ctx context.Context, state PlayerState) error
	Close() error
}

// NoOpPublisher drops every state; used when no NATS URL is configured
type NoOpPublisher struct{}

func (NoOpPublisher) PublishState(ctx context.Context, state PlayerState) error { return nil }
func (NoOpPublisher) Close() error                                            { return nil }

// NATSConfig holds configuration for the NATS state mirror
type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// DefaultNATSConfig leaves the mirror disabled
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		SubjectPrefix: "relay.state",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher publishes every accepted state on <prefix>.<playerID>
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// stateEnvelope is the mirrored message body
type stateEnvelope struct {
	PlayerID   string          `json:"playerId"`
	Seq        uint64          `json:"seq"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Payload    json.RawMessage `json:"payload"`
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(config NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("brickrelay"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, prefix: config.SubjectPrefix}, nil
}

// Subject returns the subject a player's states are published on
func (p *NATSPublisher) Subject(playerID string) string {
	return p.prefix + "." + playerID
}

func (p *NATSPublisher) PublishState(ctx context.Context, state PlayerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(stateEnvelope{
		PlayerID:   state.PlayerID,
		Seq:        state.Seq,
		ReceivedAt: state.ReceivedAt,
		Payload:    state.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	msg := nats.NewMsg(p.Subject(state.PlayerID))
	msg.Header.Set("Player-Id", state.PlayerID)
	msg.Header.Set("Seq", strconv.FormatUint(state.Seq, 10))
	msg.Data = body

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
