package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brickrelay/go/internal/relay/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HandlerConfig holds per-session protocol settings
type HandlerConfig struct {
	// MaxConsecutiveErrors closes a session after this many failed commands in
	// a row. Zero disables the limit.
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
	// StrictHandshake closes a session whose first command is not tipoCliente
	// or hola instead of counting it as an ordinary error.
	StrictHandshake bool `yaml:"strict_handshake"`
	// SendBuffer is the number of control messages queued per session
	SendBuffer int `yaml:"send_buffer"`

	Transport TransportConfig `yaml:"-"`
}

// DefaultHandlerConfig returns default handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxConsecutiveErrors: 5,
		StrictHandshake:      true,
		SendBuffer:           64,
		Transport:            DefaultTransportConfig(),
	}
}

// ConnectionHandler runs the lifecycle of one client connection:
// AwaitingRole, then Active as player or spectator, then Closed.
type ConnectionHandler struct {
	config     HandlerConfig
	registry   *Registry
	store      *StateStore
	dispatcher *Dispatcher
	metrics    MetricsCollector
	clock      clockwork.Clock
}

// NewConnectionHandler creates a handler sharing the given registry and store
func NewConnectionHandler(
	config HandlerConfig,
	registry *Registry,
	store *StateStore,
	dispatcher *Dispatcher,
	metrics MetricsCollector,
	clock clockwork.Clock,
) *ConnectionHandler {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &ConnectionHandler{
		config:     config,
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		clock:      clock,
	}
}

// Serve owns t until the client hangs up, the session is closed for
// misbehaviour, or ctx is cancelled. It returns only after the transport has
// been closed. A nil error means an orderly end of session.
func (h *ConnectionHandler) Serve(ctx context.Context, t Transport) error {
	s := newSession(t, h.clock.Now(), h.config.SendBuffer)
	h.registry.Add(s)
	h.metrics.SessionOpened(RoleUnset)

	logger := log.With().
		Str("connection_id", s.ID).
		Str("remote_addr", t.RemoteAddr()).
		Str("transport", t.Kind()).
		Logger()
	logger.Info().Msg("client connected")

	go s.writePump()
	stop := context.AfterFunc(ctx, s.Close)

	err := h.readLoop(ctx, s, &logger)

	h.teardown(s, &logger)
	// The session is no longer indexed, so ctx is the only way to cut a
	// pump stuck on a write short
	<-s.Done()
	stop()

	if err != nil {
		logger.Warn().Err(err).Msg("client connection failed")
		return err
	}
	logger.Info().Msg("client disconnected")
	return nil
}

func (h *ConnectionHandler) readLoop(ctx context.Context, s *Session, logger *zerolog.Logger) error {
	consecutiveErrors := 0

	for {
		data, err := s.transport.ReadMessage()
		if err == nil {
			err = h.handleMessage(ctx, s, data, logger)
		} else {
			var decodeErr *protocol.DecodeError
			if !errors.As(err, &decodeErr) {
				if isClosedConnError(err) || s.Closed() || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read message: %w", err)
			}
			h.metrics.RecordCommand("invalid", false)
		}

		if err == nil {
			consecutiveErrors = 0
			continue
		}

		if errors.Is(err, ErrSessionClosed) {
			return nil
		}

		consecutiveErrors++
		h.reply(s, protocol.NewResponse("error: "+err.Error()))

		logger.Debug().
			Err(err).
			Int("consecutive_errors", consecutiveErrors).
			Msg("rejected client message")

		if h.config.StrictHandshake && errors.Is(err, ErrProtocolViolation) {
			logger.Warn().Err(err).Msg("closing connection that skipped the handshake")
			return nil
		}
		if h.config.MaxConsecutiveErrors > 0 && consecutiveErrors >= h.config.MaxConsecutiveErrors {
			logger.Warn().
				Int("consecutive_errors", consecutiveErrors).
				Msg("closing connection after repeated errors")
			return nil
		}
	}
}

func (h *ConnectionHandler) handleMessage(ctx context.Context, s *Session, data []byte, logger *zerolog.Logger) error {
	cmd, err := protocol.Decode(data)
	if err != nil {
		h.metrics.RecordCommand("invalid", false)
		return err
	}

	err = h.handle(ctx, s, cmd)
	h.metrics.RecordCommand(cmd.Name(), err == nil)

	logger.Debug().
		Str("command", cmd.Name()).
		Bool("ok", err == nil).
		Msg("handled command")
	return err
}

func (h *ConnectionHandler) handle(ctx context.Context, s *Session, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.Hola:
		msg := "hola"
		if c.Msg != "" {
			msg = "hola, received: " + c.Msg
		}
		return h.reply(s, protocol.NewResponse(msg))

	case protocol.DeclareRole:
		return h.declareRole(s, c)

	case protocol.SendGameState:
		switch s.Role() {
		case RoleUnset:
			return ErrProtocolViolation
		case RoleSpectator:
			return fmt.Errorf("sendGameState: %w", ErrRoleMismatch)
		}
		state := h.store.Put(s.PlayerID(), c)
		h.metrics.RecordStateUpdate()
		h.dispatcher.Relay(ctx, state)
		return nil

	case protocol.WatchPlayer:
		switch s.Role() {
		case RoleUnset:
			return ErrProtocolViolation
		case RolePlayer:
			return fmt.Errorf("GameSpectator: %w", ErrRoleMismatch)
		}
		return h.watch(s, c.PlayerID)

	default:
		return fmt.Errorf("unhandled command %s: %w", cmd.Name(), ErrProtocolViolation)
	}
}

func (h *ConnectionHandler) declareRole(s *Session, c protocol.DeclareRole) error {
	role := RoleSpectator
	if c.Role == protocol.RolePlayer {
		role = RolePlayer
	}

	playerID, err := h.registry.RegisterRole(s, role, c.PlayerName)
	if err != nil {
		return err
	}
	h.metrics.RoleAssigned(RoleUnset, role)

	log.Info().
		Str("connection_id", s.ID).
		Str("role", role.String()).
		Str("player_id", playerID).
		Msg("client registered")

	if role == RolePlayer {
		resp := protocol.NewResponse("registered as player")
		resp.PlayerID = playerID
		return h.reply(s, resp)
	}

	if err := h.reply(s, protocol.NewResponse("registered as spectator")); err != nil {
		return err
	}
	return h.reply(s, h.playerList())
}

func (h *ConnectionHandler) watch(s *Session, playerID string) error {
	if err := h.registry.SetWatchTarget(s, playerID); err != nil {
		return err
	}
	if err := h.reply(s, protocol.NewResponse("watching player "+playerID)); err != nil {
		return err
	}

	// Spectators see the target immediately instead of waiting for its next update
	if state, ok := h.store.Get(playerID); ok {
		h.metrics.RecordStatePush(s.PushState(state))
	}
	return nil
}

func (h *ConnectionHandler) playerList() protocol.PlayerList {
	players := h.registry.ListPlayers()
	entries := make([]protocol.PlayerListEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, protocol.PlayerListEntry{ID: p.ID, Name: p.Name})
	}
	return protocol.NewPlayerList(entries)
}

func (h *ConnectionHandler) reply(s *Session, msg any) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return s.Send(data)
}

// teardown removes s from every index and lets queued replies drain
func (h *ConnectionHandler) teardown(s *Session, logger *zerolog.Logger) {
	role := s.Role()
	playerID := s.PlayerID()

	orphans := h.registry.Deregister(s)
	h.metrics.SessionClosed(role)

	if len(orphans) > 0 {
		data, err := protocol.Marshal(protocol.NewResponse("player " + playerID + " disconnected"))
		if err == nil {
			sent := h.dispatcher.Broadcast(orphans, data)
			logger.Info().
				Str("player_id", playerID).
				Int("spectators", sent).
				Msg("notified spectators of player disconnect")
		}
	}

	s.CloseGracefully()
}
