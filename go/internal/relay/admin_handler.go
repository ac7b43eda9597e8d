package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/brickrelay/go/internal/relay/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// PlayersResponse is the body of GET /api/players
type PlayersResponse struct {
	Players    []PlayerInfo    `json:"players"`
	Spectators []SpectatorInfo `json:"spectators"`
}

// PowerRequest is the body of POST /api/players/{id}/powers
type PowerRequest struct {
	Power  string `json:"power"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
}

// AdminHandler serves the operator HTTP API
type AdminHandler struct {
	registry   *Registry
	store      *StateStore
	dispatcher *Dispatcher
	gatherer   prometheus.Gatherer
}

// NewAdminHandler creates a new admin handler. A nil gatherer disables /metrics.
func NewAdminHandler(registry *Registry, store *StateStore, dispatcher *Dispatcher, gatherer prometheus.Gatherer) *AdminHandler {
	return &AdminHandler{
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		gatherer:   gatherer,
	}
}

// HandleListPlayers handles GET /api/players
func (h *AdminHandler) HandleListPlayers(w http.ResponseWriter, r *http.Request) {
	spectators := h.registry.ListSpectators()
	if spectators == nil {
		spectators = []SpectatorInfo{}
	}
	writeJSON(w, http.StatusOK, PlayersResponse{
		Players:    h.registry.ListPlayers(),
		Spectators: spectators,
	})
}

// HandleGetPlayerState handles GET /api/players/{id}/state
func (h *AdminHandler) HandleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("id")

	state, ok := h.store.Get(playerID)
	if !ok {
		http.Error(w, "No state for player", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleSendPower handles POST /api/players/{id}/powers
func (h *AdminHandler) HandleSendPower(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("id")

	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !protocol.IsPower(req.Power) {
		http.Error(w, "Unknown power", http.StatusBadRequest)
		return
	}
	if req.Row < 0 || req.Column < 0 {
		http.Error(w, "Row and column must not be negative", http.StatusBadRequest)
		return
	}

	data, err := protocol.Marshal(protocol.NewBrickUpdate(req.Power, req.Row, req.Column))
	if err != nil {
		http.Error(w, "Failed to encode power", http.StatusInternalServerError)
		return
	}

	if err := h.dispatcher.SendToPlayer(playerID, data); err != nil {
		switch {
		case errors.Is(err, ErrUnknownPlayer), errors.Is(err, ErrPlayerNotConnected), errors.Is(err, ErrSessionClosed):
			http.Error(w, "Player not connected", http.StatusNotFound)
		default:
			log.Error().Err(err).Str("player_id", playerID).Msg("failed to send power")
			http.Error(w, "Failed to send power", http.StatusServiceUnavailable)
		}
		return
	}

	log.Info().
		Str("player_id", playerID).
		Str("power", req.Power).
		Int("row", req.Row).
		Int("column", req.Column).
		Msg("sent power to player")

	w.WriteHeader(http.StatusAccepted)
}

// HandleStats handles GET /api/stats
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":        "brickrelay",
		"sessions":       stats.Sessions,
		"unassigned":     stats.Unassigned,
		"players":        stats.Players,
		"spectators":     stats.Spectators,
		"known_players":  stats.KnownIDs,
		"stored_players": h.store.Len(),
	})
}

// RegisterRoutes registers the admin routes with an HTTP mux
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	mux.HandleFunc("GET /api/players", h.HandleListPlayers)
	mux.HandleFunc("GET /api/players/{id}/state", h.HandleGetPlayerState)
	mux.HandleFunc("POST /api/players/{id}/powers", h.HandleSendPower)
	mux.HandleFunc("GET /api/stats", h.HandleStats)

	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
