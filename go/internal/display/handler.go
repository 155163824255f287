package display

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mcdev12/scorelink/go/internal/history"
	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/mcdev12/scorelink/go/internal/score"
	"github.com/rs/zerolog/log"
)

const (
	defaultMatchLimit = 20
	maxMatchLimit     = 100
)

// Scoreboard is the device the display talks to
type Scoreboard interface {
	Snapshot() relay.View
	Submit(ctx context.Context, cmd score.Command) error
}

// MatchLister lists finished matches
type MatchLister interface {
	Recent(ctx context.Context, limit int) ([]history.Match, error)
}

// Handler serves the scoreboard's HTTP surface
type Handler struct {
	board   Scoreboard
	hub     *Hub
	matches MatchLister
	health  *HealthChecker
}

// NewHandler creates a handler. matches may be nil when history is disabled; a nil
// health checker only reports the session state.
func NewHandler(board Scoreboard, hub *Hub, matches MatchLister, health *HealthChecker) *Handler {
	if health == nil {
		health = NewHealthChecker(board, nil, nil)
	}
	return &Handler{board: board, hub: hub, matches: matches, health: health}
}

type commandRequest struct {
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RegisterRoutes registers every display route with mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/health", h.health)
	mux.HandleFunc("/api/scoreboard", h.HandleScoreboard)
	mux.HandleFunc("/api/commands", h.HandleCommand)
	mux.HandleFunc("/api/matches", h.HandleMatches)
	mux.HandleFunc("/ws/scoreboard", h.HandleScoreboardConnection)

	path, handler := NewScoreboardServiceHandler(h.board)
	mux.Handle(path, handler)
}

// HandleScoreboard returns the current scoreboard view
func (h *Handler) HandleScoreboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, NewScoreboardView(h.board.Snapshot()))
}

// HandleCommand submits a command as if pressed on the local screen
func (h *Handler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	cmd, err := score.ParseCommand(req.Command)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := h.board.Submit(r.Context(), cmd); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrNotRunning) {
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Str("command", cmd.String()).Msg("failed to submit command")
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleMatches lists recently finished matches
func (h *Handler) HandleMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if h.matches == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "match history is disabled"})
		return
	}

	limit := defaultMatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxMatchLimit)
	}

	matches, err := h.matches.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list matches")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list matches"})
		return
	}
	if matches == nil {
		matches = []history.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleScoreboardConnection upgrades to a WebSocket that receives every view change
func (h *Handler) HandleScoreboardConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.UpgradeConnection(w, r, h.board.Snapshot()); err != nil {
		// the upgrader has already written an error response
		log.Error().Err(err).Msg("failed to upgrade scoreboard connection")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
