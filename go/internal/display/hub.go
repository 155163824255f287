package display

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/rs/zerolog/log"
)

// HubConfig holds configuration for scoreboard WebSocket connections
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns default WebSocket configuration
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub pushes scoreboard views to every connected screen
type Hub struct {
	clients map[*screen]bool
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	config   HubConfig

	broadcastCh chan []byte
}

// screen is one WebSocket subscriber
type screen struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a hub
func NewHub(config HubConfig) *Hub {
	return &Hub{
		clients: make(map[*screen]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, 256),
	}
}

// Start processes broadcasts until ctx is done
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("scoreboard hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("scoreboard hub shutting down")
			return
		case data := <-h.broadcastCh:
			h.handleBroadcast(data)
		}
	}
}

// Broadcast queues v for every screen. It never blocks, so it can be registered as a
// device observer directly.
func (h *Hub) Broadcast(v relay.View) {
	data, err := json.Marshal(NewScoreboardView(v))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal scoreboard view")
		return
	}
	select {
	case h.broadcastCh <- data:
	default:
		log.Warn().Msg("broadcast channel full, dropping scoreboard update")
	}
}

// Count returns the number of connected screens
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UpgradeConnection upgrades r to a WebSocket and sends initial as the first message
func (h *Hub) UpgradeConnection(w http.ResponseWriter, r *http.Request, initial relay.View) error {
	data, err := json.Marshal(NewScoreboardView(initial))
	if err != nil {
		return fmt.Errorf("failed to marshal initial view: %w", err)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	s := &screen{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 16),
		hub:  h,
	}
	s.send <- data
	h.register(s)

	go s.writePump()
	go s.readPump()

	log.Info().Str("screen_id", s.id).Msg("scoreboard screen connected")
	return nil
}

func (h *Hub) register(s *screen) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[s] = true
}

func (h *Hub) unregister(s *screen) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
		log.Info().Str("screen_id", s.id).Msg("scoreboard screen disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	screens := make([]*screen, 0, len(h.clients))
	for s := range h.clients {
		screens = append(screens, s)
	}
	h.mu.RUnlock()

	for _, s := range screens {
		h.unregister(s)
	}
}

// handleBroadcast sends under the read lock, so unregister cannot close a screen's
// channel mid-send. Slow screens are dropped once the lock is released.
func (h *Hub) handleBroadcast(data []byte) {
	var slow []*screen

	h.mu.RLock()
	for s := range h.clients {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		log.Warn().Str("screen_id", s.id).Msg("screen send buffer full, closing connection")
		h.unregister(s)
		if s.conn != nil {
			s.conn.Close()
		}
	}
}

func (s *screen) writePump() {
	ticker := time.NewTicker(s.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.hub.unregister(s)
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.config.WriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("screen_id", s.id).Msg("failed to write scoreboard view")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; screens never send data
func (s *screen) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(s.hub.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("screen_id", s.id).Msg("unexpected WebSocket close error")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
	}
}
