package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/session"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NetConfig holds configuration for the LAN transport
type NetConfig struct {
	ServiceID string
	// SubjectPrefix is the NATS subject prefix announcements are published under
	SubjectPrefix string
	// AdvertiseURL is the WebSocket URL peers dial to reach this device's /ws/peer route
	AdvertiseURL     string
	AnnounceInterval time.Duration
	Connection       ConnectionConfig
}

// ConnectionConfig holds configuration for peer WebSocket connections
type ConnectionConfig struct {
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
}

// DefaultConnectionConfig returns default peer WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   1024, // commands are a few bytes
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
}

// DefaultNetConfig returns default LAN transport configuration
func DefaultNetConfig() NetConfig {
	return NetConfig{
		ServiceID:        DefaultServiceID,
		SubjectPrefix:    "scorelink.advertise",
		AnnounceInterval: 2 * time.Second,
		Connection:       DefaultConnectionConfig(),
	}
}

const (
	controlAccept = "ACCEPT"
	controlReject = "REJECT"

	netQueueSize = 256
)

// announcement is what an advertising device publishes on NATS
type announcement struct {
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Leaving  bool   `json:"leaving,omitempty"`
}

// NetTransport discovers peers through NATS announcements and talks to them over a
// WebSocket link. The advertising side serves the link on /ws/peer.
type NetTransport struct {
	id       session.Endpoint
	nc       *nats.Conn
	clock    clockwork.Clock
	config   NetConfig
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	mu           sync.Mutex
	name         string
	advertising  bool
	stopAnnounce context.CancelFunc
	discoverySub *nats.Subscription
	known        map[session.Endpoint]announcement
	conns        map[session.Endpoint]*peerConn

	events    chan session.Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewNetTransport creates a LAN transport. nc may be nil when neither advertising nor
// discovery is used (a device that only accepts direct dials).
func NewNetTransport(nc *nats.Conn, clock clockwork.Clock, config NetConfig) *NetTransport {
	return &NetTransport{
		id:     session.Endpoint(uuid.New().String()),
		nc:     nc,
		clock:  clock,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.Connection.ReadBufferSize,
			WriteBufferSize: config.Connection.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// peers are not browsers
				return true
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.Connection.HandshakeTimeout,
			ReadBufferSize:   config.Connection.ReadBufferSize,
			WriteBufferSize:  config.Connection.WriteBufferSize,
		},
		known:  make(map[session.Endpoint]announcement),
		conns:  make(map[session.Endpoint]*peerConn),
		events: make(chan session.Event, netQueueSize),
		done:   make(chan struct{}),
	}
}

// ID returns the endpoint this device announces itself as
func (t *NetTransport) ID() session.Endpoint {
	return t.id
}

func (t *NetTransport) Events() <-chan session.Event { return t.events }

func (t *NetTransport) subject() string {
	return t.config.SubjectPrefix + "." + t.config.ServiceID
}

// RegisterRoutes registers the peer WebSocket route with an HTTP mux
func (t *NetTransport) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/peer", t.HandlePeerConnection)
}

func (t *NetTransport) StartAdvertising(ctx context.Context, name string) error {
	if t.nc == nil {
		return fmt.Errorf("start advertising: no NATS connection")
	}
	if t.config.AdvertiseURL == "" {
		return fmt.Errorf("start advertising: advertise URL not configured")
	}

	t.mu.Lock()
	if t.stopAnnounce != nil {
		t.stopAnnounce()
	}
	annCtx, cancel := context.WithCancel(ctx)
	t.name = name
	t.advertising = true
	t.stopAnnounce = cancel
	t.mu.Unlock()

	ann := announcement{
		Service:  t.config.ServiceID,
		Endpoint: string(t.id),
		Name:     name,
		URL:      t.config.AdvertiseURL,
	}
	if err := t.publishAnnouncement(ann); err != nil {
		t.StopAdvertising()
		return fmt.Errorf("start advertising: %w", err)
	}
	go t.announceLoop(annCtx, ann)

	log.Info().
		Str("endpoint", string(t.id)).
		Str("subject", t.subject()).
		Str("url", ann.URL).
		Msg("advertising started")
	return nil
}

func (t *NetTransport) StopAdvertising() {
	t.mu.Lock()
	wasAdvertising := t.advertising
	t.advertising = false
	if t.stopAnnounce != nil {
		t.stopAnnounce()
		t.stopAnnounce = nil
	}
	name := t.name
	t.mu.Unlock()

	if !wasAdvertising || t.nc == nil {
		return
	}
	bye := announcement{Service: t.config.ServiceID, Endpoint: string(t.id), Name: name, Leaving: true}
	if err := t.publishAnnouncement(bye); err != nil {
		log.Warn().Err(err).Msg("failed to publish leave announcement")
	}
}

func (t *NetTransport) announceLoop(ctx context.Context, ann announcement) {
	ticker := t.clock.NewTicker(t.config.AnnounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.Chan():
			if err := t.publishAnnouncement(ann); err != nil {
				log.Warn().Err(err).Msg("failed to publish announcement")
			}
		}
	}
}

func (t *NetTransport) publishAnnouncement(ann announcement) error {
	data, err := json.Marshal(ann)
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}
	if err := t.nc.Publish(t.subject(), data); err != nil {
		return fmt.Errorf("publish announcement: %w", err)
	}
	return nil
}

func (t *NetTransport) StartDiscovery(ctx context.Context) error {
	if t.nc == nil {
		return fmt.Errorf("start discovery: no NATS connection")
	}

	t.mu.Lock()
	if t.discoverySub != nil {
		t.mu.Unlock()
		return nil
	}
	t.known = make(map[session.Endpoint]announcement)
	t.mu.Unlock()

	sub, err := t.nc.Subscribe(t.subject(), func(msg *nats.Msg) {
		t.handleAnnouncement(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("start discovery: subscribe %s: %w", t.subject(), err)
	}

	t.mu.Lock()
	t.discoverySub = sub
	t.mu.Unlock()

	log.Info().Str("subject", t.subject()).Msg("discovery started")
	return nil
}

func (t *NetTransport) StopDiscovery() {
	t.mu.Lock()
	sub := t.discoverySub
	t.discoverySub = nil
	t.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("failed to unsubscribe discovery")
	}
}

// handleAnnouncement turns an announcement into found/lost events
func (t *NetTransport) handleAnnouncement(data []byte) {
	var ann announcement
	if err := json.Unmarshal(data, &ann); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed announcement")
		return
	}
	endpoint := session.Endpoint(ann.Endpoint)
	if endpoint == "" || endpoint == t.id || ann.Service != t.config.ServiceID {
		return
	}

	t.mu.Lock()
	_, seen := t.known[endpoint]
	if ann.Leaving {
		delete(t.known, endpoint)
	} else {
		t.known[endpoint] = ann
	}
	t.mu.Unlock()

	switch {
	case ann.Leaving && seen:
		t.emit(session.EndpointLost{Endpoint: endpoint})
	case !ann.Leaving && !seen:
		t.emit(session.EndpointFound{Endpoint: endpoint, Name: ann.Name})
	}
}

func (t *NetTransport) RequestConnection(ctx context.Context, name string, endpoint session.Endpoint) error {
	t.mu.Lock()
	ann, ok := t.known[endpoint]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("request connection to %s: %w", endpoint, ErrUnknownEndpoint)
	}

	u, err := url.Parse(ann.URL)
	if err != nil {
		return fmt.Errorf("request connection to %s: parse url: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("endpoint", string(t.id))
	q.Set("name", name)
	u.RawQuery = q.Encode()

	go func() {
		dialCtx, cancel := context.WithTimeout(ctx, t.config.Connection.HandshakeTimeout)
		defer cancel()

		conn, _, err := t.dialer.DialContext(dialCtx, u.String(), nil)
		if err != nil {
			t.emit(session.ConnectionRequestFailed{Endpoint: endpoint, Err: err})
			return
		}

		c := t.register(endpoint, conn)
		if c == nil {
			conn.Close()
			t.emit(session.ConnectionRequestFailed{Endpoint: endpoint, Err: fmt.Errorf("already connected to %s", endpoint)})
			return
		}
		t.emit(session.ConnectionInitiated{Endpoint: endpoint, Name: ann.Name})
		c.start()
	}()
	return nil
}

// HandlePeerConnection upgrades an inbound peer dial. Only an advertising device takes them.
func (t *NetTransport) HandlePeerConnection(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	advertising := t.advertising
	t.mu.Unlock()
	if !advertising {
		http.Error(w, "not advertising", http.StatusServiceUnavailable)
		return
	}

	remote := session.Endpoint(r.URL.Query().Get("endpoint"))
	if remote == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade peer connection")
		return
	}

	c := t.register(remote, conn)
	if c == nil {
		log.Warn().Str("endpoint", string(remote)).Msg("duplicate peer connection, closing")
		conn.Close()
		return
	}

	log.Info().
		Str("endpoint", string(remote)).
		Str("name", name).
		Msg("inbound peer connection")

	t.emit(session.ConnectionInitiated{Endpoint: remote, Name: name})
	c.start()
}

func (t *NetTransport) AcceptConnection(endpoint session.Endpoint) error {
	c := t.conn(endpoint)
	if c == nil {
		return fmt.Errorf("accept %s: %w", endpoint, ErrUnknownEndpoint)
	}
	c.accept()
	return nil
}

func (t *NetTransport) RejectConnection(endpoint session.Endpoint) error {
	c := t.conn(endpoint)
	if c == nil {
		return fmt.Errorf("reject %s: %w", endpoint, ErrUnknownEndpoint)
	}
	c.reject()
	return nil
}

func (t *NetTransport) Send(endpoint session.Endpoint, data []byte) error {
	c := t.conn(endpoint)
	if c == nil {
		return fmt.Errorf("send to %s: %w", endpoint, ErrNotConnected)
	}
	return c.sendData(data)
}

func (t *NetTransport) Disconnect(endpoint session.Endpoint) {
	if c := t.conn(endpoint); c != nil {
		c.closeLocal()
	}
}

func (t *NetTransport) StopAll() {
	t.StopAdvertising()
	t.StopDiscovery()

	t.mu.Lock()
	conns := make([]*peerConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		c.closeLocal()
	}
}

// Close stops everything and releases blocked event deliveries
func (t *NetTransport) Close() {
	t.StopAll()
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *NetTransport) conn(endpoint session.Endpoint) *peerConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[endpoint]
}

// register tracks a new connection. It returns nil when endpoint already has one.
func (t *NetTransport) register(endpoint session.Endpoint, conn *websocket.Conn) *peerConn {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.conns[endpoint]; exists {
		return nil
	}
	c := &peerConn{
		t:      t,
		remote: endpoint,
		conn:   conn,
		send:   make(chan outbound, 64),
	}
	t.conns[endpoint] = c
	return c
}

func (t *NetTransport) unregister(c *peerConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[c.remote] == c {
		delete(t.conns, c.remote)
	}
}

func (t *NetTransport) emit(ev session.Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}
