package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/scorelink/go/internal/session"
	"github.com/rs/zerolog/log"
)

const memoryQueueSize = 256

// MemoryRadio is an in-process medium shared by MemoryTransports. Callbacks are
// delivered in the order operations are issued, which keeps tests deterministic.
type MemoryRadio struct {
	mu      sync.Mutex
	devices map[session.Endpoint]*MemoryTransport
	links   map[linkKey]*memoryLink
}

type linkKey struct {
	a, b session.Endpoint
}

func keyFor(x, y session.Endpoint) linkKey {
	if x < y {
		return linkKey{x, y}
	}
	return linkKey{y, x}
}

type memoryLink struct {
	accepted  map[session.Endpoint]bool
	connected bool
}

// NewMemoryRadio creates an empty radio
func NewMemoryRadio() *MemoryRadio {
	return &MemoryRadio{
		devices: make(map[session.Endpoint]*MemoryTransport),
		links:   make(map[linkKey]*memoryLink),
	}
}

// MemoryTransport is a Transport attached to a MemoryRadio
type MemoryTransport struct {
	radio   *MemoryRadio
	id      session.Endpoint
	service string

	// guarded by radio.mu
	name        string
	advertising bool
	discovering bool

	events chan session.Event
}

// NewTransport attaches a new device to the radio under service
func (r *MemoryRadio) NewTransport(service string) *MemoryTransport {
	t := &MemoryTransport{
		radio:   r,
		id:      session.Endpoint(uuid.New().String()[:8]),
		service: service,
		events:  make(chan session.Event, memoryQueueSize),
	}

	r.mu.Lock()
	r.devices[t.id] = t
	r.mu.Unlock()
	return t
}

// ID returns the endpoint other devices see for t
func (t *MemoryTransport) ID() session.Endpoint {
	return t.id
}

func (t *MemoryTransport) Events() <-chan session.Event { return t.events }

func (t *MemoryTransport) StartAdvertising(_ context.Context, name string) error {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	t.name = name
	t.advertising = true
	for _, d := range r.devices {
		if d != t && d.discovering && d.service == t.service {
			d.emit(session.EndpointFound{Endpoint: t.id, Name: name})
		}
	}
	return nil
}

func (t *MemoryTransport) StopAdvertising() {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	if !t.advertising {
		return
	}
	t.advertising = false
	for _, d := range r.devices {
		if d != t && d.discovering && d.service == t.service {
			d.emit(session.EndpointLost{Endpoint: t.id})
		}
	}
}

func (t *MemoryTransport) StartDiscovery(_ context.Context) error {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	t.discovering = true
	for _, d := range r.devices {
		if d != t && d.advertising && d.service == t.service {
			t.emit(session.EndpointFound{Endpoint: d.id, Name: d.name})
		}
	}
	return nil
}

func (t *MemoryTransport) StopDiscovery() {
	r := t.radio
	r.mu.Lock()
	t.discovering = false
	r.mu.Unlock()
}

func (t *MemoryTransport) RequestConnection(_ context.Context, name string, endpoint session.Endpoint) error {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	host, ok := r.devices[endpoint]
	if !ok || !host.advertising || host.service != t.service {
		return fmt.Errorf("request connection to %s: %w", endpoint, ErrUnknownEndpoint)
	}
	key := keyFor(t.id, endpoint)
	if _, exists := r.links[key]; exists {
		return fmt.Errorf("request connection to %s: already pending", endpoint)
	}

	r.links[key] = &memoryLink{accepted: make(map[session.Endpoint]bool)}
	t.name = name
	host.emit(session.ConnectionInitiated{Endpoint: t.id, Name: name})
	t.emit(session.ConnectionInitiated{Endpoint: host.id, Name: host.name})
	return nil
}

func (t *MemoryTransport) AcceptConnection(endpoint session.Endpoint) error {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[keyFor(t.id, endpoint)]
	if !ok {
		return fmt.Errorf("accept %s: %w", endpoint, ErrUnknownEndpoint)
	}
	link.accepted[t.id] = true
	if link.accepted[endpoint] && !link.connected {
		link.connected = true
		t.emit(session.ConnectionResult{Endpoint: endpoint, OK: true})
		if peer, ok := r.devices[endpoint]; ok {
			peer.emit(session.ConnectionResult{Endpoint: t.id, OK: true})
		}
	}
	return nil
}

func (t *MemoryTransport) RejectConnection(endpoint session.Endpoint) error {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyFor(t.id, endpoint)
	link, ok := r.links[key]
	if !ok {
		return fmt.Errorf("reject %s: %w", endpoint, ErrUnknownEndpoint)
	}
	if link.connected {
		return fmt.Errorf("reject %s: already connected", endpoint)
	}
	delete(r.links, key)

	err := fmt.Errorf("connection rejected by %s", t.id)
	t.emit(session.ConnectionResult{Endpoint: endpoint, OK: false, Err: err})
	if peer, ok := r.devices[endpoint]; ok {
		peer.emit(session.ConnectionResult{Endpoint: t.id, OK: false, Err: err})
	}
	return nil
}

func (t *MemoryTransport) Send(endpoint session.Endpoint, data []byte) error {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[keyFor(t.id, endpoint)]
	if !ok || !link.connected {
		return fmt.Errorf("send to %s: %w", endpoint, ErrNotConnected)
	}
	peer, ok := r.devices[endpoint]
	if !ok {
		return fmt.Errorf("send to %s: %w", endpoint, ErrUnknownEndpoint)
	}

	msg := session.PayloadReceived{Endpoint: t.id, Data: append([]byte(nil), data...)}
	select {
	case peer.events <- msg:
		return nil
	default:
		return fmt.Errorf("send to %s: payload queue full", endpoint)
	}
}

// Disconnect closes the link to endpoint. Only the remote side is notified.
func (t *MemoryTransport) Disconnect(endpoint session.Endpoint) {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()
	t.dropLinkLocked(endpoint, false)
}

func (t *MemoryTransport) StopAll() {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	t.advertising = false
	t.discovering = false
	for key := range r.links {
		switch t.id {
		case key.a:
			t.dropLinkLocked(key.b, false)
		case key.b:
			t.dropLinkLocked(key.a, false)
		}
	}
}

// Sever simulates the radio link dropping: both ends of every link t holds get a
// Disconnected callback.
func (t *MemoryTransport) Sever() {
	r := t.radio
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.links {
		switch t.id {
		case key.a:
			t.dropLinkLocked(key.b, true)
		case key.b:
			t.dropLinkLocked(key.a, true)
		}
	}
}

// Inject delivers a raw payload to t as if endpoint had sent it
func (t *MemoryTransport) Inject(endpoint session.Endpoint, data []byte) {
	t.events <- session.PayloadReceived{Endpoint: endpoint, Data: append([]byte(nil), data...)}
}

func (t *MemoryTransport) dropLinkLocked(endpoint session.Endpoint, notifySelf bool) {
	r := t.radio
	key := keyFor(t.id, endpoint)
	link, ok := r.links[key]
	if !ok {
		return
	}
	delete(r.links, key)

	peer := r.devices[endpoint]
	if !link.connected {
		err := fmt.Errorf("connection to %s closed before it was established", endpoint)
		if peer != nil {
			peer.emit(session.ConnectionResult{Endpoint: t.id, OK: false, Err: err})
		}
		if notifySelf {
			t.emit(session.ConnectionResult{Endpoint: endpoint, OK: false, Err: err})
		}
		return
	}
	if peer != nil {
		peer.emit(session.Disconnected{Endpoint: t.id})
	}
	if notifySelf {
		t.emit(session.Disconnected{Endpoint: endpoint})
	}
}

func (t *MemoryTransport) emit(ev session.Event) {
	select {
	case t.events <- ev:
	default:
		log.Warn().
			Str("endpoint", string(t.id)).
			Str("event", fmt.Sprintf("%T", ev)).
			Msg("memory transport event queue full, dropping event")
	}
}
