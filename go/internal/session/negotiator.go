package session

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Negotiator drives one device's connection to exactly one peer. It is not safe for
// concurrent use: the owning device loop feeds it events one at a time and performs the
// returned actions.
type Negotiator struct {
	role     Role
	state    State
	peer     Endpoint
	pending  Endpoint
	status   string
	attempts int

	cfg     BackoffConfig
	backoff *backoff.ExponentialBackOff

	step *Step
}

// NewNegotiator creates an idle negotiator for role
func NewNegotiator(role Role, cfg BackoffConfig) *Negotiator {
	return &Negotiator{
		role:    role,
		state:   StateIdle,
		status:  "Ready",
		cfg:     cfg,
		backoff: newExponentialBackOff(cfg),
	}
}

// Role returns the negotiator's role
func (n *Negotiator) Role() Role {
	return n.role
}

// State returns the current state
func (n *Negotiator) State() State {
	return n.state
}

// Peer returns the connected peer, or "" when not connected
func (n *Negotiator) Peer() Endpoint {
	return n.peer
}

// Connected reports whether a peer connection is active
func (n *Negotiator) Connected() bool {
	return n.state == StateConnected && n.peer != ""
}

// Snapshot returns a copy of the negotiator's state
func (n *Negotiator) Snapshot() Snapshot {
	return Snapshot{
		Role:     n.role,
		State:    n.state,
		Peer:     n.peer,
		Status:   n.status,
		Attempts: n.attempts,
	}
}

// Handle applies one event and returns the transitions it caused and the actions the
// caller must carry out, in order.
func (n *Negotiator) Handle(ev Event) Step {
	step := Step{}
	n.step = &step
	defer func() { n.step = nil }()

	if n.state == StateStopped {
		if _, ok := ev.(Started); !ok {
			return step
		}
	}

	switch e := ev.(type) {
	case Started:
		n.onStarted()
	case EndpointFound:
		n.onEndpointFound(e)
	case EndpointLost:
		log.Debug().Str("endpoint", string(e.Endpoint)).Msg("endpoint lost")
	case ConnectionRequestFailed:
		n.onRequestFailed(e)
	case ConnectionInitiated:
		n.onConnectionInitiated(e)
	case ConnectionResult:
		n.onConnectionResult(e)
	case Disconnected:
		n.onDisconnected(e)
	case PayloadReceived:
		// payload contents belong to the device, not the session
	case AdvertiseFailed:
		if n.state == StateAdvertising {
			log.Error().Err(e.Err).Msg("advertising failed")
			n.transition(StateIdle, "Advertising failed")
		}
	case DiscoveryFailed:
		if n.state == StateDiscovering {
			log.Error().Err(e.Err).Msg("discovery failed to start")
			n.transition(StateIdle, "Discovery failed")
		}
	case BackoffElapsed:
		if n.state == StateBackoffWaiting {
			n.search()
		}
	case PermissionDenied:
		n.emit(CancelRetry{}, StopAll{})
		n.peer, n.pending = "", ""
		n.transition(StateIdle, "Permissions Denied")
	case Stop:
		n.onStop()
	default:
		log.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("unhandled session event")
	}

	return step
}

func (n *Negotiator) onStarted() {
	switch n.state {
	case StateIdle, StateStopped, StateDisconnected:
	default:
		return
	}
	n.attempts = 0
	n.backoff.Reset()
	n.search()
}

func (n *Negotiator) onEndpointFound(e EndpointFound) {
	if n.role != RoleClient || n.state != StateDiscovering {
		return
	}
	log.Info().
		Str("endpoint", string(e.Endpoint)).
		Str("name", e.Name).
		Msg("endpoint found, requesting connection")

	n.pending = e.Endpoint
	n.emit(StopDiscovery{}, RequestConnection{Endpoint: e.Endpoint})
	n.transition(StateConnecting, "Connecting...")
}

func (n *Negotiator) onRequestFailed(e ConnectionRequestFailed) {
	if n.state != StateConnecting || e.Endpoint != n.pending {
		return
	}
	log.Error().Err(e.Err).Str("endpoint", string(e.Endpoint)).Msg("failed to send connection request")
	n.pending = ""
	n.transition(StateDisconnected, "Connection failed. Retrying...")
	n.retry()
}

func (n *Negotiator) onConnectionInitiated(e ConnectionInitiated) {
	if n.peer != "" {
		// one peer at a time
		log.Warn().
			Str("endpoint", string(e.Endpoint)).
			Str("peer", string(n.peer)).
			Msg("rejecting connection while already connected")
		n.emit(RejectConnection{Endpoint: e.Endpoint})
		return
	}

	switch {
	case n.state == StateAdvertising:
	case n.state == StateConnecting && (n.pending == "" || n.pending == e.Endpoint):
	default:
		n.emit(RejectConnection{Endpoint: e.Endpoint})
		return
	}

	log.Info().
		Str("role", n.role.String()).
		Str("endpoint", string(e.Endpoint)).
		Str("name", e.Name).
		Msg("connection initiated, accepting")

	n.pending = e.Endpoint
	n.emit(AcceptConnection{Endpoint: e.Endpoint})
	if n.state != StateConnecting {
		n.transition(StateConnecting, "Connecting...")
	}
}

func (n *Negotiator) onConnectionResult(e ConnectionResult) {
	if n.peer != "" && e.Endpoint != n.peer {
		// result for a connection we already rejected
		return
	}
	if n.state != StateConnecting || e.Endpoint != n.pending {
		return
	}

	if e.OK {
		log.Info().Str("endpoint", string(e.Endpoint)).Msg("connection established")
		n.emit(StopAdvertising{}, StopDiscovery{})
		n.peer, n.pending = e.Endpoint, ""
		n.attempts = 0
		n.backoff.Reset()
		n.transition(StateConnected, "Connected to "+n.role.peerLabel())
		return
	}

	log.Error().Err(e.Err).Str("endpoint", string(e.Endpoint)).Msg("connection failed")
	n.peer, n.pending = "", ""
	n.transition(StateDisconnected, "Connection failed")
	n.retry()
}

func (n *Negotiator) onDisconnected(e Disconnected) {
	if e.Endpoint == "" || (e.Endpoint != n.peer && e.Endpoint != n.pending) {
		return
	}
	log.Warn().Str("endpoint", string(e.Endpoint)).Msg("disconnected from peer")
	n.peer, n.pending = "", ""
	n.transition(StateDisconnected, "Disconnected")
	n.retry()
}

func (n *Negotiator) onStop() {
	n.emit(CancelRetry{}, StopAll{})
	n.peer, n.pending = "", ""
	n.attempts = 0
	n.backoff.Reset()
	n.transition(StateStopped, "Disconnected")
}

// search enters the role's advertise or discover step
func (n *Negotiator) search() {
	if n.role == RoleHost {
		n.emit(StartAdvertising{})
		n.transition(StateAdvertising, "Waiting for tablet...")
		return
	}
	n.emit(StartDiscovery{})
	n.transition(StateDiscovering, "Searching for host...")
}

// retry restarts the search step after a failure, immediately or after a backoff delay.
func (n *Negotiator) retry() {
	n.attempts++
	if n.cfg.MaxAttempts > 0 && n.attempts > n.cfg.MaxAttempts {
		log.Error().
			Int("attempts", n.attempts-1).
			Str("role", n.role.String()).
			Msg("giving up on reconnection")
		n.status = "Connection failed"
		return
	}

	if !n.cfg.Enabled {
		n.search()
		return
	}

	delay := n.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = n.backoff.MaxInterval
	}
	n.emit(ScheduleRetry{Delay: delay})
	n.transition(StateBackoffWaiting, fmt.Sprintf("Retrying in %s", delay.Round(100*time.Millisecond)))
}

func (n *Negotiator) transition(to State, status string) {
	from := n.state
	n.state = to
	n.status = status
	if n.step != nil {
		n.step.Transitions = append(n.step.Transitions, Transition{From: from, To: to})
	}
	log.Debug().
		Str("role", n.role.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("status", status).
		Msg("session transition")
}

func (n *Negotiator) emit(actions ...Action) {
	if n.step != nil {
		n.step.Actions = append(n.step.Actions, actions...)
	}
}
