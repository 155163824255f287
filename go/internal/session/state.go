package session

import (
	"fmt"
	"strings"
)

// Role is the part a device plays in the session. It is fixed for the negotiator's lifetime.
type Role int

const (
	// RoleHost advertises its presence and waits for a peer (the initiator)
	RoleHost Role = iota
	// RoleClient scans for a host and connects to it (the responder)
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRole accepts "host"/"initiator" and "client"/"responder"
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "host", "initiator", "phone":
		return RoleHost, nil
	case "client", "responder", "tablet":
		return RoleClient, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// peerLabel is how the status line names the device on the other end
func (r Role) peerLabel() string {
	if r == RoleHost {
		return "Tablet"
	}
	return "Phone"
}

// State is the connection state of one device's session
type State int

const (
	StateIdle State = iota
	StateAdvertising
	StateDiscovering
	StateConnecting
	StateConnected
	StateDisconnected
	StateBackoffWaiting
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateAdvertising:    "advertising",
	StateDiscovering:    "discovering",
	StateConnecting:     "connecting",
	StateConnected:      "connected",
	StateDisconnected:   "disconnected",
	StateBackoffWaiting: "backoff_waiting",
	StateStopped:        "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Endpoint is the transport's opaque handle for a remote device
type Endpoint string

// Transition records one state change made while handling an event
type Transition struct {
	From State
	To   State
}

// Snapshot is a read-only copy of the negotiator's state
type Snapshot struct {
	Role     Role     `json:"role"`
	State    State    `json:"state"`
	Peer     Endpoint `json:"peer,omitempty"`
	Status   string   `json:"status"`
	Attempts int      `json:"attempts"`
}

// Connected reports whether the snapshot has an active peer
func (s Snapshot) Connected() bool {
	return s.State == StateConnected && s.Peer != ""
}
