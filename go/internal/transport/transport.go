package transport

import (
	"context"
	"errors"

	"github.com/mcdev12/scorelink/go/internal/session"
)

// DefaultServiceID scopes which devices can see each other
const DefaultServiceID = "com.example.bluetoothscorekeeper.SERVICE_ID"

var (
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrNotConnected    = errors.New("endpoint not connected")
	ErrClosed          = errors.New("transport closed")
)

// Transport is the peer discovery and connection layer. Operations return once the
// request has been issued; their outcome arrives later on Events as session events
// (found, initiated, result, disconnected). Received messages arrive on the same stream
// as session.PayloadReceived, in the order the transport saw them.
type Transport interface {
	StartAdvertising(ctx context.Context, name string) error
	StopAdvertising()
	StartDiscovery(ctx context.Context) error
	StopDiscovery()

	RequestConnection(ctx context.Context, name string, endpoint session.Endpoint) error
	AcceptConnection(endpoint session.Endpoint) error
	RejectConnection(endpoint session.Endpoint) error

	Send(endpoint session.Endpoint, data []byte) error
	Disconnect(endpoint session.Endpoint)
	// StopAll stops advertising and discovery and closes every connection
	StopAll()

	Events() <-chan session.Event
}
