package session

import "time"

// Event is an input to the negotiator. Connection-layer callbacks, timer expiry and
// lifecycle calls are all delivered as one of the types below.
type Event interface {
	isEvent()
}

// Started begins the role's search step
type Started struct{}

// EndpointFound is reported by discovery when a host is seen
type EndpointFound struct {
	Endpoint Endpoint
	Name     string
}

// EndpointLost is reported by discovery when a host stops advertising
type EndpointLost struct {
	Endpoint Endpoint
}

// ConnectionRequestFailed means the outbound connect request could not be sent
type ConnectionRequestFailed struct {
	Endpoint Endpoint
	Err      error
}

// ConnectionInitiated is an inbound connection request awaiting accept or reject
type ConnectionInitiated struct {
	Endpoint Endpoint
	Name     string
}

// ConnectionResult completes a connection attempt
type ConnectionResult struct {
	Endpoint Endpoint
	OK       bool
	Err      error
}

// Disconnected means an established connection went away
type Disconnected struct {
	Endpoint Endpoint
}

// PayloadReceived carries a message from a connected peer. It shares the event stream
// with connection callbacks, so it is handled after the result that opened the link.
type PayloadReceived struct {
	Endpoint Endpoint
	Data     []byte
}

// AdvertiseFailed means advertising could not be started
type AdvertiseFailed struct {
	Err error
}

// DiscoveryFailed means discovery could not be started
type DiscoveryFailed struct {
	Err error
}

// BackoffElapsed fires when a scheduled retry is due
type BackoffElapsed struct{}

// PermissionDenied halts session start without retrying
type PermissionDenied struct{}

// Stop tears the session down
type Stop struct{}

func (Started) isEvent()                 {}
func (EndpointFound) isEvent()           {}
func (EndpointLost) isEvent()            {}
func (ConnectionRequestFailed) isEvent() {}
func (ConnectionInitiated) isEvent()     {}
func (ConnectionResult) isEvent()        {}
func (Disconnected) isEvent()            {}
func (PayloadReceived) isEvent()         {}
func (AdvertiseFailed) isEvent()         {}
func (DiscoveryFailed) isEvent()         {}
func (BackoffElapsed) isEvent()          {}
func (PermissionDenied) isEvent()        {}
func (Stop) isEvent()                    {}

// Action is a side effect the caller must perform against the transport or its timers
type Action interface {
	isAction()
}

type StartAdvertising struct{}
type StartDiscovery struct{}
type StopAdvertising struct{}
type StopDiscovery struct{}

type RequestConnection struct {
	Endpoint Endpoint
}

type AcceptConnection struct {
	Endpoint Endpoint
}

type RejectConnection struct {
	Endpoint Endpoint
}

// ScheduleRetry asks the caller to deliver BackoffElapsed after Delay
type ScheduleRetry struct {
	Delay time.Duration
}

// CancelRetry drops any pending ScheduleRetry timer
type CancelRetry struct{}

// StopAll halts advertising and discovery and closes every open connection
type StopAll struct{}

func (StartAdvertising) isAction()  {}
func (StartDiscovery) isAction()    {}
func (StopAdvertising) isAction()   {}
func (StopDiscovery) isAction()     {}
func (RequestConnection) isAction() {}
func (AcceptConnection) isAction()  {}
func (RejectConnection) isAction()  {}
func (ScheduleRetry) isAction()     {}
func (CancelRetry) isAction()       {}
func (StopAll) isAction()           {}

// Step is the outcome of handling one event
type Step struct {
	Transitions []Transition
	Actions     []Action
}
