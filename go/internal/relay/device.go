package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/score"
	"github.com/mcdev12/scorelink/go/internal/session"
	"github.com/mcdev12/scorelink/go/internal/transport"
	"github.com/rs/zerolog/log"
)

const (
	// HostName is the name the host advertises
	HostName = "SCORE_SERVER_PHONE"
	// ClientName is the name the client introduces itself with
	ClientName = "SCORE_CLIENT_TABLET"

	defaultQueueSize = 64
)

// ErrNotRunning is returned for commands and controls sent while Run is not active
var ErrNotRunning = errors.New("device is not running")

// Config holds the device's static settings
type Config struct {
	Role      session.Role
	Name      string
	Backoff   session.BackoffConfig
	Format    transport.Format
	QueueSize int
}

// DefaultConfig returns the settings for role
func DefaultConfig(role session.Role) Config {
	name := ClientName
	if role == session.RoleHost {
		name = HostName
	}
	return Config{
		Role:      role,
		Name:      name,
		Backoff:   session.DefaultBackoffConfig(),
		Format:    transport.FormatToken,
		QueueSize: defaultQueueSize,
	}
}

// CommandSource is a secondary command input, such as the wearable channel
type CommandSource interface {
	Subscribe() (<-chan score.Command, func())
}

// View is what a device currently shows
type View struct {
	Board     score.Board      `json:"board"`
	Session   session.Snapshot `json:"session"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Device owns one scoreboard and its peer session. Every input is handled on the Run
// goroutine; nothing else touches the board or the negotiator. Transport callbacks and
// peer payloads share one ordered stream, and local and wearable commands share the
// command queue, so each stream is handled in arrival order.
type Device struct {
	cfg       Config
	transport transport.Transport
	clock     clockwork.Clock
	wear      CommandSource

	negotiator *session.Negotiator
	board      score.Board
	retry      clockwork.Timer

	commands chan score.Command
	controls chan session.Event
	done     chan struct{}

	mu        sync.RWMutex
	view      View
	observers []func(View)
	started   bool
	running   bool
}

// NewDevice creates a device. wear may be nil.
func NewDevice(cfg Config, tr transport.Transport, clock clockwork.Clock, wear CommandSource) *Device {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig(cfg.Role).Name
	}
	d := &Device{
		cfg:        cfg,
		transport:  tr,
		clock:      clock,
		wear:       wear,
		negotiator: session.NewNegotiator(cfg.Role, cfg.Backoff),
		commands:   make(chan score.Command, cfg.QueueSize),
		controls:   make(chan session.Event, 8),
		done:       make(chan struct{}),
	}
	d.view = View{Session: d.negotiator.Snapshot(), UpdatedAt: clock.Now()}
	return d
}

// Role returns the device's role
func (d *Device) Role() session.Role {
	return d.cfg.Role
}

// Snapshot returns the latest view. Safe for concurrent use.
func (d *Device) Snapshot() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// OnChange registers fn to be called on the device goroutine after every change.
// fn must not block.
func (d *Device) OnChange(fn func(View)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// Submit queues a command originating from the local UI
func (d *Device) Submit(ctx context.Context, cmd score.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("submit %q: %w", cmd, score.ErrUnknownCommand)
	}
	if !d.isRunning() {
		return ErrNotRunning
	}
	select {
	case d.commands <- cmd:
		return nil
	case <-d.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart begins a fresh search, for example after reconnection gave up
func (d *Device) Restart(ctx context.Context) error {
	return d.control(ctx, session.Started{})
}

// DenyPermissions reports that the platform refused the permissions the session needs
func (d *Device) DenyPermissions(ctx context.Context) error {
	return d.control(ctx, session.PermissionDenied{})
}

func (d *Device) control(ctx context.Context, ev session.Event) error {
	if !d.isRunning() {
		return ErrNotRunning
	}
	select {
	case d.controls <- ev:
		return nil
	case <-d.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) isRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Run starts the session and processes inputs until ctx is cancelled. On return the
// session is stopped, every connection is closed and the board is reset.
func (d *Device) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("device already started")
	}
	d.started, d.running = true, true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		close(d.done)
	}()

	if d.wear != nil {
		ch, cancel := d.wear.Subscribe()
		defer cancel()
		stop := make(chan struct{})
		defer close(stop)
		go d.forwardWear(ch, stop)
	}

	log.Info().
		Str("role", d.cfg.Role.String()).
		Str("name", d.cfg.Name).
		Str("format", d.cfg.Format.String()).
		Msg("device starting")

	d.dispatch(ctx, session.Started{})

	events := d.transport.Events()

	for {
		var retryC <-chan time.Time
		if d.retry != nil {
			retryC = d.retry.Chan()
		}

		select {
		case <-ctx.Done():
			d.teardown()
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if p, isPayload := ev.(session.PayloadReceived); isPayload {
				d.receive(p)
				continue
			}
			d.dispatch(ctx, ev)

		case cmd := <-d.commands:
			d.relay(cmd)

		case ev := <-d.controls:
			d.dispatch(ctx, ev)

		case <-retryC:
			d.retry = nil
			d.dispatch(ctx, session.BackoffElapsed{})
		}
	}
}

// forwardWear moves wearable commands onto the command queue, where they are ordered
// with local commands. A full queue holds back the wearable channel.
func (d *Device) forwardWear(ch <-chan score.Command, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case cmd, ok := <-ch:
			if !ok {
				return
			}
			log.Debug().Str("command", cmd.String()).Msg("wear command")
			select {
			case d.commands <- cmd:
			case <-stop:
				return
			}
		}
	}
}

// dispatch feeds ev to the negotiator and performs the resulting actions. Actions that
// fail synchronously produce follow-up events which are handled before returning.
func (d *Device) dispatch(ctx context.Context, ev session.Event) {
	queue := []session.Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		step := d.negotiator.Handle(next)
		for _, action := range step.Actions {
			if follow := d.execute(ctx, action); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
	d.publish()
}

func (d *Device) execute(ctx context.Context, action session.Action) session.Event {
	switch a := action.(type) {
	case session.StartAdvertising:
		if err := d.transport.StartAdvertising(ctx, d.cfg.Name); err != nil {
			return session.AdvertiseFailed{Err: err}
		}
	case session.StartDiscovery:
		if err := d.transport.StartDiscovery(ctx); err != nil {
			return session.DiscoveryFailed{Err: err}
		}
	case session.StopAdvertising:
		d.transport.StopAdvertising()
	case session.StopDiscovery:
		d.transport.StopDiscovery()
	case session.RequestConnection:
		if err := d.transport.RequestConnection(ctx, d.cfg.Name, a.Endpoint); err != nil {
			return session.ConnectionRequestFailed{Endpoint: a.Endpoint, Err: err}
		}
	case session.AcceptConnection:
		if err := d.transport.AcceptConnection(a.Endpoint); err != nil {
			return session.ConnectionResult{Endpoint: a.Endpoint, OK: false, Err: err}
		}
	case session.RejectConnection:
		if err := d.transport.RejectConnection(a.Endpoint); err != nil {
			log.Warn().Err(err).Str("endpoint", string(a.Endpoint)).Msg("failed to reject connection")
		}
	case session.ScheduleRetry:
		d.scheduleRetry(a.Delay)
	case session.CancelRetry:
		d.cancelRetry()
	case session.StopAll:
		d.transport.StopAll()
	default:
		log.Warn().Str("action", fmt.Sprintf("%T", action)).Msg("unhandled session action")
	}
	return nil
}

// relay applies a locally originated command and, on the host, forwards it to the peer
func (d *Device) relay(cmd score.Command) {
	d.board = score.Apply(d.board, cmd)
	log.Info().
		Str("command", cmd.String()).
		Str("board", d.board.String()).
		Msg("command applied")

	if d.cfg.Role == session.RoleHost && d.negotiator.Connected() {
		peer := d.negotiator.Peer()
		if err := d.transport.Send(peer, transport.EncodePayload(cmd, d.cfg.Format)); err != nil {
			log.Error().Err(err).Str("peer", string(peer)).Str("command", cmd.String()).Msg("failed to forward command")
		}
	}
	d.publish()
}

// receive applies a command sent by the connected peer
func (d *Device) receive(p session.PayloadReceived) {
	if !d.negotiator.Connected() || p.Endpoint != d.negotiator.Peer() {
		log.Warn().Str("endpoint", string(p.Endpoint)).Msg("dropping payload from unknown endpoint")
		return
	}
	cmd, err := transport.DecodePayload(p.Data)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", string(p.Endpoint)).Msg("dropping payload")
		return
	}

	d.board = score.Apply(d.board, cmd)
	log.Info().
		Str("command", cmd.String()).
		Str("from", string(p.Endpoint)).
		Str("board", d.board.String()).
		Msg("peer command applied")
	d.publish()
}

func (d *Device) teardown() {
	d.board = score.Board{}
	d.dispatch(context.Background(), session.Stop{})
	log.Info().Str("role", d.cfg.Role.String()).Msg("device stopped")
}

func (d *Device) scheduleRetry(delay time.Duration) {
	d.cancelRetry()
	d.retry = d.clock.NewTimer(delay)
	log.Debug().Dur("delay", delay).Msg("retry scheduled")
}

func (d *Device) cancelRetry() {
	if d.retry == nil {
		return
	}
	stopAndDrainTimer(d.retry)
	d.retry = nil
}

// publish stores a new view and notifies observers if anything changed
func (d *Device) publish() {
	d.mu.Lock()
	next := View{Board: d.board, Session: d.negotiator.Snapshot()}
	if next.Board == d.view.Board && next.Session == d.view.Session {
		d.mu.Unlock()
		return
	}
	next.UpdatedAt = d.clock.Now()
	d.view = next
	observers := slices.Clone(d.observers)
	d.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
