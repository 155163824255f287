package wear

import (
	"fmt"
	"sync"

	"github.com/mcdev12/scorelink/go/internal/score"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Listener receives wearable records from NATS and feeds their commands into a Latest
type Listener struct {
	nc      *nats.Conn
	subject string
	latest  *Latest

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewListener creates a listener for subject
func NewListener(nc *nats.Conn, subject string, latest *Latest) *Listener {
	return &Listener{
		nc:      nc,
		subject: subject,
		latest:  latest,
	}
}

// Start subscribes to the wearable subject
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		return nil
	}
	sub, err := l.nc.Subscribe(l.subject, func(msg *nats.Msg) {
		rec, err := DecodeRecord(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed wear record")
			return
		}
		if err := l.HandleRecord(rec); err != nil {
			log.Warn().Err(err).Msg("dropping wear record")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", l.subject, err)
	}
	l.sub = sub

	log.Info().Str("subject", l.subject).Msg("wear listener started")
	return nil
}

// HandleRecord validates one record and publishes its command
func (l *Listener) HandleRecord(rec Record) error {
	cmd, err := score.ParseCommand(rec.Command)
	if err != nil {
		return err
	}

	log.Info().
		Str("command", cmd.String()).
		Int64("timestamp", rec.Timestamp).
		Msg("watch command received")

	return l.latest.Publish(cmd)
}

// Stop unsubscribes. Pending callbacks may still run until NATS drains them.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub == nil {
		return nil
	}
	err := l.sub.Unsubscribe()
	l.sub = nil
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", l.subject, err)
	}
	return nil
}
