package wear

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/score"
	"github.com/nats-io/nats.go"
)

// Sink is where the publisher writes encoded records
type Sink interface {
	Publish(subject string, data []byte) error
}

// Publisher writes wearable records, the way the watch app does
type Publisher struct {
	sink    Sink
	subject string
	clock   clockwork.Clock
	flush   func(time.Duration) error
}

// NewPublisher creates a publisher that sends urgently: every record is flushed to the
// server before Send returns.
func NewPublisher(nc *nats.Conn, subject string, clock clockwork.Clock) *Publisher {
	return &Publisher{
		sink:    nc,
		subject: subject,
		clock:   clock,
		flush:   nc.FlushTimeout,
	}
}

// NewSinkPublisher creates a publisher over any sink, without flushing
func NewSinkPublisher(sink Sink, subject string, clock clockwork.Clock) *Publisher {
	return &Publisher{sink: sink, subject: subject, clock: clock}
}

// Record builds the record Send would write for cmd
func (p *Publisher) Record(cmd score.Command) Record {
	return Record{
		Command:   cmd.String(),
		Timestamp: p.clock.Now().UnixMilli(),
	}
}

// Send publishes cmd
func (p *Publisher) Send(cmd score.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("send %q: %w", cmd, score.ErrUnknownCommand)
	}

	data, err := json.Marshal(p.Record(cmd))
	if err != nil {
		return fmt.Errorf("marshal wear record: %w", err)
	}
	if err := p.sink.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish wear record: %w", err)
	}
	if p.flush != nil {
		if err := p.flush(2 * time.Second); err != nil {
			return fmt.Errorf("flush wear record: %w", err)
		}
	}
	return nil
}
