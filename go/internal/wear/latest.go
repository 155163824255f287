package wear

import (
	"errors"
	"sync"

	"github.com/mcdev12/scorelink/go/internal/score"
)

var ErrClosed = errors.New("wear channel closed")

const subscriberBuffer = 16

// Latest broadcasts wearable commands. New subscribers immediately receive the last
// published value; existing subscribers receive every press in order. Publish waits
// while a subscriber's queue is full, so presses are never merged or dropped.
//
// It is created by the composition root when a session starts and closed at teardown.
type Latest struct {
	// pub serializes publishers and is held while sending; mu guards the fields below.
	pub sync.Mutex
	mu  sync.Mutex

	value  score.Command
	has    bool
	subs   map[*subscriber]struct{}
	closed bool

	closing   chan struct{}
	closeOnce sync.Once
}

type subscriber struct {
	ch   chan score.Command
	done chan struct{}
}

// NewLatest creates an open, empty channel
func NewLatest() *Latest {
	return &Latest{
		subs:    make(map[*subscriber]struct{}),
		closing: make(chan struct{}),
	}
}

// Publish records cmd as the current value and delivers it to every subscriber. It
// blocks until each subscriber has room, cancels, or the channel is closed.
func (l *Latest) Publish(cmd score.Command) error {
	l.pub.Lock()
	defer l.pub.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.value, l.has = cmd, true
	targets := make([]*subscriber, 0, len(l.subs))
	for s := range l.subs {
		targets = append(targets, s)
	}
	l.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- cmd:
		case <-s.done:
		case <-l.closing:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe returns a channel of commands and a cancel func that releases it. The
// channel is closed by cancel or by Close.
func (l *Latest) Subscribe() (<-chan score.Command, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &subscriber{
		ch:   make(chan score.Command, subscriberBuffer),
		done: make(chan struct{}),
	}
	if l.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	if l.has {
		s.ch <- l.value
	}
	l.subs[s] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(s.done)
			// wait out an in-flight Publish before closing the channel it may send on
			l.pub.Lock()
			defer l.pub.Unlock()
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[s]; ok {
				delete(l.subs, s)
				close(s.ch)
			}
		})
	}
	return s.ch, cancel
}

// Close releases every subscriber and any blocked Publish. Later publishes fail with
// ErrClosed.
func (l *Latest) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.closing)

		l.pub.Lock()
		defer l.pub.Unlock()
		l.mu.Lock()
		defer l.mu.Unlock()
		for s := range l.subs {
			close(s.ch)
			delete(l.subs, s)
		}
	})
}
