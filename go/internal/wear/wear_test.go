package wear

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/score"
)

func TestLatestReplaysLastValue(t *testing.T) {
	l := NewLatest()
	if err := l.Publish(score.CommandIncA); err != nil {
		t.Fatal(err)
	}
	if err := l.Publish(score.CommandIncB); err != nil {
		t.Fatal(err)
	}

	ch, cancel := l.Subscribe()
	defer cancel()

	select {
	case got := <-ch:
		if got != score.CommandIncB {
			t.Fatalf("replayed %s, want %s", got, score.CommandIncB)
		}
	default:
		t.Fatal("new subscriber got no replay")
	}
}

func TestLatestDeliversEveryPress(t *testing.T) {
	l := NewLatest()
	ch, cancel := l.Subscribe()
	defer cancel()

	burst := []score.Command{score.CommandIncA, score.CommandIncA, score.CommandDecB, score.CommandReset}
	for _, cmd := range burst {
		if err := l.Publish(cmd); err != nil {
			t.Fatal(err)
		}
	}

	for i, want := range burst {
		select {
		case got := <-ch:
			if got != want {
				t.Fatalf("press %d = %s, want %s", i, got, want)
			}
		default:
			t.Fatalf("published %d presses, received %d", len(burst), i)
		}
	}
}

func TestLatestPublishWaitsForSlowSubscriber(t *testing.T) {
	l := NewLatest()
	ch, cancel := l.Subscribe()
	defer cancel()

	const presses = subscriberBuffer * 3
	published := make(chan error, 1)
	go func() {
		for i := 0; i < presses; i++ {
			if err := l.Publish(score.CommandIncB); err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()

	for i := 0; i < presses; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d presses", i, presses)
		}
	}
	if err := <-published; err != nil {
		t.Fatal(err)
	}
}

func TestLatestBlockedPublishReleased(t *testing.T) {
	tests := []struct {
		name    string
		release func(l *Latest, cancel func())
		wantErr error
	}{
		{"cancel", func(_ *Latest, cancel func()) { cancel() }, nil},
		{"close", func(l *Latest, _ func()) { l.Close() }, ErrClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLatest()
			_, cancel := l.Subscribe()
			for i := 0; i < subscriberBuffer; i++ {
				if err := l.Publish(score.CommandIncA); err != nil {
					t.Fatal(err)
				}
			}

			published := make(chan error, 1)
			go func() { published <- l.Publish(score.CommandIncA) }()

			select {
			case err := <-published:
				t.Fatalf("Publish returned %v with a full subscriber", err)
			case <-time.After(20 * time.Millisecond):
			}

			tt.release(l, cancel)
			select {
			case err := <-published:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Publish error = %v, want %v", err, tt.wantErr)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Publish still blocked")
			}
		})
	}
}

func TestLatestCloseReleasesSubscribers(t *testing.T) {
	l := NewLatest()
	ch, cancel := l.Subscribe()
	l.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	cancel() // safe after Close

	if err := l.Publish(score.CommandIncA); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close error = %v", err)
	}
	late, _ := l.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribe after close should return a closed channel")
	}
}

func TestLatestCancel(t *testing.T) {
	l := NewLatest()
	ch, cancel := l.Subscribe()
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	if err := l.Publish(score.CommandIncA); err != nil {
		t.Fatalf("publish with no subscribers: %v", err)
	}
}

func TestListenerHandleRecord(t *testing.T) {
	l := NewLatest()
	ch, cancel := l.Subscribe()
	defer cancel()
	listener := NewListener(nil, SubjectForPath(DefaultSubjectPrefix, ScoreUpdatePath), l)

	if err := listener.HandleRecord(Record{Command: "FOO", Timestamp: 1}); !errors.Is(err, score.ErrUnknownCommand) {
		t.Fatalf("unknown command error = %v", err)
	}
	select {
	case got := <-ch:
		t.Fatalf("unknown command was published as %s", got)
	default:
	}

	if err := listener.HandleRecord(Record{Command: "PLAYER_2_DEC", Timestamp: 2}); err != nil {
		t.Fatal(err)
	}
	if got := <-ch; got != score.CommandDecB {
		t.Fatalf("got %s", got)
	}
}

type recordingSink struct {
	subject string
	data    []byte
}

func (s *recordingSink) Publish(subject string, data []byte) error {
	s.subject, s.data = subject, data
	return nil
}

func TestPublisherWritesTimestampedRecord(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	sink := &recordingSink{}
	subject := SubjectForPath(DefaultSubjectPrefix, ScoreUpdatePath)
	p := NewSinkPublisher(sink, subject, clock)

	if err := p.Send(score.CommandIncA); err != nil {
		t.Fatal(err)
	}
	if sink.subject != "scorelink.wear.score_update" {
		t.Fatalf("subject = %q", sink.subject)
	}

	var rec Record
	if err := json.Unmarshal(sink.data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Command != "PLAYER_1_INC" || rec.Timestamp != 1_700_000_000_000 {
		t.Fatalf("record = %+v", rec)
	}

	clock.Advance(time.Millisecond)
	if next := p.Record(score.CommandIncA); next.Timestamp <= rec.Timestamp {
		t.Fatalf("timestamp did not advance: %d", next.Timestamp)
	}

	if err := p.Send(score.Command("BOGUS")); !errors.Is(err, score.ErrUnknownCommand) {
		t.Fatalf("invalid send error = %v", err)
	}
}

func TestSubjectForPath(t *testing.T) {
	tests := map[string]string{
		"/score_update": "scorelink.wear.score_update",
		"/a/b":          "scorelink.wear.a.b",
		"/":             "scorelink.wear",
	}
	for path, want := range tests {
		if got := SubjectForPath(DefaultSubjectPrefix, path); got != want {
			t.Errorf("SubjectForPath(%q) = %q, want %q", path, got, want)
		}
	}
}
