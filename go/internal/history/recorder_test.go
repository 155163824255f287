package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/mcdev12/scorelink/go/internal/score"
	"github.com/mcdev12/scorelink/go/internal/session"
)

type memoryStore struct {
	mu      sync.Mutex
	matches []Match
	err     error
}

func (s *memoryStore) Insert(_ context.Context, m Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.matches = append(s.matches, m)
	return nil
}

func (s *memoryStore) Recent(_ context.Context, limit int) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.matches) {
		limit = len(s.matches)
	}
	return append([]Match(nil), s.matches[:limit]...), nil
}

func view(a, b int, winner score.Winner) relay.View {
	return relay.View{
		Board:   score.Board{Pair: score.Pair{A: a, B: b}, Winner: winner},
		Session: session.Snapshot{Role: session.RoleHost},
	}
}

func TestRecorderStoresEachMatchOnce(t *testing.T) {
	store := &memoryStore{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	r := NewRecorder(store, clock)

	r.Observe(view(14, 3, score.NoWinner))
	r.Observe(view(15, 3, score.TeamA))
	r.Wait()

	// a frozen board is republished, then reset and replayed
	r.Observe(view(15, 3, score.TeamA))
	r.Observe(view(0, 0, score.NoWinner))
	r.Observe(view(13, 15, score.TeamB))
	r.Wait()

	if len(store.matches) != 2 {
		t.Fatalf("recorded %d matches, want 2", len(store.matches))
	}
	first := store.matches[0]
	if first.Winner != string(score.TeamA) || first.ScoreA != 15 || first.ScoreB != 3 {
		t.Errorf("first match = %+v", first)
	}
	if first.Role != "host" || !first.FinishedAt.Equal(clock.Now()) {
		t.Errorf("first match metadata = %+v", first)
	}
	if store.matches[1].Winner != string(score.TeamB) {
		t.Errorf("second winner = %q", store.matches[1].Winner)
	}
	if first.ID == store.matches[1].ID {
		t.Error("match ids should be unique")
	}
}

func TestRecorderSurvivesStoreErrors(t *testing.T) {
	store := &memoryStore{err: errors.New("connection refused")}
	r := NewRecorder(store, clockwork.NewFakeClock())

	r.Observe(view(15, 0, score.TeamA))
	r.Wait()

	store.err = nil
	r.Observe(view(0, 0, score.NoWinner))
	r.Observe(view(0, 15, score.TeamB))
	r.Wait()

	if len(store.matches) != 1 || store.matches[0].Winner != string(score.TeamB) {
		t.Fatalf("matches = %+v", store.matches)
	}
}
