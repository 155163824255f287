package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/mcdev12/scorelink/go/internal/score"
	"github.com/rs/zerolog/log"
)

const insertTimeout = 5 * time.Second

// Recorder watches device views and stores each match once, when its winner is first
// declared. Inserts run in the background; failures are logged and dropped.
type Recorder struct {
	store Store
	clock clockwork.Clock

	mu     sync.Mutex
	winner score.Winner
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, clock clockwork.Clock) *Recorder {
	return &Recorder{store: store, clock: clock}
}

// Observe is registered as a device observer
func (r *Recorder) Observe(v relay.View) {
	r.mu.Lock()
	previous := r.winner
	r.winner = v.Board.Winner
	r.mu.Unlock()

	if previous != score.NoWinner || v.Board.Winner == score.NoWinner {
		return
	}

	m := Match{
		ID:         uuid.New(),
		Winner:     string(v.Board.Winner),
		ScoreA:     v.Board.A,
		ScoreB:     v.Board.B,
		Role:       v.Session.Role.String(),
		FinishedAt: r.clock.Now().UTC(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()

		if err := r.store.Insert(ctx, m); err != nil {
			log.Error().Err(err).Str("match_id", m.ID.String()).Msg("failed to record match")
			return
		}
		log.Info().
			Str("match_id", m.ID.String()).
			Str("winner", m.Winner).
			Int("score_a", m.ScoreA).
			Int("score_b", m.ScoreB).
			Msg("match recorded")
	}()
}

// Wait blocks until pending inserts finish
func (r *Recorder) Wait() {
	r.wg.Wait()
}
