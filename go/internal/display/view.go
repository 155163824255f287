package display

import (
	"time"

	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/mcdev12/scorelink/go/internal/score"
)

// ScoreboardView is the JSON form of what the scoreboard screen renders
type ScoreboardView struct {
	ScoreA    int       `json:"score_a"`
	ScoreB    int       `json:"score_b"`
	TeamA     string    `json:"team_a"`
	TeamB     string    `json:"team_b"`
	Winner    string    `json:"winner,omitempty"`
	Status    string    `json:"status"`
	Connected bool      `json:"connected"`
	Role      string    `json:"role"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewScoreboardView flattens a device view
func NewScoreboardView(v relay.View) ScoreboardView {
	return ScoreboardView{
		ScoreA:    v.Board.A,
		ScoreB:    v.Board.B,
		TeamA:     string(score.TeamA),
		TeamB:     string(score.TeamB),
		Winner:    string(v.Board.Winner),
		Status:    v.Session.Status,
		Connected: v.Session.Connected(),
		Role:      v.Session.Role.String(),
		State:     v.Session.State.String(),
		UpdatedAt: v.UpdatedAt,
	}
}

func (s ScoreboardView) fields() map[string]any {
	return map[string]any{
		"score_a":    s.ScoreA,
		"score_b":    s.ScoreB,
		"team_a":     s.TeamA,
		"team_b":     s.TeamB,
		"winner":     s.Winner,
		"status":     s.Status,
		"connected":  s.Connected,
		"role":       s.Role,
		"state":      s.State,
		"updated_at": s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
