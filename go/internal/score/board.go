package score

import "fmt"

const (
	// WinningScore is the minimum score a team needs to take the game
	WinningScore = 15
	// WinningLead is the minimum margin over the other team
	WinningLead = 2
)

// Winner names the team that took the game. The zero value means no winner yet.
type Winner string

const (
	NoWinner Winner = ""
	TeamA    Winner = "TEAM WALL"
	TeamB    Winner = "TEAM GLASS"
)

// Pair holds both team scores. Neither value is ever negative.
type Pair struct {
	A int `json:"score_a"`
	B int `json:"score_b"`
}

// Board is the full scoreboard state for one game
type Board struct {
	Pair
	Winner Winner `json:"winner,omitempty"`
}

// Finished reports whether a winner has been declared
func (b Board) Finished() bool {
	return b.Winner != NoWinner
}

func (b Board) String() string {
	if b.Finished() {
		return fmt.Sprintf("%d-%d (%s wins)", b.A, b.B, b.Winner)
	}
	return fmt.Sprintf("%d-%d", b.A, b.B)
}

// Apply returns the board that results from applying cmd to b. It has no side effects,
// so peers that apply the same commands in the same order end up with identical boards.
//
// A finished game is frozen: every command except reset leaves it unchanged.
func Apply(b Board, cmd Command) Board {
	if b.Finished() && cmd != CommandReset {
		return b
	}

	switch cmd {
	case CommandIncA:
		b.A++
	case CommandIncB:
		b.B++
	case CommandDecA:
		if b.A > 0 {
			b.A--
		}
	case CommandDecB:
		if b.B > 0 {
			b.B--
		}
	case CommandReset:
		return Board{}
	default:
		return b
	}

	b.Winner = winnerOf(b.Pair, b.Winner)
	return b
}

// winnerOf evaluates the win condition, team A first.
func winnerOf(p Pair, current Winner) Winner {
	if p.A >= WinningScore && p.A-p.B >= WinningLead {
		return TeamA
	}
	if p.B >= WinningScore && p.B-p.A >= WinningLead {
		return TeamB
	}
	return current
}
