package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Match is one finished game
type Match struct {
	ID         uuid.UUID `json:"id"`
	Winner     string    `json:"winner"`
	ScoreA     int       `json:"score_a"`
	ScoreB     int       `json:"score_b"`
	Role       string    `json:"role"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store persists finished matches
type Store interface {
	Insert(ctx context.Context, m Match) error
	Recent(ctx context.Context, limit int) ([]Match, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id          UUID PRIMARY KEY,
	winner      TEXT NOT NULL,
	score_a     INTEGER NOT NULL,
	score_b     INTEGER NOT NULL,
	role        TEXT NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

// Repository is the Postgres Store
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over pool
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the matches table if it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create matches table: %w", err)
	}
	return nil
}

// Insert stores m
func (r *Repository) Insert(ctx context.Context, m Match) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO matches (id, winner, score_a, score_b, role, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Winner, m.ScoreA, m.ScoreB, m.Role, m.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match %s: %w", m.ID, err)
	}
	return nil
}

// Recent returns up to limit matches, newest first
func (r *Repository) Recent(ctx context.Context, limit int) ([]Match, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, winner, score_a, score_b, role, finished_at
		FROM matches
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Winner, &m.ScoreA, &m.ScoreB, &m.Role, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	return matches, nil
}
