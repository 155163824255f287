package display

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
)

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	State             string   `json:"state"`
	NATSConnected     *bool    `json:"nats_connected,omitempty"`
	DatabaseConnected *bool    `json:"database_connected,omitempty"`
	Errors            []string `json:"errors"`
}

// HealthChecker reports on the device and the connections it depends on. Unset
// dependencies are skipped.
type HealthChecker struct {
	board    Scoreboard
	natsConn *nats.Conn
	pool     *pgxpool.Pool
}

func NewHealthChecker(board Scoreboard, natsConn *nats.Conn, pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{board: board, natsConn: natsConn, pool: pool}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		State:   h.board.Snapshot().Session.State.String(),
		Errors:  []string{},
	}

	if h.natsConn != nil {
		connected := h.natsConn.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.pool != nil {
		connected := true
		if err := h.pool.Ping(ctx); err != nil {
			connected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
		status.DatabaseConnected = &connected
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
