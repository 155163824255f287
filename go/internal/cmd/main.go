package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/dbconfig"
	"github.com/mcdev12/scorelink/go/internal/history"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	settings, err := loadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := setupNATS(settings)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}

	var (
		pool *pgxpool.Pool
		repo *history.Repository
	)
	if dbCfg := dbconfig.NewConfigFromEnv(); dbCfg.Enabled {
		pool, repo, err = setupDatabase(ctx, dbCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up match history")
		}
		defer pool.Close()
	}

	services := setupServices(settings, nc, pool, repo, clockwork.NewRealClock())
	if err := services.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start services")
	}

	server := setupServer(settings.Port, services)

	log.Info().
		Str("role", settings.Role.String()).
		Str("transport", settings.Transport).
		Str("format", settings.Format.String()).
		Bool("wear", services.Latest != nil).
		Bool("history", repo != nil).
		Str("addr", server.Addr).
		Msg("starting scoreboard")

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), settings.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// stops the session, disconnects the peer and resets the board
	cancel()
	services.Stop()

	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}

	log.Info().Msg("scoreboard shutdown complete")
}

// setupNATS connects when the LAN transport or the wearable channel needs it. With the
// memory transport a missing server only disables the wearable channel.
func setupNATS(settings Settings) (*nats.Conn, error) {
	needed := settings.Transport == "net"
	if !needed && !settings.WearEnabled {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name(fmt.Sprintf("scorelink-%s", settings.Role)),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(settings.NATSURL, opts...)
	if err != nil {
		if !needed {
			log.Warn().Err(err).Msg("NATS unavailable, wearable channel disabled")
			return nil, nil
		}
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}
