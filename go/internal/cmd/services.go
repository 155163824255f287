package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/display"
	"github.com/mcdev12/scorelink/go/internal/history"
	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/mcdev12/scorelink/go/internal/session"
	"github.com/mcdev12/scorelink/go/internal/transport"
	"github.com/mcdev12/scorelink/go/internal/wear"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Device   *relay.Device
	Hub      *display.Hub
	Handler  *display.Handler
	Recorder *history.Recorder

	// set when the wearable channel is on
	Latest   *wear.Latest
	Listener *wear.Listener

	// set for TRANSPORT=net
	Net *transport.NetTransport

	// the in-process peer for TRANSPORT=memory
	Peer *relay.Device

	wg sync.WaitGroup
}

func setupServices(settings Settings, nc *nats.Conn, pool *pgxpool.Pool, repo *history.Repository, clock clockwork.Clock) *Services {
	// Transport → Device → observers (hub, recorder) → HTTP handler
	s := &Services{}

	var tr transport.Transport
	switch settings.Transport {
	case "memory":
		radio := transport.NewMemoryRadio()
		tr = radio.NewTransport(settings.Net.ServiceID)

		peerRole := session.RoleClient
		if settings.Role == session.RoleClient {
			peerRole = session.RoleHost
		}
		s.Peer = relay.NewDevice(settings.deviceConfig(peerRole), radio.NewTransport(settings.Net.ServiceID), clock, nil)
	default:
		s.Net = transport.NewNetTransport(nc, clock, settings.Net)
		tr = s.Net
	}

	// the wearable pairs with the host phone
	var source relay.CommandSource
	if settings.WearEnabled && settings.Role == session.RoleHost && nc != nil {
		s.Latest = wear.NewLatest()
		s.Listener = wear.NewListener(nc, settings.WearSubject, s.Latest)
		source = s.Latest
	}

	s.Device = relay.NewDevice(settings.deviceConfig(settings.Role), tr, clock, source)

	s.Hub = display.NewHub(display.DefaultHubConfig())
	s.Device.OnChange(s.Hub.Broadcast)

	var matches display.MatchLister
	if repo != nil {
		s.Recorder = history.NewRecorder(repo, clock)
		s.Device.OnChange(s.Recorder.Observe)
		matches = repo
	}

	health := display.NewHealthChecker(s.Device, nc, pool)
	s.Handler = display.NewHandler(s.Device, s.Hub, matches, health)
	return s
}

// Start launches the hub, the wear listener and the device loops
func (s *Services) Start(ctx context.Context) error {
	go s.Hub.Start(ctx)

	if s.Listener != nil {
		if err := s.Listener.Start(); err != nil {
			return err
		}
	}

	devices := []*relay.Device{s.Device}
	if s.Peer != nil {
		devices = append(devices, s.Peer)
	}
	for _, d := range devices {
		s.wg.Add(1)
		go func(d *relay.Device) {
			defer s.wg.Done()
			if err := d.Run(ctx); err != nil {
				log.Error().Err(err).Str("role", d.Role().String()).Msg("device stopped with error")
			}
		}(d)
	}
	return nil
}

// Stop waits for the device loops, which exit once the Start context is cancelled, and
// releases the rest.
func (s *Services) Stop() {
	s.wg.Wait()

	if s.Listener != nil {
		if err := s.Listener.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop wear listener")
		}
	}
	if s.Latest != nil {
		s.Latest.Close()
	}
	if s.Net != nil {
		s.Net.Close()
	}
	if s.Recorder != nil {
		s.Recorder.Wait()
	}
}

// RegisterRoutes mounts the display surface and, for the LAN transport, the peer link
func (s *Services) RegisterRoutes(mux *http.ServeMux) {
	s.Handler.RegisterRoutes(mux)
	if s.Net != nil {
		s.Net.RegisterRoutes(mux)
	}
}
