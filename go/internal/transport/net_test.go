package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/session"
)

func waitNetEvent(t *testing.T, tr *NetTransport) session.Event {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return nil
	}
}

// linkedNetTransports wires a client to a host served by httptest, skipping NATS discovery.
func linkedNetTransports(t *testing.T) (host, client *NetTransport) {
	t.Helper()
	clock := clockwork.NewRealClock()
	host = NewNetTransport(nil, clock, DefaultNetConfig())
	client = NewNetTransport(nil, clock, DefaultNetConfig())

	mux := http.NewServeMux()
	host.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		client.Close()
		host.Close()
		srv.Close()
	})

	host.mu.Lock()
	host.advertising = true
	host.mu.Unlock()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/peer"
	client.handleAnnouncement(mustJSON(t, announcement{
		Service:  DefaultServiceID,
		Endpoint: string(host.ID()),
		Name:     "Scorekeeper",
		URL:      wsURL,
	}))
	if ev, ok := waitNetEvent(t, client).(session.EndpointFound); !ok || ev.Endpoint != host.ID() {
		t.Fatalf("client found = %#v", ev)
	}
	return host, client
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNetHandshakeSendAndDisconnect(t *testing.T) {
	host, client := linkedNetTransports(t)
	ctx := context.Background()

	if err := client.RequestConnection(ctx, "SCORE_CLIENT_TABLET", host.ID()); err != nil {
		t.Fatalf("RequestConnection: %v", err)
	}

	hostInit, ok := waitNetEvent(t, host).(session.ConnectionInitiated)
	if !ok || hostInit.Endpoint != client.ID() || hostInit.Name != "SCORE_CLIENT_TABLET" {
		t.Fatalf("host initiated = %#v", hostInit)
	}
	if ev, ok := waitNetEvent(t, client).(session.ConnectionInitiated); !ok || ev.Endpoint != host.ID() {
		t.Fatalf("client initiated = %#v", ev)
	}

	if err := host.AcceptConnection(client.ID()); err != nil {
		t.Fatal(err)
	}
	if err := client.AcceptConnection(host.ID()); err != nil {
		t.Fatal(err)
	}
	if ev, ok := waitNetEvent(t, host).(session.ConnectionResult); !ok || !ev.OK {
		t.Fatalf("host result = %#v", ev)
	}
	if ev, ok := waitNetEvent(t, client).(session.ConnectionResult); !ok || !ev.OK {
		t.Fatalf("client result = %#v", ev)
	}

	if err := host.Send(client.ID(), []byte("PLAYER_2_INC")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p, ok := waitNetEvent(t, client).(session.PayloadReceived); !ok || p.Endpoint != host.ID() || string(p.Data) != "PLAYER_2_INC" {
		t.Fatalf("payload = %#v", p)
	}

	client.Disconnect(host.ID())
	if ev, ok := waitNetEvent(t, host).(session.Disconnected); !ok || ev.Endpoint != client.ID() {
		t.Fatalf("host event = %#v", ev)
	}
}

func TestNetRejectReportsFailureToDialer(t *testing.T) {
	host, client := linkedNetTransports(t)

	if err := client.RequestConnection(context.Background(), "tablet", host.ID()); err != nil {
		t.Fatal(err)
	}
	waitNetEvent(t, host)
	waitNetEvent(t, client)

	if err := host.RejectConnection(client.ID()); err != nil {
		t.Fatal(err)
	}
	if ev, ok := waitNetEvent(t, client).(session.ConnectionResult); !ok || ev.OK {
		t.Fatalf("client result = %#v", ev)
	}
}

func TestNetRequestUnknownEndpoint(t *testing.T) {
	client := NewNetTransport(nil, clockwork.NewRealClock(), DefaultNetConfig())
	defer client.Close()

	if err := client.RequestConnection(context.Background(), "tablet", "nobody"); err == nil {
		t.Fatal("expected error for unknown endpoint")
	}
}

func TestNetAnnouncementFiltering(t *testing.T) {
	tr := NewNetTransport(nil, clockwork.NewRealClock(), DefaultNetConfig())
	defer tr.Close()

	tr.handleAnnouncement([]byte("{not json"))
	tr.handleAnnouncement(mustJSON(t, announcement{Service: "other", Endpoint: "x", URL: "ws://x"}))
	tr.handleAnnouncement(mustJSON(t, announcement{Service: DefaultServiceID, Endpoint: string(tr.ID())}))

	ann := announcement{Service: DefaultServiceID, Endpoint: "phone", Name: "Scorekeeper", URL: "ws://phone"}
	tr.handleAnnouncement(mustJSON(t, ann))
	tr.handleAnnouncement(mustJSON(t, ann)) // repeats are not new finds
	ann.Leaving = true
	tr.handleAnnouncement(mustJSON(t, ann))

	if ev, ok := waitNetEvent(t, tr).(session.EndpointFound); !ok || ev.Endpoint != "phone" {
		t.Fatalf("first event = %#v", ev)
	}
	if ev, ok := waitNetEvent(t, tr).(session.EndpointLost); !ok || ev.Endpoint != "phone" {
		t.Fatalf("second event = %#v", ev)
	}
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %#v", ev)
	default:
	}
}

func TestNetPeerRouteRequiresAdvertising(t *testing.T) {
	tr := NewNetTransport(nil, clockwork.NewRealClock(), DefaultNetConfig())
	defer tr.Close()

	rec := httptest.NewRecorder()
	tr.HandlePeerConnection(rec, httptest.NewRequest(http.MethodGet, "/ws/peer?endpoint=x", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
