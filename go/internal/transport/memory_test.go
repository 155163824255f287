package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/mcdev12/scorelink/go/internal/session"
)

func nextEvent(t *testing.T, tr *MemoryTransport) session.Event {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	default:
		t.Fatal("expected an event, queue empty")
		return nil
	}
}

func expectNoEvent(t *testing.T, tr *MemoryTransport) {
	t.Helper()
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %#v", ev)
	default:
	}
}

func connectPair(t *testing.T) (*MemoryTransport, *MemoryTransport) {
	t.Helper()
	ctx := context.Background()
	radio := NewMemoryRadio()
	host := radio.NewTransport(DefaultServiceID)
	client := radio.NewTransport(DefaultServiceID)

	if err := host.StartAdvertising(ctx, "Scorekeeper"); err != nil {
		t.Fatal(err)
	}
	if err := client.StartDiscovery(ctx); err != nil {
		t.Fatal(err)
	}
	found, ok := nextEvent(t, client).(session.EndpointFound)
	if !ok || found.Endpoint != host.ID() || found.Name != "Scorekeeper" {
		t.Fatalf("found = %#v", found)
	}

	if err := client.RequestConnection(ctx, "SCORE_CLIENT_TABLET", host.ID()); err != nil {
		t.Fatal(err)
	}
	if ev, ok := nextEvent(t, host).(session.ConnectionInitiated); !ok || ev.Endpoint != client.ID() {
		t.Fatalf("host initiated = %#v", ev)
	}
	if ev, ok := nextEvent(t, client).(session.ConnectionInitiated); !ok || ev.Endpoint != host.ID() {
		t.Fatalf("client initiated = %#v", ev)
	}

	if err := host.AcceptConnection(client.ID()); err != nil {
		t.Fatal(err)
	}
	expectNoEvent(t, host)
	if err := client.AcceptConnection(host.ID()); err != nil {
		t.Fatal(err)
	}
	if ev, ok := nextEvent(t, host).(session.ConnectionResult); !ok || !ev.OK {
		t.Fatalf("host result = %#v", ev)
	}
	if ev, ok := nextEvent(t, client).(session.ConnectionResult); !ok || !ev.OK {
		t.Fatalf("client result = %#v", ev)
	}
	return host, client
}

func TestMemoryHandshakeAndSend(t *testing.T) {
	host, client := connectPair(t)

	if err := host.Send(client.ID(), []byte("PLAYER_1_INC")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	p, ok := nextEvent(t, client).(session.PayloadReceived)
	if !ok || p.Endpoint != host.ID() || string(p.Data) != "PLAYER_1_INC" {
		t.Fatalf("payload = %#v", p)
	}
}

func TestMemoryPayloadFollowsConnectionResult(t *testing.T) {
	ctx := context.Background()
	radio := NewMemoryRadio()
	host := radio.NewTransport(DefaultServiceID)
	client := radio.NewTransport(DefaultServiceID)

	if err := host.StartAdvertising(ctx, "Scorekeeper"); err != nil {
		t.Fatal(err)
	}
	if err := client.RequestConnection(ctx, "SCORE_CLIENT_TABLET", host.ID()); err != nil {
		t.Fatal(err)
	}
	if err := client.AcceptConnection(host.ID()); err != nil {
		t.Fatal(err)
	}
	if err := host.AcceptConnection(client.ID()); err != nil {
		t.Fatal(err)
	}
	// the host sends before the client has looked at any event
	if err := host.Send(client.ID(), []byte("PLAYER_1_INC")); err != nil {
		t.Fatal(err)
	}

	if _, ok := nextEvent(t, client).(session.ConnectionInitiated); !ok {
		t.Fatal("want ConnectionInitiated first")
	}
	if ev, ok := nextEvent(t, client).(session.ConnectionResult); !ok || !ev.OK {
		t.Fatalf("second event = %#v", ev)
	}
	if ev, ok := nextEvent(t, client).(session.PayloadReceived); !ok || string(ev.Data) != "PLAYER_1_INC" {
		t.Fatalf("third event = %#v", ev)
	}
}

func TestMemoryDisconnectNotifiesRemoteOnly(t *testing.T) {
	host, client := connectPair(t)

	host.Disconnect(client.ID())
	if ev, ok := nextEvent(t, client).(session.Disconnected); !ok || ev.Endpoint != host.ID() {
		t.Fatalf("client event = %#v", ev)
	}
	expectNoEvent(t, host)

	if err := host.Send(client.ID(), []byte("RESET_SCORES")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send after disconnect error = %v", err)
	}
}

func TestMemorySeverNotifiesBothEnds(t *testing.T) {
	host, client := connectPair(t)

	client.Sever()
	if _, ok := nextEvent(t, host).(session.Disconnected); !ok {
		t.Fatal("host not notified")
	}
	if _, ok := nextEvent(t, client).(session.Disconnected); !ok {
		t.Fatal("client not notified")
	}
}

func TestMemoryRejectFailsBothSides(t *testing.T) {
	ctx := context.Background()
	radio := NewMemoryRadio()
	host := radio.NewTransport(DefaultServiceID)
	client := radio.NewTransport(DefaultServiceID)
	_ = host.StartAdvertising(ctx, "Scorekeeper")

	if err := client.RequestConnection(ctx, "tablet", host.ID()); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, host)
	nextEvent(t, client)

	if err := host.RejectConnection(client.ID()); err != nil {
		t.Fatal(err)
	}
	if ev, ok := nextEvent(t, client).(session.ConnectionResult); !ok || ev.OK {
		t.Fatalf("client result = %#v", ev)
	}
	if ev, ok := nextEvent(t, host).(session.ConnectionResult); !ok || ev.OK {
		t.Fatalf("host result = %#v", ev)
	}
}

func TestMemoryServiceIsolation(t *testing.T) {
	ctx := context.Background()
	radio := NewMemoryRadio()
	host := radio.NewTransport("other.service")
	client := radio.NewTransport(DefaultServiceID)

	_ = host.StartAdvertising(ctx, "Scorekeeper")
	_ = client.StartDiscovery(ctx)
	expectNoEvent(t, client)

	if err := client.RequestConnection(ctx, "tablet", host.ID()); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("cross-service request error = %v", err)
	}
}
