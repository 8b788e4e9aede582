package memnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ringrelay/internal/network"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type endpoint struct {
	n      *Node
	in     chan network.Inbound
	events chan network.Event
}

func join(h *Hub, id string, whitelist ...string) *endpoint {
	e := &endpoint{
		in:     make(chan network.Inbound, 16),
		events: make(chan network.Event, 16),
	}
	e.n = h.Join(id, e.in, e.events)
	for _, p := range whitelist {
		e.n.AddWhitelisted(context.Background(), p)
	}
	return e
}

func (e *endpoint) nextEvent(t *testing.T) network.Event {
	t.Helper()
	select {
	case ev := <-e.events:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event for %s", e.n.LocalID())
	}
	return network.Event{}
}

func (e *endpoint) nextInbound(t *testing.T) network.Inbound {
	t.Helper()
	select {
	case in := <-e.in:
		return in
	case <-time.After(time.Second):
		t.Fatalf("no inbound for %s", e.n.LocalID())
	}
	return network.Inbound{}
}

func TestConnectRequiresMutualWhitelist(t *testing.T) {
	h := NewHub()
	defer h.Close()
	a := join(h, "a", "b")
	b := join(h, "b")

	require.NoError(t, h.Connect("a", "b"))
	assert.Equal(t, network.Event{Kind: network.NewListenAddress, Addr: "mem://a"}, a.nextEvent(t))
	assert.Equal(t, network.PeerDiscovered, a.nextEvent(t).Kind)
	assert.Equal(t, network.NewListenAddress, b.nextEvent(t).Kind)
	assert.Equal(t, network.PeerDiscovered, b.nextEvent(t).Kind)
	assert.Equal(t, network.Event{Kind: network.ConnectionRejected, Peer: "a", Addr: "mem://a"}, b.nextEvent(t))
	assert.Empty(t, a.n.Peers())

	b.n.AddWhitelisted(context.Background(), "a")
	assert.Equal(t, network.ConnectionEstablished, a.nextEvent(t).Kind)
	assert.Equal(t, network.ConnectionEstablished, b.nextEvent(t).Kind)
	assert.Equal(t, []string{"b"}, a.n.Peers())
	assert.Equal(t, []string{"a"}, b.n.Whitelisted(context.Background()))
}

func TestPublishAndSendReachTransitively(t *testing.T) {
	h := NewHub()
	defer h.Close()
	a := join(h, "a", "b")
	b := join(h, "b", "a", "c")
	c := join(h, "c", "b")
	require.NoError(t, h.Connect("a", "b"))
	require.NoError(t, h.Connect("b", "c"))

	ctx := context.Background()
	require.NoError(t, a.n.Publish(ctx, []byte("hello")))
	assert.Equal(t, network.Inbound{From: "a", Data: []byte("hello"), Broadcast: true}, b.nextInbound(t))
	assert.Equal(t, network.Inbound{From: "a", Data: []byte("hello"), Broadcast: true}, c.nextInbound(t))

	require.NoError(t, a.n.Send(ctx, "c", []byte("direct")))
	assert.Equal(t, network.Inbound{From: "a", Data: []byte("direct")}, c.nextInbound(t))

	assert.ErrorIs(t, a.n.Send(ctx, "a", nil), network.ErrSelf)
	h.Disconnect("b", "c")
	assert.ErrorIs(t, a.n.Send(ctx, "c", nil), network.ErrNotConnected)
}

func TestRemoveWhitelistedClosesLink(t *testing.T) {
	h := NewHub()
	defer h.Close()
	a := join(h, "a", "b")
	b := join(h, "b", "a")
	require.NoError(t, h.Connect("a", "b"))
	a.n.RemoveWhitelisted(context.Background(), "b")

	var kinds []network.EventKind
	for i := 0; i < 4; i++ {
		kinds = append(kinds, b.nextEvent(t).Kind)
	}
	assert.Equal(t, []network.EventKind{
		network.NewListenAddress, network.PeerDiscovered,
		network.ConnectionEstablished, network.ConnectionClosed,
	}, kinds)
	assert.Empty(t, b.n.Peers())
}
