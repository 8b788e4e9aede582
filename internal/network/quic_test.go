package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringrelay/internal/crypto"
	"ringrelay/internal/node"
)

type testPeer struct {
	q       *QUIC
	in      chan Inbound
	events  chan Event
	done    chan error
	pending []Event
}

func newTestIdentity(t *testing.T) *node.Node {
	t.Helper()
	_, priv, err := crypto.GenKeypair()
	require.NoError(t, err)
	return node.FromKey(priv)
}

func startPeer(t *testing.T, ctx context.Context, n *node.Node, whitelist []string, bootstrap ...string) *testPeer {
	t.Helper()
	p := &testPeer{
		in:     make(chan Inbound, 16),
		events: make(chan Event, 64),
		done:   make(chan error, 1),
	}
	q, err := NewQUIC(Options{
		Node:        n,
		ListenAddr:  "127.0.0.1:0",
		Bootstrap:   bootstrap,
		Whitelist:   whitelist,
		Inbound:     p.in,
		Events:      p.events,
		SendTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	p.q = q
	go func() { p.done <- q.Run(ctx) }()
	select {
	case <-q.Ready():
	case err := <-p.done:
		t.Fatalf("quic run failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("quic listener not ready")
	}
	return p
}

func (p *testPeer) waitEvent(t *testing.T, kind EventKind, peer string) Event {
	t.Helper()
	match := func(ev Event) bool {
		return ev.Kind == kind && (peer == "" || ev.Peer == peer)
	}
	for i, ev := range p.pending {
		if match(ev) {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return ev
		}
	}
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-p.events:
			if match(ev) {
				return ev
			}
			p.pending = append(p.pending, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for %s from %s", kind, shortID(peer))
		}
	}
}

func (p *testPeer) waitInbound(t *testing.T) Inbound {
	t.Helper()
	select {
	case in := <-p.in:
		return in
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for inbound message")
	}
	return Inbound{}
}

func TestQUICWhitelistedPeersExchangeMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, b := newTestIdentity(t), newTestIdentity(t)

	pb := startPeer(t, ctx, b, []string{a.ID})
	pa := startPeer(t, ctx, a, []string{b.ID}, pb.q.Addr())

	pb.waitEvent(t, NewListenAddress, "")
	pb.waitEvent(t, ConnectionEstablished, a.ID)
	pa.waitEvent(t, ConnectionEstablished, b.ID)

	require.NoError(t, pa.q.Send(ctx, b.ID, []byte("direct")))
	in := pb.waitInbound(t)
	assert.Equal(t, a.ID, in.From)
	assert.Equal(t, "direct", string(in.Data))
	assert.False(t, in.Broadcast)

	require.NoError(t, pb.q.Publish(ctx, []byte("to everyone")))
	in = pa.waitInbound(t)
	assert.Equal(t, b.ID, in.From)
	assert.True(t, in.Broadcast)

	assert.Equal(t, []string{b.ID}, pa.q.Peers())
	assert.ErrorIs(t, pa.q.Send(ctx, a.ID, []byte("x")), ErrSelf)

	pb.q.RemoveWhitelisted(ctx, a.ID)
	pb.waitEvent(t, ConnectionClosed, a.ID)

	cancel()
	assert.NoError(t, <-pa.done)
	assert.NoError(t, <-pb.done)
}

func TestQUICPublishRightBeforeShutdownIsDelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	aCtx, stopA := context.WithCancel(ctx)
	defer stopA()
	a, b := newTestIdentity(t), newTestIdentity(t)

	pb := startPeer(t, ctx, b, []string{a.ID})
	pa := startPeer(t, aCtx, a, []string{b.ID}, pb.q.Addr())
	pa.waitEvent(t, ConnectionEstablished, b.ID)
	pb.waitEvent(t, ConnectionEstablished, a.ID)

	require.NoError(t, pa.q.Publish(ctx, []byte("goodbye")))
	stopA()

	in := pb.waitInbound(t)
	assert.Equal(t, a.ID, in.From)
	assert.Equal(t, "goodbye", string(in.Data))
	assert.NoError(t, <-pa.done)
}

func TestLingerFor(t *testing.T) {
	q := &QUIC{opts: Options{Linger: 500 * time.Millisecond}}
	now := time.Now()
	assert.Zero(t, q.lingerFor(now), "nothing written")

	q.lastWrite.Store(now.Add(-200 * time.Millisecond).UnixNano())
	assert.Equal(t, 300*time.Millisecond, q.lingerFor(now))

	q.lastWrite.Store(now.Add(-time.Second).UnixNano())
	assert.Zero(t, q.lingerFor(now))
}

func TestQUICRejectsPeerOutsideWhitelist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, c := newTestIdentity(t), newTestIdentity(t)

	pb := startPeer(t, ctx, b, nil)
	pc := startPeer(t, ctx, c, []string{b.ID})

	// The dial may complete on c's side before b closes the connection.
	_, _ = pc.q.Dial(ctx, pb.q.Addr())
	ev := pb.waitEvent(t, ConnectionRejected, c.ID)
	assert.NotEmpty(t, ev.Addr)
	pb.waitEvent(t, PeerDiscovered, c.ID)
	assert.Empty(t, pb.q.Peers())

	// Whitelisting the known peer dials it.
	pb.q.AddWhitelisted(ctx, c.ID)
	pb.waitEvent(t, ConnectionEstablished, c.ID)
	assert.Equal(t, []string{c.ID}, pb.q.Whitelisted(ctx))
}

func TestDialableAddr(t *testing.T) {
	remote := &net.UDPAddr{IP: net.ParseIP("192.0.2.7"), Port: 5555}
	assert.Equal(t, "10.0.0.1:4000", dialableAddr("10.0.0.1:4000", remote))
	assert.Equal(t, "192.0.2.7:4000", dialableAddr("0.0.0.0:4000", remote))
	assert.Equal(t, "192.0.2.7:4000", dialableAddr(":4000", remote))
	assert.Equal(t, "", dialableAddr("", remote))
}
