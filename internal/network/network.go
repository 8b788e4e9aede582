// Package network delivers control message bytes between ring relay nodes.
//
// Layer is the contract the daemon depends on. Two implementations exist: the
// QUIC adapter in this package and the in-process hub in network/memnet.
package network

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotConnected = errors.New("peer not reachable")
	ErrSelf         = errors.New("cannot send to local node")
	ErrClosed       = errors.New("network closed")
)

//go:generate mockgen -destination=mock_network/network.go -package=mock_network ringrelay/internal/network Layer

// Layer sends and receives opaque payloads and holds the connection
// whitelist. Received payloads and lifecycle events are delivered on the
// channels passed at construction.
type Layer interface {
	LocalID() string
	// Publish floods data to every reachable peer.
	Publish(ctx context.Context, data []byte) error
	// Send delivers data to one peer.
	Send(ctx context.Context, peer string, data []byte) error
	Whitelisted(ctx context.Context) []string
	AddWhitelisted(ctx context.Context, peer string)
	RemoveWhitelisted(ctx context.Context, peer string)
}

// Inbound is a payload received from a peer.
type Inbound struct {
	From      string
	Data      []byte
	Broadcast bool
}

type EventKind int

const (
	PeerDiscovered EventKind = iota + 1
	ConnectionEstablished
	ConnectionClosed
	ConnectionRejected
	PeerExpired
	NewListenAddress
)

var eventKindNames = map[EventKind]string{
	PeerDiscovered:        "PeerDiscovered",
	ConnectionEstablished: "ConnectionEstablished",
	ConnectionClosed:      "ConnectionClosed",
	ConnectionRejected:    "ConnectionRejected",
	PeerExpired:           "PeerExpired",
	NewListenAddress:      "NewListenAddress",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event reports a change in peer connectivity. Addr is set for
// NewListenAddress and, when known, for discovery and connection events.
type Event struct {
	Kind EventKind
	Peer string
	Addr string
}
