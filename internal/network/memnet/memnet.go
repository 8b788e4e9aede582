// Package memnet is an in-process network.Layer. Nodes joined to the same
// Hub reach each other through explicitly connected links, with the same
// whitelist gate and lifecycle events as the QUIC adapter.
package memnet

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"ringrelay/internal/network"
)

type Hub struct {
	mu    sync.Mutex
	nodes map[string]*Node
	links map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		nodes: make(map[string]*Node),
		links: make(map[string]map[string]struct{}),
	}
}

// Join registers id on the hub. Inbound payloads and events are queued
// without bound and delivered in order on the given channels.
func (h *Hub) Join(id string, inbound chan<- network.Inbound, events chan<- network.Event) *Node {
	n := &Node{
		hub:       h,
		id:        id,
		whitelist: make(map[string]struct{}),
		known:     make(map[string]struct{}),
		q:         newQueue(inbound, events),
	}
	h.mu.Lock()
	h.nodes[id] = n
	h.links[id] = make(map[string]struct{})
	h.mu.Unlock()
	n.q.push(item{ev: &network.Event{Kind: network.NewListenAddress, Addr: Addr(id)}})
	return n
}

// Addr is the listen address reported for id.
func Addr(id string) string {
	return "mem://" + id
}

// Connect simulates a dial from a to b. Both ends discover each other; the
// link is established only when each end whitelists the other.
func (h *Hub) Connect(a, b string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	na, nb := h.nodes[a], h.nodes[b]
	if na == nil || nb == nil {
		return errors.Wrapf(network.ErrNotConnected, "connect %s -> %s", a, b)
	}
	h.connectLocked(na, nb)
	return nil
}

func (h *Hub) connectLocked(na, nb *Node) {
	if _, ok := h.links[na.id][nb.id]; ok {
		return
	}
	na.discoverLocked(nb.id)
	nb.discoverLocked(na.id)
	okA, okB := na.allowsLocked(nb.id), nb.allowsLocked(na.id)
	if !okA || !okB {
		if !okA {
			na.q.push(item{ev: &network.Event{Kind: network.ConnectionRejected, Peer: nb.id, Addr: Addr(nb.id)}})
		}
		if !okB {
			nb.q.push(item{ev: &network.Event{Kind: network.ConnectionRejected, Peer: na.id, Addr: Addr(na.id)}})
		}
		return
	}
	h.links[na.id][nb.id] = struct{}{}
	h.links[nb.id][na.id] = struct{}{}
	na.q.push(item{ev: &network.Event{Kind: network.ConnectionEstablished, Peer: nb.id, Addr: Addr(nb.id)}})
	nb.q.push(item{ev: &network.Event{Kind: network.ConnectionEstablished, Peer: na.id, Addr: Addr(na.id)}})
}

// Disconnect closes the link between a and b.
func (h *Hub) Disconnect(a, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(a, b)
}

func (h *Hub) disconnectLocked(a, b string) {
	if _, ok := h.links[a][b]; !ok {
		return
	}
	delete(h.links[a], b)
	delete(h.links[b], a)
	if n := h.nodes[a]; n != nil {
		n.q.push(item{ev: &network.Event{Kind: network.ConnectionClosed, Peer: b, Addr: Addr(b)}})
	}
	if n := h.nodes[b]; n != nil {
		n.q.push(item{ev: &network.Event{Kind: network.ConnectionClosed, Peer: a, Addr: Addr(a)}})
	}
}

// Expire reports peer as expired to id, as if its discovery entry timed out.
func (h *Hub) Expire(id, peer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := h.nodes[id]; n != nil {
		delete(n.known, peer)
		n.q.push(item{ev: &network.Event{Kind: network.PeerExpired, Peer: peer}})
	}
}

// Leave removes id from the hub, closing its links and its delivery queue.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	n := h.nodes[id]
	for peer := range h.links[id] {
		h.disconnectLocked(id, peer)
	}
	delete(h.nodes, id)
	delete(h.links, id)
	h.mu.Unlock()
	if n != nil {
		n.q.close()
	}
}

// Close removes every node.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.nodes))
	for id := range h.nodes {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Leave(id)
	}
}

// reachableLocked returns the nodes reachable from id over links, excluding id.
func (h *Hub) reachableLocked(id string) []*Node {
	seen := map[string]bool{id: true}
	frontier := []string{id}
	var out []*Node
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		peers := make([]string, 0, len(h.links[cur]))
		for p := range h.links[cur] {
			peers = append(peers, p)
		}
		sort.Strings(peers)
		for _, p := range peers {
			if seen[p] {
				continue
			}
			seen[p] = true
			frontier = append(frontier, p)
			if n := h.nodes[p]; n != nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// Node is one hub member. It implements network.Layer.
type Node struct {
	hub       *Hub
	id        string
	whitelist map[string]struct{}
	known     map[string]struct{}
	q         *queue
}

var _ network.Layer = (*Node)(nil)

func (n *Node) LocalID() string {
	return n.id
}

func (n *Node) Publish(_ context.Context, data []byte) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	for _, peer := range n.hub.reachableLocked(n.id) {
		peer.q.push(item{in: &network.Inbound{From: n.id, Data: clone(data), Broadcast: true}})
	}
	return nil
}

func (n *Node) Send(_ context.Context, peer string, data []byte) error {
	if peer == n.id {
		return network.ErrSelf
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	for _, p := range n.hub.reachableLocked(n.id) {
		if p.id == peer {
			p.q.push(item{in: &network.Inbound{From: n.id, Data: clone(data)}})
			return nil
		}
	}
	return errors.Wrap(network.ErrNotConnected, peer)
}

func (n *Node) Whitelisted(context.Context) []string {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	out := make([]string, 0, len(n.whitelist))
	for p := range n.whitelist {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AddWhitelisted allows peer and connects to it when it was discovered before.
func (n *Node) AddWhitelisted(_ context.Context, peer string) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	n.whitelist[peer] = struct{}{}
	if _, ok := n.known[peer]; !ok {
		return
	}
	if other := n.hub.nodes[peer]; other != nil {
		n.hub.connectLocked(n, other)
	}
}

func (n *Node) RemoveWhitelisted(_ context.Context, peer string) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	delete(n.whitelist, peer)
	n.hub.disconnectLocked(n.id, peer)
}

// Peers returns the directly linked peers.
func (n *Node) Peers() []string {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	out := make([]string, 0, len(n.hub.links[n.id]))
	for p := range n.hub.links[n.id] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (n *Node) allowsLocked(peer string) bool {
	_, ok := n.whitelist[peer]
	return ok
}

func (n *Node) discoverLocked(peer string) {
	if _, ok := n.known[peer]; ok {
		return
	}
	n.known[peer] = struct{}{}
	n.q.push(item{ev: &network.Event{Kind: network.PeerDiscovered, Peer: peer, Addr: Addr(peer)}})
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
