package network

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCandidateCap = 512
	DefaultCandidateTTL = 5 * time.Minute
)

// candidatePool remembers the dialable address of peers that sent a valid
// hello. Entries expire after ttl unless refreshed; the least recently seen
// entry is evicted when the pool is full. Every dropped peer is reported once
// by expire.
type candidatePool struct {
	ttl time.Duration
	lru *expirable.LRU[string, string]

	// mu serializes read-modify-write of an entry.
	mu sync.Mutex

	droppedMu sync.Mutex
	dropped   []string
}

func newCandidatePool(capacity int, ttl time.Duration) *candidatePool {
	if capacity <= 0 {
		capacity = DefaultCandidateCap
	}
	if ttl <= 0 {
		ttl = DefaultCandidateTTL
	}
	c := &candidatePool{ttl: ttl}
	// The callback runs under the LRU's lock.
	c.lru = expirable.NewLRU[string, string](capacity, func(peer, _ string) {
		c.droppedMu.Lock()
		c.dropped = append(c.dropped, peer)
		c.droppedMu.Unlock()
	}, ttl)
	return c
}

// add records or refreshes peer. It reports whether peer was new. An empty
// addr keeps a previously known address.
func (c *candidatePool) add(peer, addr string) bool {
	if peer == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, known := c.lru.Peek(peer)
	if addr == "" {
		addr = prev
	}
	c.lru.Add(peer, addr)
	return !known
}

func (c *candidatePool) touch(peer string) {
	c.add(peer, "")
}

func (c *candidatePool) addr(peer string) (string, bool) {
	addr, ok := c.lru.Peek(peer)
	return addr, ok && addr != ""
}

// list returns the live peers, least recently seen first.
func (c *candidatePool) list() []string {
	return c.lru.Keys()
}

// expire returns the peers dropped since the previous call, by expiry or by
// eviction. A peer that was added again in the meantime is not reported.
func (c *candidatePool) expire() []string {
	c.droppedMu.Lock()
	dropped := c.dropped
	c.dropped = nil
	c.droppedMu.Unlock()
	var out []string
	seen := make(map[string]struct{}, len(dropped))
	for _, peer := range dropped {
		if _, dup := seen[peer]; dup {
			continue
		}
		seen[peer] = struct{}{}
		if _, ok := c.lru.Peek(peer); !ok {
			out = append(out, peer)
		}
	}
	return out
}
