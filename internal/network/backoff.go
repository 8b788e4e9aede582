package network

import (
	"context"
	"sync"
	"time"
)

const (
	dialBackoffBase = 200 * time.Millisecond
	dialBackoffMax  = 30 * time.Second
	defaultTimeout  = 8 * time.Second
)

type addrFailure struct {
	count int
	last  time.Time
}

// dialBackoff tracks consecutive dial failures per address.
type dialBackoff struct {
	mu       sync.Mutex
	base     time.Duration
	max      time.Duration
	failures map[string]*addrFailure
}

func newDialBackoff(base, max time.Duration) *dialBackoff {
	if base <= 0 {
		base = dialBackoffBase
	}
	if max < base {
		max = dialBackoffMax
	}
	return &dialBackoff{
		base:     base,
		max:      max,
		failures: make(map[string]*addrFailure),
	}
}

func (b *dialBackoff) recordFailure(addr string) int {
	if b == nil || addr == "" {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ent := b.failures[addr]
	if ent == nil {
		ent = &addrFailure{}
		b.failures[addr] = ent
	}
	ent.count++
	ent.last = time.Now()
	return ent.count
}

func (b *dialBackoff) resetFailures(addr string) {
	if b == nil || addr == "" {
		return
	}
	b.mu.Lock()
	delete(b.failures, addr)
	b.mu.Unlock()
}

// delay returns how long to wait before the next dial of addr: base after a
// success, doubling with every consecutive failure up to max.
func (b *dialBackoff) delay(addr string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	ent := b.failures[addr]
	if ent == nil {
		return b.base
	}
	d := b.base
	for i := 1; i < ent.count && d < b.max; i++ {
		d *= 2
	}
	return min(d, b.max)
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if ctx == nil {
		return context.WithTimeout(context.Background(), timeout)
	}
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
