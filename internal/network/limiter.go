package network

import "sync"

// ipLimiter caps concurrent connections and inbound streams per remote IP.
// A zero cap disables the corresponding limit.
type ipLimiter struct {
	mu         sync.Mutex
	maxConns   int
	maxStreams int
	conns      map[string]int
	streams    map[string]int
}

func newIPLimiter(maxConns, maxStreams int) *ipLimiter {
	return &ipLimiter{
		maxConns:   maxConns,
		maxStreams: maxStreams,
		conns:      make(map[string]int),
		streams:    make(map[string]int),
	}
}

// acquireConn reserves a connection slot for ip. The returned release func is
// nil when the cap is reached.
func (l *ipLimiter) acquireConn(ip string) func() {
	return l.acquire(l.conns, l.maxConns, ip)
}

func (l *ipLimiter) acquireStream(ip string) func() {
	return l.acquire(l.streams, l.maxStreams, ip)
}

func (l *ipLimiter) acquire(counts map[string]int, limit int, ip string) func() {
	if limit <= 0 {
		return func() {}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if counts[ip] >= limit {
		return nil
	}
	counts[ip]++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if counts[ip] <= 1 {
				delete(counts, ip)
				return
			}
			counts[ip]--
		})
	}
}
