package memnet

import (
	"sync"

	"ringrelay/internal/network"
)

type item struct {
	in *network.Inbound
	ev *network.Event
}

// queue decouples senders from slow receivers: push never blocks and a single
// goroutine forwards items in order to the receiver channels.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []item
	closed  bool
	stopped chan struct{}
	done    chan struct{}
}

func newQueue(inbound chan<- network.Inbound, events chan<- network.Event) *queue {
	q := &queue{
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run(inbound, events)
	return q
}

func (q *queue) push(it item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, it)
	q.cond.Signal()
}

func (q *queue) run(inbound chan<- network.Inbound, events chan<- network.Event) {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		it := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if it.in != nil {
			select {
			case inbound <- *it.in:
			case <-q.stopped:
				return
			}
		}
		if it.ev != nil {
			select {
			case events <- *it.ev:
			case <-q.stopped:
				return
			}
		}
	}
}

// close drops pending items and waits for the forwarding goroutine.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.items = nil
	close(q.stopped)
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}
