package daemon

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Client submits commands to a running Daemon. It is safe for concurrent use.
type Client struct {
	mu     sync.RWMutex
	closed bool
	cmds   chan<- Command
	done   <-chan struct{}
}

// Do queues cmd. It blocks while the command queue is full.
func (c *Client) Do(ctx context.Context, cmd Command) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrStopped
	}
	select {
	case c.cmds <- cmd:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// Close stops the daemon after the queued commands have run.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.cmds)
	}
}

func (c *Client) query(ctx context.Context, fn func(d *Daemon)) error {
	q := query{fn: fn, done: make(chan struct{})}
	if err := c.Do(ctx, q); err != nil {
		return err
	}
	select {
	case <-q.done:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

func (c *Client) LocalID(ctx context.Context) (string, error) {
	var id string
	err := c.query(ctx, func(d *Daemon) { id = d.localID })
	return id, err
}

// Alias returns the alias claimed by the local node, if any.
func (c *Client) Alias(ctx context.Context) (string, error) {
	var alias string
	err := c.query(ctx, func(d *Daemon) { alias = d.alias })
	return alias, err
}

// Aliases returns the alias table keyed by alias.
func (c *Client) Aliases(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.query(ctx, func(d *Daemon) { out = d.aliases.snapshot() })
	return out, err
}

func (c *Client) Discovered(ctx context.Context) ([]string, error) {
	return c.list(ctx, func(d *Daemon) []string { return d.discovered.list() })
}

func (c *Client) Connected(ctx context.Context) ([]string, error) {
	return c.list(ctx, func(d *Daemon) []string { return d.connected.list() })
}

func (c *Client) Rejected(ctx context.Context) ([]string, error) {
	return c.list(ctx, func(d *Daemon) []string { return d.rejected.list() })
}

// Members returns the ring membership in ring order.
func (c *Client) Members(ctx context.Context) ([]string, error) {
	return c.list(ctx, func(d *Daemon) []string { return d.ring.Members() })
}

func (c *Client) ListenAddrs(ctx context.Context) ([]string, error) {
	return c.list(ctx, func(d *Daemon) []string { return d.listenAddrs.list() })
}

func (c *Client) AuthorizedSenders(ctx context.Context) ([]string, error) {
	return c.list(ctx, func(d *Daemon) []string { return d.senders.list() })
}

func (c *Client) Whitelisted(ctx context.Context) ([]string, error) {
	return c.list(ctx, func(d *Daemon) []string { return d.net.Whitelisted(ctx) })
}

// Mailbox returns the entries held for other nodes, the broadcast fallback
// under an empty owner.
func (c *Client) Mailbox(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.query(ctx, func(d *Daemon) {
		out = make(map[string]string)
		for _, e := range d.ring.Entries() {
			out[e.Owner] = e.Payload
		}
		if fb, ok := d.ring.Fallback(); ok {
			out[""] = fb
		}
	})
	return out, err
}

func (c *Client) list(ctx context.Context, fn func(d *Daemon) []string) ([]string, error) {
	var out []string
	err := c.query(ctx, func(d *Daemon) { out = fn(d) })
	return out, err
}
