package daemon

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"ringrelay/internal/proto"
)

// Command is a user request executed on the dispatch goroutine.
type Command interface {
	run(ctx context.Context, d *Daemon)
}

// Send delivers Text to Target, an identifier or alias, through the ring. An
// empty Target broadcasts.
type Send struct {
	Target string
	Text   string
}

// Whitelist admits Peer locally, announces it to the network and shares the
// local state with it. Already whitelisted peers are ignored.
type Whitelist struct {
	Peer string
}

// Authorize adds Peer to the authorized senders, locally and network wide.
type Authorize struct {
	Peer string
}

// SetAlias claims Alias for the local node and announces it.
type SetAlias struct {
	Alias string
}

// UpgradeSelf installs the executable served at Addr.
type UpgradeSelf struct {
	Addr string
}

// Upgrade tells Target, or every node when empty, to install the executable
// served at Addr.
type Upgrade struct {
	Target string
	Addr   string
}

// Serve offers the executable at Path until ServeStop.
type Serve struct {
	Path string
}

type ServeStop struct{}

type query struct {
	fn   func(d *Daemon)
	done chan struct{}
}

func (c Send) run(ctx context.Context, d *Daemon) {
	if c.Target == "" {
		d.ring.StoreBroadcast(c.Text)
		d.updateGauges()
		d.send(ctx, proto.New(proto.DisplayMessage, c.Text), "")
		return
	}
	target := d.aliases.resolve(c.Target)
	if target == d.localID {
		d.opts.Display.Show(d.localID, c.Text)
		return
	}
	for _, peer := range d.ring.ClosestOwners(target) {
		switch peer {
		case target:
			d.send(ctx, proto.New(proto.DisplayMessage, c.Text), target)
		case d.localID:
			d.ring.Store(target, c.Text)
			d.updateGauges()
		default:
			d.send(ctx, storeFor(target, c.Text, false), peer)
		}
	}
}

func (c Whitelist) run(ctx context.Context, d *Daemon) {
	if c.Peer == "" || c.Peer == d.localID || slices.Contains(d.net.Whitelisted(ctx), c.Peer) {
		return
	}
	msg := proto.New(proto.AddWhitelistPeer, c.Peer)
	d.handleMessage(ctx, d.localID, msg)
	d.after(ctx, d.opts.SettleDelay, func(ctx context.Context) {
		d.send(ctx, msg, "")
		d.after(ctx, d.opts.SettleDelay, func(ctx context.Context) {
			d.sendState(ctx, c.Peer)
		})
	})
}

func (c Authorize) run(ctx context.Context, d *Daemon) {
	if c.Peer == "" {
		return
	}
	msg := proto.New(proto.AddWhitelistSender, c.Peer)
	d.handleMessage(ctx, d.localID, msg)
	d.send(ctx, msg, "")
}

func (c SetAlias) run(ctx context.Context, d *Daemon) {
	if !d.claimAlias(d.localID, c.Alias) {
		return
	}
	d.alias = c.Alias
	d.send(ctx, proto.New(proto.PublishAlias, c.Alias), "")
}

func (c UpgradeSelf) run(ctx context.Context, d *Daemon) {
	d.upgradeFrom(ctx, c.Addr)
}

func (c Upgrade) run(ctx context.Context, d *Daemon) {
	target := ""
	if c.Target != "" {
		target = d.aliases.resolve(c.Target)
	}
	d.send(ctx, proto.New(proto.Upgrade, c.Addr), target)
}

func (c Serve) run(_ context.Context, d *Daemon) {
	if err := d.opts.Upgrader.Serve(c.Path); err != nil {
		d.log.Error("serving binary failed", zap.String("path", c.Path), zap.Error(err))
	}
}

func (ServeStop) run(_ context.Context, d *Daemon) {
	d.opts.Upgrader.Stop()
}

func (q query) run(_ context.Context, d *Daemon) {
	q.fn(d)
	close(q.done)
}
