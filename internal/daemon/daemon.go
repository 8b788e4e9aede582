// Package daemon runs the relay protocol: ring membership, mailbox
// replication, alias negotiation, access control and the upgrade handshake.
//
// All state is owned by the goroutine executing Run. Inbound payloads, network
// events, user commands and deferred actions are handled one at a time.
package daemon

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ringrelay/internal/debuglog"
	"ringrelay/internal/metrics"
	"ringrelay/internal/network"
	"ringrelay/internal/proto"
	"ringrelay/internal/ring"
)

const (
	DefaultSettleDelay   = 200 * time.Millisecond
	DefaultSendTimeout   = 5 * time.Second
	DefaultCommandBuffer = 10
	DefaultUpgradePort   = 9803
)

var ErrStopped = errors.New("daemon stopped")

//go:generate mockgen -destination=mock_daemon/upgrader.go -package=mock_daemon ringrelay/internal/daemon Upgrader,Display

// Upgrader serves and installs the node executable.
type Upgrader interface {
	// Serve keeps serving the file at path until Stop.
	Serve(path string) error
	// ServeOnce serves the file at path to a single client.
	ServeOnce(path string) error
	Stop()
	// UpgradeBinary fetches the executable from addr, replaces the running
	// one and terminates the process. It only returns on failure.
	UpgradeBinary(ctx context.Context, addr string) error
}

// Display receives delivered text messages.
type Display interface {
	Show(from, text string)
}

type Options struct {
	Network  network.Layer
	Inbound  <-chan network.Inbound
	Events   <-chan network.Event
	Upgrader Upgrader
	Display  Display
	// Version is announced to new connections. Empty disables announcing
	// and makes every advertised version newer.
	Version string
	// BinaryPath is the executable served on RequestUpgrade.
	BinaryPath string
	// UpgradePort is appended to listen hosts in Upgrade replies.
	UpgradePort int
	// SettleDelay is waited before sends that depend on whitelisting or a
	// new connection. Zero runs them immediately.
	SettleDelay   time.Duration
	SendTimeout   time.Duration
	CommandBuffer int
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

func (o *Options) initDefaults() {
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.CommandBuffer <= 0 {
		o.CommandBuffer = DefaultCommandBuffer
	}
	if o.UpgradePort == 0 {
		o.UpgradePort = DefaultUpgradePort
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type Daemon struct {
	opts    Options
	log     *zap.Logger
	met     *metrics.Metrics
	net     network.Layer
	localID string

	ring    *ring.Store
	aliases *aliasTable
	alias   string
	senders peerSet

	discovered  peerSet
	connected   peerSet
	rejected    peerSet
	listenAddrs peerSet
	// establishing holds peers whose ConnectionEstablished awaits the
	// settle delay.
	establishing map[string]struct{}

	upgradeInProgress bool

	cmds      chan Command
	deferred  chan deferredAction
	timers    map[int]*time.Timer
	nextTimer int
	done      chan struct{}
	client    *Client

	unauthorized *debuglog.RateLimiter
}

type deferredAction struct {
	id int
	fn func(context.Context)
}

func New(opts Options) (*Daemon, error) {
	if opts.Network == nil {
		return nil, errors.New("missing network layer")
	}
	if opts.Upgrader == nil {
		return nil, errors.New("missing upgrader")
	}
	if opts.Display == nil {
		return nil, errors.New("missing display")
	}
	opts.initDefaults()
	localID := opts.Network.LocalID()
	d := &Daemon{
		opts:         opts,
		log:          opts.Logger.With(zap.String("component", "daemon"), zap.String("local", shortID(localID))),
		met:          opts.Metrics,
		net:          opts.Network,
		localID:      localID,
		ring:         ring.New(localID),
		aliases:      newAliasTable(),
		establishing: make(map[string]struct{}),
		cmds:         make(chan Command, opts.CommandBuffer),
		deferred:     make(chan deferredAction),
		timers:       make(map[int]*time.Timer),
		done:         make(chan struct{}),
		unauthorized: debuglog.NewRateLimiter(10 * time.Second),
	}
	d.client = &Client{cmds: d.cmds, done: d.done}
	d.updateGauges()
	return d, nil
}

// Client returns the handle used to issue commands and queries.
func (d *Daemon) Client() *Client {
	return d.client
}

// Run processes events until ctx is cancelled or the client is closed. On exit
// it announces the local node's departure to the network.
func (d *Daemon) Run(ctx context.Context) error {
	defer close(d.done)
	defer d.stopTimers()
	inbound, events := d.opts.Inbound, d.opts.Events
	for {
		select {
		case <-ctx.Done():
			d.shutdown(ctx)
			return nil
		case in, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			d.handleInbound(ctx, in)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.handleEvent(ctx, ev)
		case cmd, ok := <-d.cmds:
			if !ok {
				d.shutdown(ctx)
				return nil
			}
			cmd.run(ctx, d)
		case act := <-d.deferred:
			delete(d.timers, act.id)
			act.fn(ctx)
		}
	}
}

func (d *Daemon) shutdown(ctx context.Context) {
	d.log.Info("shutting down")
	d.opts.Upgrader.Stop()
	d.send(context.WithoutCancel(ctx), proto.New(proto.PeerDisconnected, d.localID), "")
}

// after runs fn on the dispatch goroutine once delay has passed. A zero delay
// runs fn immediately.
func (d *Daemon) after(ctx context.Context, delay time.Duration, fn func(context.Context)) {
	if delay <= 0 {
		fn(ctx)
		return
	}
	d.nextTimer++
	act := deferredAction{id: d.nextTimer, fn: fn}
	d.timers[act.id] = time.AfterFunc(delay, func() {
		select {
		case d.deferred <- act:
		case <-d.done:
		}
	})
}

func (d *Daemon) stopTimers() {
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// send encodes msg and publishes it, or sends it to target when set. Failures
// are logged and counted, never retried.
func (d *Daemon) send(ctx context.Context, msg *proto.ControlMessage, target string) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()
	data := proto.Marshal(msg)
	var err error
	if target == "" {
		err = d.net.Publish(ctx, data)
	} else {
		err = d.net.Send(ctx, target, data)
	}
	if err != nil {
		d.met.IncDropByReason("send")
		d.log.Warn("send failed", zap.Stringer("type", msg.Type), zap.String("target", shortID(target)), zap.Error(err))
		return
	}
	d.met.IncSentByType(msg.Type.String())
	d.log.Debug("sent message", zap.Stringer("type", msg.Type), zap.String("target", targetName(target)))
}

func (d *Daemon) updateGauges() {
	d.met.SetRingMembers(len(d.ring.Members()))
	d.met.SetMailboxEntries(d.ring.Len())
}

func targetName(target string) string {
	if target == "" {
		return "broadcast"
	}
	return shortID(target)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
