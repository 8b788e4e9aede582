package daemon

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ringrelay/internal/network"
	"ringrelay/internal/proto"
	"ringrelay/internal/ring"
)

func (d *Daemon) handleInbound(ctx context.Context, in network.Inbound) {
	msg, err := proto.Unmarshal(in.Data)
	if err != nil {
		reason := "decode"
		if errors.Is(err, proto.ErrUnknownType) {
			reason = "unknown_type"
		}
		d.met.IncDropByReason(reason)
		d.log.Warn("dropping undecodable message", zap.String("from", shortID(in.From)), zap.Error(err))
		return
	}
	d.met.IncRecvByType(msg.Type.String())
	if !d.authorized(in.From) {
		d.met.IncDropByReason("unauthorized")
		d.unauthorized.Warn(d.log, in.From, "dropping message from unauthorized sender",
			zap.String("from", shortID(in.From)), zap.Stringer("type", msg.Type))
		return
	}
	d.handleMessage(ctx, in.From, msg)
}

// authorized reports whether messages from sender are accepted. An empty
// sender list accepts everyone.
func (d *Daemon) authorized(sender string) bool {
	return d.senders.len() == 0 || d.senders.has(sender)
}

func (d *Daemon) handleMessage(ctx context.Context, sender string, msg *proto.ControlMessage) {
	d.log.Debug("handling message", zap.Stringer("type", msg.Type), zap.String("from", shortID(sender)))
	switch msg.Type {
	case proto.DisplayMessage:
		d.opts.Display.Show(sender, msg.Payload)
	case proto.AddWhitelistPeer:
		if msg.Payload != d.localID {
			d.net.AddWhitelisted(ctx, msg.Payload)
		}
	case proto.AddWhitelistSender:
		d.senders.add(msg.Payload)
	case proto.PublishAlias:
		d.claimAlias(sender, msg.Payload)
	case proto.NetworkSolicitation:
		d.sendState(ctx, sender)
	case proto.State:
		d.mergeState(ctx, msg.State)
	case proto.RequestMessage:
		if payload, ok := d.ring.Get(sender); ok {
			d.send(ctx, proto.New(proto.DisplayMessage, payload), sender)
		}
	case proto.StoreMessage:
		d.storeMessage(sender, msg)
	case proto.Upgrade:
		d.upgradeFrom(ctx, msg.Payload)
	case proto.RequestUpgrade:
		d.serveUpgrade(ctx, sender)
	case proto.NetworkBinaryVersion:
		d.checkVersion(ctx, sender, msg.Payload)
	case proto.PeerConnected:
		d.addMember(ctx, msg.Payload)
	case proto.PeerDisconnected:
		d.removeMember(ctx, msg.Payload)
	}
}

func (d *Daemon) claimAlias(peer, alias string) bool {
	if !d.aliases.claim(peer, alias) {
		d.log.Info("alias rejected", zap.String("alias", alias), zap.String("peer", shortID(peer)),
			zap.String("owner", shortID(d.aliases.resolve(alias))))
		return false
	}
	return true
}

func (d *Daemon) snapshot(ctx context.Context) *proto.NetworkState {
	st := &proto.NetworkState{
		Whitelisted:       d.net.Whitelisted(ctx),
		Connected:         d.ring.Members(),
		AuthorizedSenders: d.senders.list(),
	}
	for _, pair := range d.aliases.sorted() {
		st.Aliases = append(st.Aliases, proto.Alias{Alias: pair[0], Peer: pair[1]})
	}
	return st
}

func (d *Daemon) sendState(ctx context.Context, peer string) {
	d.send(ctx, &proto.ControlMessage{Type: proto.State, State: d.snapshot(ctx)}, peer)
}

// mergeState folds a peer's view into the local one. Merging only adds, then
// the mailbox is pulled from the closest other member.
func (d *Daemon) mergeState(ctx context.Context, st *proto.NetworkState) {
	if st == nil {
		d.met.IncDropByReason("malformed")
		d.log.Warn("state message without state")
		return
	}
	for _, peer := range st.Connected {
		d.addMember(ctx, peer)
	}
	for _, peer := range st.Whitelisted {
		if peer != d.localID {
			d.net.AddWhitelisted(ctx, peer)
		}
	}
	for _, s := range st.AuthorizedSenders {
		d.senders.add(s)
	}
	for _, a := range st.Aliases {
		d.claimAlias(a.Peer, a.Alias)
	}
	if others := d.ring.ClosestOther(d.localID); len(others) > 0 {
		d.send(ctx, proto.New(proto.RequestMessage, ""), others[0])
	}
}

func (d *Daemon) storeMessage(sender string, msg *proto.ControlMessage) {
	switch st := msg.Stored; {
	case st == nil:
		d.ring.Store(sender, msg.Payload)
	case st.Broadcast && st.Owner == "":
		d.ring.AdoptFallback(st.Payload)
	case st.Owner == "":
		d.ring.Store(sender, st.Payload)
	default:
		d.ring.Store(st.Owner, st.Payload)
	}
	d.updateGauges()
}

func (d *Daemon) addMember(ctx context.Context, peer string) {
	if peer == "" {
		return
	}
	plan := d.ring.AddMember(peer)
	d.execute(ctx, plan)
	d.updateGauges()
}

func (d *Daemon) removeMember(ctx context.Context, peer string) {
	if peer == "" || peer == d.localID {
		return
	}
	plan := d.ring.RemoveMember(peer)
	d.execute(ctx, plan)
	d.updateGauges()
}

// execute hands the entries of plan to its recipient, one StoreMessage each.
func (d *Daemon) execute(ctx context.Context, plan *ring.Plan) {
	if plan == nil || len(plan.Entries) == 0 {
		return
	}
	d.log.Info("handing off mailbox entries", zap.String("to", shortID(plan.Recipient)), zap.Int("entries", len(plan.Entries)))
	for _, e := range plan.Entries {
		d.send(ctx, storeFor(e.Owner, e.Payload, e.Broadcast), plan.Recipient)
	}
	d.met.AddHandoffEntries(len(plan.Entries))
}

func storeFor(owner, payload string, broadcast bool) *proto.ControlMessage {
	return &proto.ControlMessage{
		Type:    proto.StoreMessage,
		Payload: payload,
		Stored:  &proto.StoredMessage{Owner: owner, Payload: payload, Broadcast: broadcast},
	}
}

func (d *Daemon) upgradeFrom(ctx context.Context, addr string) {
	d.log.Info("upgrading binary", zap.String("addr", addr))
	if err := d.opts.Upgrader.UpgradeBinary(ctx, addr); err != nil {
		d.upgradeInProgress = false
		d.log.Error("upgrade failed", zap.String("addr", addr), zap.Error(err))
	}
}

// serveUpgrade offers the local executable once and tells peer where to
// fetch it, one Upgrade message per listen address.
func (d *Daemon) serveUpgrade(ctx context.Context, peer string) {
	if d.upgradeInProgress {
		return
	}
	if err := d.opts.Upgrader.ServeOnce(d.opts.BinaryPath); err != nil {
		d.log.Error("serving binary failed", zap.Error(err))
		return
	}
	for _, addr := range d.listenAddrs.list() {
		d.send(ctx, proto.New(proto.Upgrade, upgradeAddr(addr, d.opts.UpgradePort)), peer)
	}
}

func upgradeAddr(listenAddr string, port int) string {
	if i := strings.Index(listenAddr, "://"); i >= 0 {
		listenAddr = listenAddr[i+3:]
	}
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host = listenAddr
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// checkVersion requests the binary from peer when it advertises a version
// newer than the local one. Versions compare as plain strings.
func (d *Daemon) checkVersion(ctx context.Context, peer, version string) {
	if d.opts.Version != "" && d.opts.Version >= version {
		return
	}
	if d.upgradeInProgress {
		return
	}
	d.log.Info("newer binary advertised", zap.String("peer", shortID(peer)), zap.String("version", version))
	d.upgradeInProgress = true
	d.send(ctx, proto.New(proto.RequestUpgrade, ""), peer)
}
