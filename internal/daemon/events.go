package daemon

import (
	"context"

	"go.uber.org/zap"

	"ringrelay/internal/network"
	"ringrelay/internal/proto"
)

func (d *Daemon) handleEvent(ctx context.Context, ev network.Event) {
	d.log.Debug("network event", zap.Stringer("kind", ev.Kind), zap.String("peer", shortID(ev.Peer)), zap.String("addr", ev.Addr))
	switch ev.Kind {
	case network.PeerDiscovered:
		d.discovered.add(ev.Peer)
	case network.ConnectionEstablished:
		d.establishing[ev.Peer] = struct{}{}
		d.after(ctx, d.opts.SettleDelay, func(ctx context.Context) {
			d.established(ctx, ev.Peer)
		})
	case network.ConnectionClosed, network.PeerExpired:
		delete(d.establishing, ev.Peer)
		d.connected.remove(ev.Peer)
		d.rejected.remove(ev.Peer)
		d.discovered.remove(ev.Peer)
	case network.ConnectionRejected:
		d.rejected.add(ev.Peer)
	case network.NewListenAddress:
		if d.listenAddrs.add(ev.Addr) {
			d.log.Info("listening", zap.String("addr", ev.Addr))
		}
	}
}

// established joins the local node to the network on its first connection
// and introduces it to peer.
func (d *Daemon) established(ctx context.Context, peer string) {
	if _, ok := d.establishing[peer]; !ok {
		return
	}
	delete(d.establishing, peer)
	if d.connected.len() == 0 {
		d.send(ctx, proto.New(proto.PeerConnected, d.localID), "")
		d.send(ctx, proto.New(proto.NetworkSolicitation, ""), peer)
	}
	if d.alias != "" {
		d.send(ctx, proto.New(proto.PublishAlias, d.alias), peer)
	}
	if d.opts.Version != "" {
		d.send(ctx, proto.New(proto.NetworkBinaryVersion, d.opts.Version), peer)
	}
	d.rejected.remove(peer)
	d.connected.add(peer)
	d.log.Info("peer connected", zap.String("peer", shortID(peer)))
}
