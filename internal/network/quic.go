package network

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/binary"
	"encoding/hex"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	quic "github.com/quic-go/quic-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ringrelay/internal/debuglog"
	"ringrelay/internal/metrics"
	"ringrelay/internal/node"
	"ringrelay/internal/proto"
)

const (
	handshakeTimeout = 5 * time.Second
	DefaultMaxHops   = 8
	seenTTL          = 2 * time.Minute
	minSweepInterval = 50 * time.Millisecond

	closeNormal    quic.ApplicationErrorCode = 0
	closeRejected  quic.ApplicationErrorCode = 1
	closeDuplicate quic.ApplicationErrorCode = 2
	closeHandshake quic.ApplicationErrorCode = 3
	closeLimit     quic.ApplicationErrorCode = 4

	streamCancel quic.StreamErrorCode = 0
	streamLimit  quic.StreamErrorCode = 1
)

// DefaultLinger is how long shutdown keeps connections open after the last
// stream write so queued frames reach the peer.
const DefaultLinger = 500 * time.Millisecond

var (
	errRejected    = errors.New("peer not whitelisted")
	errSelfConnect = errors.New("connected to self")
)

// Options configures the QUIC adapter.
type Options struct {
	Node *node.Node
	// ListenAddr is the UDP address to listen on, e.g. "0.0.0.0:4242".
	ListenAddr string
	// AdvertiseAddr is sent to peers in the hello. Defaults to the bound
	// address; an unspecified host is replaced by the observed remote IP.
	AdvertiseAddr   string
	Bootstrap       []string
	Whitelist       []string
	Inbound         chan<- Inbound
	Events          chan<- Event
	SendTimeout     time.Duration
	CandidateTTL    time.Duration
	MaxConnsPerIP   int
	MaxStreamsPerIP int
	MaxHops         int
	Linger          time.Duration
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

type peerConn struct {
	id        string
	addr      string
	conn      *quic.Conn
	initiator string
}

// QUIC is a Layer over QUIC. Every peer connection starts with both sides
// sending a signed node hello; afterwards each relay frame travels on its own
// unidirectional stream.
type QUIC struct {
	opts      Options
	node      *node.Node
	log       *zap.Logger
	met       *metrics.Metrics
	serverTLS *tls.Config
	clientTLS *tls.Config
	quicConf  *quic.Config

	limiter    *ipLimiter
	backoff    *dialBackoff
	candidates *candidatePool
	seen       *cache.Cache
	warn       *debuglog.RateLimiter
	ready      chan struct{}
	lastWrite  atomic.Int64

	mu        sync.Mutex
	peers     map[string]*peerConn
	whitelist map[string]struct{}
	transport *quic.Transport
	udpConn   *net.UDPConn
	advertise string
	runCtx    context.Context
	closed    bool
	wg        sync.WaitGroup
}

var _ Layer = (*QUIC)(nil)

func NewQUIC(opts Options) (*QUIC, error) {
	if opts.Node == nil {
		return nil, errors.New("missing node identity")
	}
	if opts.Inbound == nil || opts.Events == nil {
		return nil, errors.New("missing inbound or event channel")
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultTimeout
	}
	if opts.Linger <= 0 {
		opts.Linger = DefaultLinger
	}
	cert, err := nodeCert(opts.Node.PrivKey)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	q := &QUIC{
		opts:      opts,
		node:      opts.Node,
		log:       log.With(zap.String("component", "network")),
		met:       opts.Metrics,
		serverTLS: serverTLSConfig(cert),
		clientTLS: clientTLSConfig(cert),
		quicConf: &quic.Config{
			HandshakeIdleTimeout:  handshakeTimeout,
			MaxIdleTimeout:        time.Minute,
			KeepAlivePeriod:       15 * time.Second,
			MaxIncomingUniStreams: 1000,
		},
		limiter:    newIPLimiter(opts.MaxConnsPerIP, opts.MaxStreamsPerIP),
		backoff:    newDialBackoff(dialBackoffBase, dialBackoffMax),
		candidates: newCandidatePool(DefaultCandidateCap, opts.CandidateTTL),
		seen:       cache.New(seenTTL, 2*seenTTL),
		warn:       debuglog.NewRateLimiter(10 * time.Second),
		ready:      make(chan struct{}),
		peers:      make(map[string]*peerConn),
		whitelist:  make(map[string]struct{}),
	}
	for _, p := range opts.Whitelist {
		if p != "" {
			q.whitelist[p] = struct{}{}
		}
	}
	return q, nil
}

func (q *QUIC) LocalID() string {
	return q.node.ID
}

// Ready is closed once the listener is bound.
func (q *QUIC) Ready() <-chan struct{} {
	return q.ready
}

// Addr returns the bound listen address. It is empty before Ready.
func (q *QUIC) Addr() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.udpConn == nil {
		return ""
	}
	return q.udpConn.LocalAddr().String()
}

// Run listens, dials the bootstrap addresses and serves connections until ctx
// is cancelled.
func (q *QUIC) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", q.opts.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "resolving listen address %q", q.opts.ListenAddr)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", q.opts.ListenAddr)
	}
	tr := &quic.Transport{Conn: udpConn}
	ln, err := tr.Listen(q.serverTLS, q.quicConf)
	if err != nil {
		_ = tr.Close()
		_ = udpConn.Close()
		return errors.Wrap(err, "starting quic listener")
	}

	g, gctx := errgroup.WithContext(ctx)
	q.mu.Lock()
	q.transport = tr
	q.udpConn = udpConn
	q.runCtx = gctx
	q.advertise = q.opts.AdvertiseAddr
	if q.advertise == "" {
		q.advertise = udpConn.LocalAddr().String()
	}
	q.mu.Unlock()
	q.log.Info("quic listen ready", zap.String("addr", udpConn.LocalAddr().String()),
		zap.String("id", q.node.ID))
	close(q.ready)

	g.Go(func() error {
		<-gctx.Done()
		q.shutdown(ln, tr)
		return nil
	})
	g.Go(func() error {
		for _, addr := range listenAddrs(udpConn.LocalAddr()) {
			q.emit(gctx, Event{Kind: NewListenAddress, Addr: addr})
		}
		return nil
	})
	g.Go(func() error {
		return q.acceptLoop(gctx, ln)
	})
	g.Go(func() error {
		q.sweepCandidates(gctx)
		return nil
	})
	for _, addr := range q.opts.Bootstrap {
		g.Go(func() error {
			q.keepDialing(gctx, addr)
			return nil
		})
	}
	err = g.Wait()
	q.wg.Wait()
	return err
}

func (q *QUIC) shutdown(ln *quic.Listener, tr *quic.Transport) {
	q.mu.Lock()
	q.closed = true
	conns := make([]*peerConn, 0, len(q.peers))
	for _, pc := range q.peers {
		conns = append(conns, pc)
	}
	q.mu.Unlock()
	if len(conns) > 0 {
		if d := q.lingerFor(time.Now()); d > 0 {
			q.log.Debug("lingering before close", zap.Duration("for", d), zap.Int("peers", len(conns)))
			time.Sleep(d)
		}
	}
	for _, pc := range conns {
		_ = pc.conn.CloseWithError(closeNormal, "shutdown")
	}
	_ = ln.Close()
	_ = tr.Close()
	_ = q.udpConn.Close()
}

// lingerFor returns how much of the linger period is left at now. Closing a
// connection discards stream data the peer has not acknowledged yet.
func (q *QUIC) lingerFor(now time.Time) time.Duration {
	last := q.lastWrite.Load()
	if last == 0 {
		return 0
	}
	return max(q.opts.Linger-now.Sub(time.Unix(0, last)), 0)
}

// spawn runs fn on a tracked goroutine unless the adapter is shutting down.
func (q *QUIC) spawn(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.runCtx == nil {
		return false
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		fn()
	}()
	return true
}

func (q *QUIC) acceptLoop(ctx context.Context, ln *quic.Listener) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accepting connection")
		}
		ip := remoteIP(conn.RemoteAddr())
		release := q.limiter.acquireConn(ip)
		if release == nil {
			q.met.IncDropByReason("conn_limit")
			q.warn.Warn(q.log, "conn_limit:"+ip, "per-ip connection limit reached", zap.String("ip", ip))
			_ = conn.CloseWithError(closeLimit, "connection limit")
			continue
		}
		ok := q.spawn(func() {
			defer release()
			pc, keep, err := q.setup(ctx, conn, false)
			if err != nil {
				q.log.Debug("inbound handshake failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
				return
			}
			if keep {
				q.readLoop(ctx, pc)
			}
		})
		if !ok {
			release()
			_ = conn.CloseWithError(closeNormal, "shutdown")
		}
	}
}

// Dial connects to addr and returns the identifier of the peer found there.
func (q *QUIC) Dial(ctx context.Context, addr string) (string, error) {
	pc, err := q.connect(ctx, addr)
	if err != nil {
		return "", err
	}
	return pc.id, nil
}

func (q *QUIC) connect(ctx context.Context, addr string) (*peerConn, error) {
	q.mu.Lock()
	tr, runCtx := q.transport, q.runCtx
	q.mu.Unlock()
	if tr == nil {
		return nil, ErrClosed
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %q", addr)
	}
	dctx, cancel := withDefaultTimeout(ctx, handshakeTimeout)
	defer cancel()
	conn, err := tr.Dial(dctx, udpAddr, q.clientTLS, q.quicConf)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	pc, keep, err := q.setup(runCtx, conn, true)
	if err != nil {
		return nil, err
	}
	if keep && !q.spawn(func() { q.readLoop(runCtx, pc) }) {
		_ = conn.CloseWithError(closeNormal, "shutdown")
		return nil, ErrClosed
	}
	return pc, nil
}

// setup exchanges hellos and applies the whitelist gate. keep is false when
// conn duplicates an existing connection to the same peer; the returned
// peerConn is then the connection that stays active.
func (q *QUIC) setup(ctx context.Context, conn *quic.Conn, dialed bool) (*peerConn, bool, error) {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	info, err := q.handshake(hctx, conn)
	if err != nil {
		_ = conn.CloseWithError(closeHandshake, "handshake failed")
		return nil, false, err
	}
	addr := dialableAddr(info.ListenAddr, conn.RemoteAddr())
	if q.candidates.add(info.NodeID, addr) {
		q.emit(ctx, Event{Kind: PeerDiscovered, Peer: info.NodeID, Addr: addr})
	}
	if !q.isWhitelisted(info.NodeID) {
		q.log.Info("rejecting peer outside whitelist", zap.String("peer", shortID(info.NodeID)))
		q.met.IncDropByReason("not_whitelisted")
		_ = conn.CloseWithError(closeRejected, "not whitelisted")
		q.emit(ctx, Event{Kind: ConnectionRejected, Peer: info.NodeID, Addr: addr})
		return nil, false, errRejected
	}
	pc := &peerConn{id: info.NodeID, addr: addr, conn: conn, initiator: info.NodeID}
	if dialed {
		pc.initiator = q.node.ID
	}
	active, fresh, replaced := q.register(pc)
	if replaced != nil {
		_ = replaced.conn.CloseWithError(closeDuplicate, "duplicate")
	}
	if active != pc {
		_ = conn.CloseWithError(closeDuplicate, "duplicate")
		return active, false, nil
	}
	if fresh {
		q.log.Info("peer connected", zap.String("peer", shortID(pc.id)), zap.String("addr", addr))
		q.emit(ctx, Event{Kind: ConnectionEstablished, Peer: pc.id, Addr: addr})
	}
	return pc, true, nil
}

func (q *QUIC) handshake(ctx context.Context, conn *quic.Conn) (node.PeerInfo, error) {
	q.mu.Lock()
	advertise := q.advertise
	q.mu.Unlock()
	hello, err := q.node.Hello(randomNonce(), advertise)
	if err != nil {
		return node.PeerInfo{}, err
	}
	data, err := proto.EncodeNodeHelloMsg(hello)
	if err != nil {
		return node.PeerInfo{}, errors.WithStack(err)
	}
	if err := q.writeStream(ctx, conn, data); err != nil {
		return node.PeerInfo{}, errors.Wrap(err, "sending hello")
	}
	q.met.IncFrame("out", proto.MsgTypeNodeHello)

	s, err := conn.AcceptUniStream(ctx)
	if err != nil {
		return node.PeerInfo{}, errors.Wrap(err, "waiting for hello")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetReadDeadline(deadline)
	}
	payload, err := proto.ReadFrameWithTypeCap(s, proto.SoftMaxFrameSize, proto.TypeCap)
	if err != nil {
		return node.PeerInfo{}, errors.Wrap(err, "reading hello")
	}
	q.met.IncFrame("in", proto.MsgTypeNodeHello)
	msg, err := proto.DecodeNodeHelloMsg(payload)
	if err != nil {
		return node.PeerInfo{}, err
	}
	info, err := node.VerifyHello(msg)
	if err != nil {
		return node.PeerInfo{}, err
	}
	if err := checkPeerCert(conn.ConnectionState().TLS, info.PubKey); err != nil {
		return node.PeerInfo{}, err
	}
	if info.NodeID == q.node.ID {
		return node.PeerInfo{}, errSelfConnect
	}
	return info, nil
}

// register installs pc as the connection of its peer. When two connections
// race, both ends keep the one initiated by the lower identifier.
func (q *QUIC) register(pc *peerConn) (active *peerConn, fresh bool, replaced *peerConn) {
	q.mu.Lock()
	defer q.mu.Unlock()
	old := q.peers[pc.id]
	if old != nil && old.conn.Context().Err() == nil {
		low := min(q.node.ID, pc.id)
		if old.initiator == low || pc.initiator != low {
			return old, false, nil
		}
		replaced = old
	}
	q.peers[pc.id] = pc
	q.met.SetCurrentConns(len(q.peers))
	return pc, old == nil, replaced
}

func (q *QUIC) unregister(ctx context.Context, pc *peerConn) {
	q.mu.Lock()
	current := q.peers[pc.id] == pc
	if current {
		delete(q.peers, pc.id)
	}
	q.met.SetCurrentConns(len(q.peers))
	q.mu.Unlock()
	_ = pc.conn.CloseWithError(closeNormal, "")
	if current {
		q.log.Info("peer disconnected", zap.String("peer", shortID(pc.id)))
		q.emit(ctx, Event{Kind: ConnectionClosed, Peer: pc.id, Addr: pc.addr})
	}
}

func (q *QUIC) readLoop(ctx context.Context, pc *peerConn) {
	defer q.unregister(ctx, pc)
	ip := remoteIP(pc.conn.RemoteAddr())
	for {
		s, err := pc.conn.AcceptUniStream(ctx)
		if err != nil {
			return
		}
		release := q.limiter.acquireStream(ip)
		if release == nil {
			q.met.IncDropByReason("stream_limit")
			s.CancelRead(streamLimit)
			continue
		}
		q.met.AddCurrentStreams(1)
		ok := q.spawn(func() {
			defer release()
			defer q.met.AddCurrentStreams(-1)
			q.handleStream(ctx, pc, s)
		})
		if !ok {
			release()
			q.met.AddCurrentStreams(-1)
			return
		}
	}
}

func (q *QUIC) handleStream(ctx context.Context, pc *peerConn, s *quic.ReceiveStream) {
	_ = s.SetReadDeadline(time.Now().Add(q.opts.SendTimeout))
	payload, err := proto.ReadFrameWithTypeCap(s, proto.SoftMaxFrameSize, proto.TypeCap)
	if err != nil {
		q.met.IncDropByReason("frame")
		q.log.Debug("reading frame failed", zap.String("peer", shortID(pc.id)), zap.Error(err))
		s.CancelRead(streamCancel)
		return
	}
	m, err := proto.DecodeRelayMsg(payload)
	if err != nil {
		q.met.IncDropByReason("frame")
		q.log.Debug("dropping frame", zap.String("peer", shortID(pc.id)), zap.Error(err))
		return
	}
	q.met.IncFrame("in", proto.MsgTypeRelay)
	q.candidates.touch(pc.id)
	q.handleRelay(ctx, pc.id, m)
}

func (q *QUIC) handleRelay(ctx context.Context, via string, m proto.RelayMsg) {
	if m.MsgID == "" {
		q.met.IncDropByReason("frame")
		return
	}
	if err := q.node.VerifyRelay(m); err != nil {
		q.met.IncDropByReason("signature")
		q.warn.Warn(q.log, "sig:"+via, "dropping relay frame with bad signature",
			zap.String("via", shortID(via)), zap.Error(err))
		return
	}
	if err := q.seen.Add(m.MsgID, struct{}{}, cache.DefaultExpiration); err != nil {
		q.met.IncDropByReason("duplicate")
		return
	}
	if m.From == q.node.ID {
		return
	}
	switch {
	case m.Broadcast:
		q.forward(ctx, m, via)
		q.deliver(ctx, Inbound{From: m.From, Data: m.Data, Broadcast: true})
	case m.To == q.node.ID:
		q.deliver(ctx, Inbound{From: m.From, Data: m.Data})
	default:
		q.forward(ctx, m, via)
	}
}

func (q *QUIC) forward(ctx context.Context, m proto.RelayMsg, via string) {
	if m.Hops >= q.opts.MaxHops {
		q.met.IncDropByReason("hops")
		return
	}
	m.Hops++
	var err error
	if pc := q.peer(m.To); m.To != "" && pc != nil {
		err = q.write(ctx, pc, m)
	} else {
		err = q.flood(ctx, m, via)
	}
	if err != nil {
		q.log.Debug("forwarding relay frame failed", zap.String("msg_id", m.MsgID), zap.Error(err))
	}
	q.met.IncRelayed()
}

// flood writes m to every connected peer except via and the origin.
func (q *QUIC) flood(ctx context.Context, m proto.RelayMsg, via string) error {
	var g errgroup.Group
	for _, pc := range q.connected() {
		if pc.id == via || pc.id == m.From {
			continue
		}
		g.Go(func() error {
			return q.write(ctx, pc, m)
		})
	}
	return g.Wait()
}

func (q *QUIC) deliver(ctx context.Context, in Inbound) {
	select {
	case q.opts.Inbound <- in:
	case <-ctx.Done():
	}
}

func (q *QUIC) emit(ctx context.Context, ev Event) {
	select {
	case q.opts.Events <- ev:
	case <-ctx.Done():
	}
}

func (q *QUIC) write(ctx context.Context, pc *peerConn, m proto.RelayMsg) error {
	data, err := proto.EncodeRelayMsg(m)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := q.writeStream(ctx, pc.conn, data); err != nil {
		q.met.IncDropByReason("send")
		return errors.Wrapf(err, "writing to %s", shortID(pc.id))
	}
	q.met.IncFrame("out", proto.MsgTypeRelay)
	return nil
}

func (q *QUIC) writeStream(ctx context.Context, conn *quic.Conn, payload []byte) error {
	ctx, cancel := withDefaultTimeout(ctx, q.opts.SendTimeout)
	defer cancel()
	s, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetWriteDeadline(deadline)
	}
	if err := proto.WriteFrame(s, payload); err != nil {
		s.CancelWrite(streamCancel)
		return err
	}
	q.lastWrite.Store(time.Now().UnixNano())
	return s.Close()
}

// Publish floods data to all peers. Publishing without peers is not an error.
func (q *QUIC) Publish(ctx context.Context, data []byte) error {
	m := proto.RelayMsg{MsgID: newMsgID(), Broadcast: true, Data: data}
	if err := q.node.SignRelay(&m); err != nil {
		return err
	}
	q.seen.SetDefault(m.MsgID, struct{}{})
	return q.flood(ctx, m, "")
}

// Send writes data to peer directly when connected and floods it otherwise.
func (q *QUIC) Send(ctx context.Context, peer string, data []byte) error {
	if peer == q.node.ID {
		return ErrSelf
	}
	m := proto.RelayMsg{MsgID: newMsgID(), To: peer, Data: data}
	if err := q.node.SignRelay(&m); err != nil {
		return err
	}
	q.seen.SetDefault(m.MsgID, struct{}{})
	if pc := q.peer(peer); pc != nil {
		return q.write(ctx, pc, m)
	}
	if len(q.connected()) == 0 {
		return errors.Wrap(ErrNotConnected, shortID(peer))
	}
	return q.flood(ctx, m, "")
}

func (q *QUIC) Whitelisted(context.Context) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.whitelist))
	for p := range q.whitelist {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AddWhitelisted allows peer to connect and dials it if its address is known.
func (q *QUIC) AddWhitelisted(_ context.Context, peer string) {
	if peer == "" || peer == q.node.ID {
		return
	}
	q.mu.Lock()
	q.whitelist[peer] = struct{}{}
	_, connected := q.peers[peer]
	runCtx := q.runCtx
	q.mu.Unlock()
	if connected {
		return
	}
	addr, ok := q.candidates.addr(peer)
	if !ok {
		return
	}
	q.spawn(func() {
		if _, err := q.connect(runCtx, addr); err != nil {
			q.log.Debug("dialing whitelisted peer failed", zap.String("peer", shortID(peer)), zap.Error(err))
		}
	})
}

// RemoveWhitelisted bans peer and closes its connection.
func (q *QUIC) RemoveWhitelisted(_ context.Context, peer string) {
	q.mu.Lock()
	delete(q.whitelist, peer)
	pc := q.peers[peer]
	q.mu.Unlock()
	if pc != nil {
		_ = pc.conn.CloseWithError(closeRejected, "removed from whitelist")
	}
}

// Peers returns the identifiers of directly connected peers.
func (q *QUIC) Peers() []string {
	conns := q.connected()
	out := make([]string, 0, len(conns))
	for _, pc := range conns {
		out = append(out, pc.id)
	}
	sort.Strings(out)
	return out
}

func (q *QUIC) isWhitelisted(peer string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.whitelist[peer]
	return ok
}

func (q *QUIC) peer(id string) *peerConn {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peers[id]
}

func (q *QUIC) connected() []*peerConn {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*peerConn, 0, len(q.peers))
	for _, pc := range q.peers {
		out = append(out, pc)
	}
	return out
}

func (q *QUIC) keepDialing(ctx context.Context, addr string) {
	for {
		pc, err := q.connect(ctx, addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n := q.backoff.recordFailure(addr)
			q.warn.Warn(q.log, "dial:"+addr, "bootstrap dial failed",
				zap.String("addr", addr), zap.Int("attempt", n), zap.Error(err))
		} else {
			q.backoff.resetFailures(addr)
			q.waitPeer(ctx, pc.id)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.backoff.delay(addr)):
		}
	}
}

// waitPeer blocks while peer stays connected, across connection swaps.
func (q *QUIC) waitPeer(ctx context.Context, peer string) {
	for {
		pc := q.peer(peer)
		if pc == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-pc.conn.Context().Done():
		}
	}
}

// sweepCandidates raises PeerExpired for discovered peers that were neither
// connected nor heard from within the candidate TTL.
func (q *QUIC) sweepCandidates(ctx context.Context) {
	interval := max(q.candidates.ttl/4, minSweepInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, pc := range q.connected() {
			q.candidates.touch(pc.id)
		}
		for _, peer := range q.candidates.expire() {
			if q.peer(peer) != nil {
				continue
			}
			q.emit(ctx, Event{Kind: PeerExpired, Peer: peer})
		}
	}
}

func listenAddrs(addr net.Addr) []string {
	udp, ok := addr.(*net.UDPAddr)
	if !ok || !udp.IP.IsUnspecified() {
		return []string{addr.String()}
	}
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return []string{addr.String()}
	}
	var out []string
	for _, ia := range ifaces {
		ipnet, ok := ia.(*net.IPNet)
		if !ok {
			continue
		}
		if udp.IP.To4() != nil && ipnet.IP.To4() == nil {
			continue
		}
		out = append(out, net.JoinHostPort(ipnet.IP.String(), strconv.Itoa(udp.Port)))
	}
	if len(out) == 0 {
		return []string{addr.String()}
	}
	return out
}

// dialableAddr resolves the address a peer advertised into one we can dial.
func dialableAddr(listenAddr string, remote net.Addr) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		return ""
	}
	ip := net.ParseIP(host)
	if host != "" && (ip == nil || !ip.IsUnspecified()) {
		return listenAddr
	}
	if udp, ok := remote.(*net.UDPAddr); ok {
		return net.JoinHostPort(udp.IP.String(), port)
	}
	return ""
}

func remoteIP(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func randomNonce() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

func newMsgID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
