package loopback

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/nat/stun"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("engine/loopback")

// ErrAlreadyRunning 引擎只能运行一次
var ErrAlreadyRunning = errors.New("engine already running")

// NewFactory 返回创建 loopback 引擎的工厂
func NewFactory(opts ...Option) pkgif.EngineFactory {
	return func(cfg *config.EngineConfig) (pkgif.Engine, error) {
		return New(cfg, opts...)
	}
}

// Engine loopback 引擎
type Engine struct {
	cfg    *config.EngineConfig
	opts   options
	events eventHub
	portal *portal
	myID   uint32

	running atomic.Bool
	connWG  sync.WaitGroup

	mu            sync.RWMutex
	listeners     []string
	closers       []io.Closer
	ifaceV4       []string
	ifaceV6       []string
	publicIPv4    string
	stunInfo      types.StunInfo
	peers         map[uint32]*peerConn
	warnedSchemes map[string]bool
}

var _ pkgif.Engine = (*Engine)(nil)

// peerConn 一条活跃连接
type peerConn struct {
	id        uint32
	connID    string
	remote    string
	host      string
	conn      net.Conn
	latency   time.Duration
	rxBytes   atomic.Uint64
	rxPackets atomic.Uint64
}

// New 创建引擎
func New(cfg *config.EngineConfig, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:           cfg,
		opts:          o,
		events:        eventHub{buffer: o.eventBuffer},
		myID:          peerID(cfg.ID()),
		peers:         make(map[uint32]*peerConn),
		warnedSchemes: make(map[string]bool),
	}

	if vpn := cfg.VPNPortal(); vpn != nil {
		p, err := newPortal(*vpn)
		if err != nil {
			return nil, fmt.Errorf("vpn portal: %w", err)
		}
		e.portal = p
	}
	return e, nil
}

// Subscribe 实现 pkgif.Engine
func (e *Engine) Subscribe() (pkgif.EventSubscription, error) {
	return e.events.subscribe(), nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              运行
// ════════════════════════════════════════════════════════════════════════════

// Run 实现 pkgif.Engine
//
// 因 ctx 取消而退出时返回 nil。
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.events.close()

	e.collectInterfaces()

	tcp, udp, err := e.bind()
	if err != nil {
		return err
	}

	if addr, ok := e.cfg.IPv4(); ok {
		e.events.emit(types.EngineEvent{Kind: types.EventTunDeviceReady, Addr: addr.String(), Detail: "loopback0"})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ln := range tcp {
		ln := ln
		g.Go(func() error { return e.acceptLoop(gctx, ln) })
	}
	for _, pc := range udp {
		pc := pc
		g.Go(func() error { return e.readLoop(gctx, pc) })
	}
	if e.opts.stunEnabled {
		g.Go(func() error {
			e.probeSTUN(gctx)
			return nil
		})
	}
	g.Go(func() error { return e.dialLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return e.closeAll()
	})

	err = g.Wait()
	e.connWG.Wait()

	if ctx.Err() != nil {
		logger.Debug("引擎已停止", "id", e.cfg.ID())
		return nil
	}
	return err
}

// bind 绑定所有监听地址，任何一个失败都关闭已绑定的并返回错误
func (e *Engine) bind() ([]net.Listener, []net.PacketConn, error) {
	var (
		tcp   []net.Listener
		udp   []net.PacketConn
		bound []string
	)

	for _, u := range e.cfg.Listeners() {
		var (
			addr   net.Addr
			closer io.Closer
			err    error
		)
		switch u.Scheme {
		case "tcp":
			var ln net.Listener
			if ln, err = net.Listen("tcp", u.Host); err == nil {
				tcp = append(tcp, ln)
				addr, closer = ln.Addr(), ln
			}
		case "udp":
			var pc net.PacketConn
			if pc, err = net.ListenPacket("udp", u.Host); err == nil {
				udp = append(udp, pc)
				addr, closer = pc.LocalAddr(), pc
			}
		default:
			e.events.emit(types.EngineEvent{
				Kind:   types.EventListenerAddFailed,
				Addr:   u.String(),
				Detail: "unsupported scheme " + u.Scheme,
			})
			continue
		}

		if err != nil {
			e.events.emit(types.EngineEvent{Kind: types.EventListenerAddFailed, Addr: u.String(), Detail: err.Error()})
			closeErr := e.closeAll()
			return nil, nil, multierr.Append(fmt.Errorf("bind listener %s: %w", u, err), closeErr)
		}

		actual := u.Scheme + "://" + addr.String()
		bound = append(bound, actual)

		e.mu.Lock()
		e.closers = append(e.closers, closer)
		e.mu.Unlock()

		e.events.emit(types.EngineEvent{Kind: types.EventListenerAdded, Addr: actual})
	}

	e.mu.Lock()
	e.listeners = bound
	e.mu.Unlock()
	return tcp, udp, nil
}

// closeAll 关闭所有监听与连接
func (e *Engine) closeAll() error {
	e.mu.Lock()
	closers := e.closers
	e.closers = nil
	conns := make([]net.Conn, 0, len(e.peers))
	for _, p := range e.peers {
		conns = append(conns, p.conn)
	}
	e.mu.Unlock()

	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	for _, c := range conns {
		_ = c.Close()
	}
	return err
}

// acceptLoop 接受入站连接
func (e *Engine) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}

		remote := conn.RemoteAddr().String()
		e.events.emit(types.EngineEvent{Kind: types.EventConnectionAccepted, Addr: remote})
		e.addPeer(ctx, &peerConn{
			id:     peerID("in:" + remote),
			connID: "tcp-in-" + remote,
			remote: remote,
			host:   hostOf(remote),
			conn:   conn,
		}, remote)
	}
}

// readLoop 读取并丢弃 UDP 数据报
func (e *Engine) readLoop(ctx context.Context, pc net.PacketConn) error {
	buf := make([]byte, 2048)
	for {
		if _, _, err := pc.ReadFrom(buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read on %s: %w", pc.LocalAddr(), err)
		}
	}
}

// dialLoop 周期性拨号未连接的对等节点
func (e *Engine) dialLoop(ctx context.Context) error {
	e.dialAll(ctx)

	ticker := e.opts.clock.Ticker(e.opts.dialInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.dialAll(ctx)
		}
	}
}

func (e *Engine) dialAll(ctx context.Context) {
	for _, u := range e.cfg.Peers() {
		if ctx.Err() != nil {
			return
		}
		e.dialPeer(ctx, u)
	}
}

func (e *Engine) dialPeer(ctx context.Context, u *url.URL) {
	peer := u.String()

	if u.Scheme != "tcp" {
		e.mu.Lock()
		warned := e.warnedSchemes[peer]
		e.warnedSchemes[peer] = true
		e.mu.Unlock()
		if !warned {
			e.events.emit(types.EngineEvent{Kind: types.EventConnectError, Peer: peer, Detail: "unsupported scheme " + u.Scheme})
		}
		return
	}

	id := peerID(peer)
	e.mu.RLock()
	_, connected := e.peers[id]
	e.mu.RUnlock()
	if connected {
		return
	}

	e.events.emit(types.EngineEvent{Kind: types.EventConnecting, Peer: peer})

	dctx, cancel := context.WithTimeout(ctx, e.opts.dialTimeout)
	defer cancel()

	start := time.Now()
	conn, err := e.opts.dialer.DialContext(dctx, "tcp", u.Host)
	if err != nil {
		if ctx.Err() == nil {
			e.events.emit(types.EngineEvent{Kind: types.EventConnectError, Peer: peer, Detail: err.Error()})
		}
		return
	}

	e.events.emit(types.EngineEvent{Kind: types.EventConnected, Peer: peer, Addr: conn.RemoteAddr().String()})
	e.addPeer(ctx, &peerConn{
		id:      id,
		connID:  "tcp-out-" + conn.LocalAddr().String(),
		remote:  conn.RemoteAddr().String(),
		host:    u.Hostname(),
		conn:    conn,
		latency: time.Since(start),
	}, peer)
}

// addPeer 登记连接并在后台读取直到断开
func (e *Engine) addPeer(ctx context.Context, p *peerConn, label string) {
	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		_ = p.conn.Close()
		return
	}
	e.peers[p.id] = p
	e.mu.Unlock()

	e.events.emit(types.EngineEvent{Kind: types.EventPeerAdded, Peer: label, Detail: fmt.Sprint(p.id)})

	e.connWG.Add(1)
	go func() {
		defer e.connWG.Done()
		e.watch(ctx, p, label)
	}()
}

func (e *Engine) watch(ctx context.Context, p *peerConn, label string) {
	buf := make([]byte, 4096)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			p.rxBytes.Add(uint64(n))
			p.rxPackets.Add(1)
		}
		if err != nil {
			break
		}
	}
	_ = p.conn.Close()

	e.mu.Lock()
	if cur, ok := e.peers[p.id]; ok && cur == p {
		delete(e.peers, p.id)
	}
	e.mu.Unlock()

	if ctx.Err() == nil {
		e.events.emit(types.EngineEvent{Kind: types.EventPeerRemoved, Peer: label, Detail: fmt.Sprint(p.id)})
	}
}

// probeSTUN 探测一次公网地址
func (e *Engine) probeSTUN(ctx context.Context) {
	client := e.opts.stunClient
	if client == nil {
		client = stun.NewClient(e.cfg.STUNServers())
	}

	res, err := client.Probe(ctx)
	if err != nil {
		logger.Debug("STUN 探测失败", "id", e.cfg.ID(), "err", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ip4 := res.Mapped.IP.To4(); ip4 != nil {
		e.publicIPv4 = ip4.String()
	}
	e.stunInfo = types.StunInfo{
		UDPNATType:     res.NATType,
		TCPNATType:     types.NATTypeUnknown,
		LastUpdateTime: res.At.Unix(),
	}
}

func (e *Engine) collectInterfaces() {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return
	}

	var v4, v6 []string
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			v4 = append(v4, ip4.String())
		} else {
			v6 = append(v6, ipNet.IP.String())
		}
	}

	e.mu.Lock()
	e.ifaceV4, e.ifaceV6 = v4, v6
	e.mu.Unlock()
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// NodeInfo 实现 pkgif.Engine
func (e *Engine) NodeInfo(context.Context) (types.NodeInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	info := types.NodeInfo{
		IPs: types.IPList{
			PublicIPv4:     e.publicIPv4,
			InterfaceIPv4s: append([]string(nil), e.ifaceV4...),
			InterfaceIPv6s: append([]string(nil), e.ifaceV6...),
		},
		StunInfo:  e.stunInfo,
		Listeners: append([]string(nil), e.listeners...),
	}
	if addr, ok := e.cfg.IPv4(); ok {
		info.VirtualIPv4 = addr.String()
	}
	if e.portal != nil {
		text := e.portal.clientConfig(e.publicIPv4, e.cfg.ProxyCIDRs())
		info.VPNPortalCfg = &text
	}
	return info, nil
}

// Routes 实现 pkgif.Engine
func (e *Engine) Routes(context.Context) ([]types.Route, error) {
	peers := e.sortedPeers()
	routes := make([]types.Route, 0, len(peers))
	for _, p := range peers {
		routes = append(routes, types.Route{
			PeerID:        p.id,
			NextHopPeerID: p.id,
			Cost:          1,
			Hostname:      p.host,
		})
	}
	return routes, nil
}

// Peers 实现 pkgif.Engine
func (e *Engine) Peers(context.Context) ([]types.PeerInfo, error) {
	peers := e.sortedPeers()
	out := make([]types.PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, types.PeerInfo{
			PeerID: p.id,
			Conns: []types.PeerConnInfo{{
				ConnID:   p.connID,
				MyPeerID: e.myID,
				PeerID:   p.id,
				Tunnel: &types.TunnelInfo{
					TunnelType: "tcp",
					LocalAddr:  p.conn.LocalAddr().String(),
					RemoteAddr: p.remote,
				},
				Stats: &types.PeerConnStats{
					RxBytes:   p.rxBytes.Load(),
					RxPackets: p.rxPackets.Load(),
					LatencyUs: uint64(p.latency.Microseconds()),
				},
			}},
		})
	}
	return out, nil
}

func (e *Engine) sortedPeers() []*peerConn {
	e.mu.RLock()
	out := make([]*peerConn, 0, len(e.peers))
	for _, p := range e.peers {
		out = append(out, p)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// peerID 由字符串派生稳定的 32 位节点 ID
func peerID(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
