package types

import "sort"

// ============================================================================
//                              路由与对等节点
// ============================================================================

// Route 路由表项
type Route struct {
	PeerID        uint32    `json:"peer_id"`
	IPv4Addr      string    `json:"ipv4_addr"`
	NextHopPeerID uint32    `json:"next_hop_peer_id"`
	Cost          int32     `json:"cost"`
	ProxyCIDRs    []string  `json:"proxy_cidrs"`
	Hostname      string    `json:"hostname"`
	StunInfo      *StunInfo `json:"stun_info,omitempty"`
	InstID        string    `json:"inst_id"`
}

// Clone 深拷贝
func (r Route) Clone() Route {
	out := r
	out.ProxyCIDRs = cloneStrings(r.ProxyCIDRs)
	if r.StunInfo != nil {
		info := *r.StunInfo
		out.StunInfo = &info
	}
	return out
}

// TunnelInfo 隧道信息
type TunnelInfo struct {
	TunnelType string `json:"tunnel_type"`
	LocalAddr  string `json:"local_addr"`
	RemoteAddr string `json:"remote_addr"`
}

// PeerConnStats 连接统计
type PeerConnStats struct {
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	LatencyUs uint64 `json:"latency_us"`
}

// PeerConnInfo 与对等节点之间的一条连接
type PeerConnInfo struct {
	ConnID   string         `json:"conn_id"`
	MyPeerID uint32         `json:"my_peer_id"`
	PeerID   uint32         `json:"peer_id"`
	Features []string       `json:"features"`
	Tunnel   *TunnelInfo    `json:"tunnel,omitempty"`
	Stats    *PeerConnStats `json:"stats,omitempty"`
	LossRate float32        `json:"loss_rate"`
}

// PeerInfo 对等节点及其连接
type PeerInfo struct {
	PeerID uint32         `json:"peer_id"`
	Conns  []PeerConnInfo `json:"conns"`
}

// Clone 深拷贝
func (p PeerInfo) Clone() PeerInfo {
	out := p
	if p.Conns == nil {
		return out
	}
	out.Conns = make([]PeerConnInfo, len(p.Conns))
	for i, c := range p.Conns {
		cc := c
		cc.Features = cloneStrings(c.Features)
		if c.Tunnel != nil {
			t := *c.Tunnel
			cc.Tunnel = &t
		}
		if c.Stats != nil {
			s := *c.Stats
			cc.Stats = &s
		}
		out.Conns[i] = cc
	}
	return out
}

// CloneRoutes 深拷贝路由表
func CloneRoutes(in []Route) []Route {
	if in == nil {
		return nil
	}
	out := make([]Route, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// ClonePeers 深拷贝对等节点列表
func ClonePeers(in []PeerInfo) []PeerInfo {
	if in == nil {
		return nil
	}
	out := make([]PeerInfo, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// ============================================================================
//                              PeerRoutePair
// ============================================================================

// PeerRoutePair 按 PeerID 关联的路由与对等节点
//
// 只经中继可达的节点没有直连 PeerInfo，Peer 为 nil。
type PeerRoutePair struct {
	Route Route     `json:"route"`
	Peer  *PeerInfo `json:"peer,omitempty"`
}

// ListPeerRoutePairs 以路由表为主键关联对等节点，结果按 PeerID 排序
func ListPeerRoutePairs(peers []PeerInfo, routes []Route) []PeerRoutePair {
	byID := make(map[uint32]PeerInfo, len(peers))
	for _, p := range peers {
		byID[p.PeerID] = p
	}

	pairs := make([]PeerRoutePair, 0, len(routes))
	for _, r := range routes {
		pair := PeerRoutePair{Route: r.Clone()}
		if p, ok := byID[r.PeerID]; ok {
			peer := p.Clone()
			pair.Peer = &peer
		}
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Route.PeerID < pairs[j].Route.PeerID
	})
	return pairs
}
