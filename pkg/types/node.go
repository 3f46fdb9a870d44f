package types

// IPList 本机收集到的地址
type IPList struct {
	PublicIPv4     string   `json:"public_ipv4"`
	InterfaceIPv4s []string `json:"interface_ipv4s"`
	PublicIPv6     string   `json:"public_ipv6"`
	InterfaceIPv6s []string `json:"interface_ipv6s"`
}

// StunInfo STUN 探测结果
type StunInfo struct {
	UDPNATType NATType `json:"udp_nat_type"`
	TCPNATType NATType `json:"tcp_nat_type"`
	// LastUpdateTime Unix 秒
	LastUpdateTime int64 `json:"last_update_time"`
}

// NodeInfo 引擎自身视图
//
// 每次刷新整体替换，不做合并。
type NodeInfo struct {
	VirtualIPv4  string   `json:"virtual_ipv4"`
	IPs          IPList   `json:"ips"`
	StunInfo     StunInfo `json:"stun_info"`
	Listeners    []string `json:"listeners"`
	VPNPortalCfg *string  `json:"vpn_portal_cfg,omitempty"`
}

// Clone 深拷贝
func (n NodeInfo) Clone() NodeInfo {
	out := n
	out.IPs.InterfaceIPv4s = cloneStrings(n.IPs.InterfaceIPv4s)
	out.IPs.InterfaceIPv6s = cloneStrings(n.IPs.InterfaceIPv6s)
	out.Listeners = cloneStrings(n.Listeners)
	if n.VPNPortalCfg != nil {
		cfg := *n.VPNPortalCfg
		out.VPNPortalCfg = &cfg
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
