package config

import (
	"bytes"
	"fmt"
	"net/netip"
	"net/url"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// NetworkIdentity 网络身份
type NetworkIdentity struct {
	Name   string
	Secret string
}

// VPNPortalConfig WireGuard 门户配置
type VPNPortalConfig struct {
	// ClientCIDR 分配给门户客户端的网段
	ClientCIDR netip.Prefix
	// WireGuardListen WireGuard 监听地址
	WireGuardListen netip.AddrPort
}

// EngineConfig 经过校验的引擎配置
//
// 只能由 NetworkConfig.Build 创建，创建后不可修改；
// 所有切片访问器都返回副本。启动时整体移交给一个 Launcher。
type EngineConfig struct {
	id           uuid.UUID
	instanceName string
	hostname     string
	network      NetworkIdentity
	dhcp         bool
	ipv4         netip.Addr
	peers        []*url.URL
	listeners    []*url.URL
	proxyCIDRs   []netip.Prefix
	rpcPortal    netip.AddrPort
	vpnPortal    *VPNPortalConfig
	stunServers  []string
}

// ID 实例 ID（规范化后的小写 UUID 字符串）
func (c *EngineConfig) ID() string { return c.id.String() }

// InstanceName 实例名（与网络名相同）
func (c *EngineConfig) InstanceName() string { return c.instanceName }

// Hostname 主机名，未设置时为空
func (c *EngineConfig) Hostname() string { return c.hostname }

// Network 网络身份
func (c *EngineConfig) Network() NetworkIdentity { return c.network }

// DHCP 是否自动分配虚拟地址
func (c *EngineConfig) DHCP() bool { return c.dhcp }

// IPv4 静态虚拟地址
func (c *EngineConfig) IPv4() (netip.Addr, bool) { return c.ipv4, c.ipv4.IsValid() }

// Peers 初始对等节点
func (c *EngineConfig) Peers() []*url.URL { return cloneURLs(c.peers) }

// Listeners 监听地址
func (c *EngineConfig) Listeners() []*url.URL { return cloneURLs(c.listeners) }

// ProxyCIDRs 代理网段
func (c *EngineConfig) ProxyCIDRs() []netip.Prefix {
	return append([]netip.Prefix(nil), c.proxyCIDRs...)
}

// RPCPortal 本地 RPC 门户地址
func (c *EngineConfig) RPCPortal() netip.AddrPort { return c.rpcPortal }

// VPNPortal WireGuard 门户，未配置时为 nil
func (c *EngineConfig) VPNPortal() *VPNPortalConfig {
	if c.vpnPortal == nil {
		return nil
	}
	v := *c.vpnPortal
	return &v
}

// STUNServers STUN 服务器列表
func (c *EngineConfig) STUNServers() []string {
	return append([]string(nil), c.stunServers...)
}

func cloneURLs(in []*url.URL) []*url.URL {
	out := make([]*url.URL, 0, len(in))
	for _, u := range in {
		cp := *u
		out = append(out, &cp)
	}
	return out
}

// ════════════════════════════════════════════════════════════════════════════
//                              TOML 导出
// ════════════════════════════════════════════════════════════════════════════

type tomlConfig struct {
	InstanceName    string         `toml:"instance_name"`
	InstanceID      string         `toml:"instance_id"`
	Hostname        string         `toml:"hostname,omitempty"`
	IPv4            string         `toml:"ipv4,omitempty"`
	DHCP            bool           `toml:"dhcp"`
	Listeners       []string       `toml:"listeners"`
	RPCPortal       string         `toml:"rpc_portal"`
	STUNServers     []string       `toml:"stun_servers,omitempty"`
	NetworkIdentity tomlIdentity   `toml:"network_identity"`
	Peers           []tomlPeer     `toml:"peer"`
	ProxyNetworks   []tomlProxy    `toml:"proxy_network,omitempty"`
	VPNPortal       *tomlVPNPortal `toml:"vpn_portal_config,omitempty"`
}

type tomlIdentity struct {
	NetworkName   string `toml:"network_name"`
	NetworkSecret string `toml:"network_secret"`
}

type tomlPeer struct {
	URI string `toml:"uri"`
}

type tomlProxy struct {
	CIDR string `toml:"cidr"`
}

type tomlVPNPortal struct {
	ClientCIDR      string `toml:"client_cidr"`
	WireGuardListen string `toml:"wireguard_listen"`
}

// Dump 导出为 TOML 文本
func (c *EngineConfig) Dump() (string, error) {
	doc := tomlConfig{
		InstanceName: c.instanceName,
		InstanceID:   c.ID(),
		Hostname:     c.hostname,
		DHCP:         c.dhcp,
		Listeners:    make([]string, 0, len(c.listeners)),
		RPCPortal:    c.rpcPortal.String(),
		STUNServers:  c.stunServers,
		NetworkIdentity: tomlIdentity{
			NetworkName:   c.network.Name,
			NetworkSecret: c.network.Secret,
		},
	}
	if c.ipv4.IsValid() {
		doc.IPv4 = c.ipv4.String()
	}
	for _, l := range c.listeners {
		doc.Listeners = append(doc.Listeners, l.String())
	}
	for _, p := range c.peers {
		doc.Peers = append(doc.Peers, tomlPeer{URI: p.String()})
	}
	for _, n := range c.proxyCIDRs {
		doc.ProxyNetworks = append(doc.ProxyNetworks, tomlProxy{CIDR: n.String()})
	}
	if c.vpnPortal != nil {
		doc.VPNPortal = &tomlVPNPortal{
			ClientCIDR:      c.vpnPortal.ClientCIDR.String(),
			WireGuardListen: c.vpnPortal.WireGuardListen.String(),
		}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return "", fmt.Errorf("encode toml: %w", err)
	}
	return buf.String(), nil
}
