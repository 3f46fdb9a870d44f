package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// 默认值
const (
	// DefaultVPNPortalPort WireGuard 门户默认监听端口
	DefaultVPNPortalPort = 22022

	// DefaultPublicPeer 默认公共节点
	DefaultPublicPeer = "tcp://easytier.public.kkrainbow.top:11010"
)

// ════════════════════════════════════════════════════════════════════════════
//                              NetworkConfig
// ════════════════════════════════════════════════════════════════════════════

// NetworkConfig 展示层提交的网络实例配置
//
// 字段名与前端保持一致（camelCase）。NetworkConfig 只是用户输入，
// 必须经 Build() 校验后才能交给 Launcher。
type NetworkConfig struct {
	ID            string   `json:"id"`
	DHCP          bool     `json:"dhcp"`
	IPv4          *string  `json:"ipv4,omitempty"`
	DeviceName    *string  `json:"deviceName,omitempty"`
	Token         *string  `json:"token,omitempty"`
	NetworkName   *string  `json:"networkName,omitempty"`
	NetworkSecret *string  `json:"networkSecret,omitempty"`
	PeerURLs      []string `json:"peerUrls"`
	ProxyCIDRs    []string `json:"proxyCidrs,omitempty"`
	VPNPortalPort *Port    `json:"vpnPortalPort,omitempty"`
	VPNPortalAddr *string  `json:"vpnPortalAddr,omitempty"`
	ListenerURLs  []string `json:"listenerUrls"`
	RPCPort       *Port    `json:"rpcPort,omitempty"`
	STUNServers   []string `json:"stunServers,omitempty"`
}

// DefaultNetworkConfig 返回一份新的默认网络配置
//
// 每次调用生成新的实例 ID 与随机 token。
func DefaultNetworkConfig() NetworkConfig {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return NetworkConfig{
		ID:       uuid.NewString(),
		DHCP:     true,
		Token:    &token,
		PeerURLs: []string{DefaultPublicPeer},
		ListenerURLs: []string{
			"tcp://0.0.0.0:11010",
			"udp://0.0.0.0:11010",
			"wg://0.0.0.0:11011",
		},
	}
}

// Build 校验用户输入并生成 EngineConfig
//
// 校验规则：
//   - id 必须是 UUID
//   - networkName 与 token 至少提供一个；只有 token 时由其 md5 派生网络名与密钥
//   - dhcp 关闭时解析 ipv4
//   - peerUrls / listenerUrls 跳过空串，其余必须是合法 URI，且至少一个 peer
//   - proxyCidrs 必须是合法 CIDR
//   - 出现 vpnPortalAddr（包括空串）时生成 WireGuard 门户配置，地址必须合法
//
// 返回的错误都包装 ErrInvalidConfig。
func (c *NetworkConfig) Build() (*EngineConfig, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.ID))
	if err != nil {
		return nil, invalidf("failed to parse instance id: %s", c.ID)
	}

	cfg := &EngineConfig{
		id:       id,
		hostname: deref(c.DeviceName),
		dhcp:     c.DHCP,
	}

	name, secret, err := c.networkIdentity()
	if err != nil {
		return nil, err
	}
	cfg.instanceName = name
	cfg.network = NetworkIdentity{Name: name, Secret: secret}

	if !c.DHCP && c.IPv4 != nil && *c.IPv4 != "" {
		addr, err := netip.ParseAddr(*c.IPv4)
		if err != nil || !addr.Is4() {
			return nil, invalidf("failed to parse ipv4 address: %q", *c.IPv4)
		}
		cfg.ipv4 = addr
	}

	cfg.peers, err = parseURIs(c.PeerURLs, "peer")
	if err != nil {
		return nil, err
	}
	if len(cfg.peers) == 0 {
		return nil, invalidf("no peer urls provided")
	}

	cfg.listeners, err = parseURIs(c.ListenerURLs, "listener")
	if err != nil {
		return nil, err
	}

	for _, n := range c.ProxyCIDRs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(n))
		if err != nil {
			return nil, invalidf("failed to parse proxy network: %s", n)
		}
		cfg.proxyCIDRs = append(cfg.proxyCIDRs, prefix)
	}

	rpcPort := uint16(0)
	if c.RPCPort != nil {
		rpcPort = uint16(*c.RPCPort)
	}
	cfg.rpcPortal = netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), rpcPort)

	if c.VPNPortalAddr != nil {
		cidr := *c.VPNPortalAddr + "/24"
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, invalidf("failed to parse vpn portal client cidr: %s", cidr)
		}
		port := uint16(DefaultVPNPortalPort)
		if c.VPNPortalPort != nil {
			port = uint16(*c.VPNPortalPort)
		}
		cfg.vpnPortal = &VPNPortalConfig{
			ClientCIDR:      prefix,
			WireGuardListen: netip.AddrPortFrom(netip.IPv4Unspecified(), port),
		}
	}

	for _, s := range c.STUNServers {
		if s = strings.TrimSpace(s); s != "" {
			cfg.stunServers = append(cfg.stunServers, s)
		}
	}

	return cfg, nil
}

// networkIdentity 计算网络名与密钥
func (c *NetworkConfig) networkIdentity() (string, string, error) {
	if c.NetworkName == nil && c.Token == nil {
		return "", "", invalidf("no token or network provided")
	}

	if c.NetworkName != nil {
		return *c.NetworkName, deref(c.NetworkSecret), nil
	}

	digest := md5.Sum([]byte(*c.Token))
	hexed := hex.EncodeToString(digest[:])
	return hexed[:8], hexed[8:], nil
}

// parseURIs 解析 URI 列表，跳过空串
func parseURIs(raw []string, what string) ([]*url.URL, error) {
	var out []*url.URL
	for _, s := range raw {
		if s == "" {
			continue
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, invalidf("failed to parse %s uri: %s", what, s)
		}
		out = append(out, u)
	}
	return out, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ════════════════════════════════════════════════════════════════════════════
//                              Port
// ════════════════════════════════════════════════════════════════════════════

// Port 端口号
//
// 前端可能以数字或字符串提交端口，两种形式都接受。
type Port uint16

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (p *Port) UnmarshalJSON(data []byte) error {
	var n uint16
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Port(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("port must be a number or numeric string")
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", s, err)
	}
	*p = Port(v)
	return nil
}
