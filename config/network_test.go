package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "5B3F6A2C-7E1D-4C8B-9A0F-1D2E3F4A5B6C"

func strPtr(s string) *string { return &s }

func validNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ID:           testID,
		NetworkName:  strPtr("office"),
		PeerURLs:     []string{"tcp://1.2.3.4:11010"},
		ListenerURLs: []string{"tcp://0.0.0.0:11010", "", "udp://0.0.0.0:11010"},
	}
}

// ============================================================================
//                              Build 成功路径
// ============================================================================

func TestNetworkConfig_Build(t *testing.T) {
	nc := validNetworkConfig()
	nc.NetworkSecret = strPtr("s3cret")
	nc.DeviceName = strPtr("laptop")
	nc.ProxyCIDRs = []string{"192.168.10.0/24"}
	port := Port(15999)
	nc.RPCPort = &port

	cfg, err := nc.Build()
	require.NoError(t, err)

	assert.Equal(t, strings.ToLower(testID), cfg.ID())
	assert.Equal(t, "office", cfg.InstanceName())
	assert.Equal(t, NetworkIdentity{Name: "office", Secret: "s3cret"}, cfg.Network())
	assert.Equal(t, "laptop", cfg.Hostname())
	require.Len(t, cfg.Peers(), 1)
	assert.Equal(t, "1.2.3.4:11010", cfg.Peers()[0].Host)
	// 空串被跳过
	assert.Len(t, cfg.Listeners(), 2)
	require.Len(t, cfg.ProxyCIDRs(), 1)
	assert.Equal(t, "192.168.10.0/24", cfg.ProxyCIDRs()[0].String())
	assert.Equal(t, "127.0.0.1:15999", cfg.RPCPortal().String())
	assert.Nil(t, cfg.VPNPortal())
	_, ok := cfg.IPv4()
	assert.False(t, ok)
}

func TestNetworkConfig_Build_TokenDerivesIdentity(t *testing.T) {
	nc := validNetworkConfig()
	nc.NetworkName = nil
	nc.Token = strPtr("abc")

	cfg, err := nc.Build()
	require.NoError(t, err)

	// md5("abc") = 900150983cd24fb0d6963f7d28e17f72
	assert.Equal(t, "90015098", cfg.Network().Name)
	assert.Equal(t, "3cd24fb0d6963f7d28e17f72", cfg.Network().Secret)
	assert.Equal(t, "90015098", cfg.InstanceName())
}

func TestNetworkConfig_Build_StaticIPv4(t *testing.T) {
	nc := validNetworkConfig()
	nc.IPv4 = strPtr("10.144.144.7")

	cfg, err := nc.Build()
	require.NoError(t, err)
	addr, ok := cfg.IPv4()
	require.True(t, ok)
	assert.Equal(t, "10.144.144.7", addr.String())

	// dhcp 开启时忽略 ipv4
	nc.DHCP = true
	nc.IPv4 = strPtr("not-an-ip")
	cfg, err = nc.Build()
	require.NoError(t, err)
	_, ok = cfg.IPv4()
	assert.False(t, ok)
}

func TestNetworkConfig_Build_VPNPortal(t *testing.T) {
	nc := validNetworkConfig()
	nc.VPNPortalAddr = strPtr("10.14.14.0")

	cfg, err := nc.Build()
	require.NoError(t, err)
	vpn := cfg.VPNPortal()
	require.NotNil(t, vpn)
	assert.Equal(t, "10.14.14.0/24", vpn.ClientCIDR.String())
	assert.Equal(t, "0.0.0.0:22022", vpn.WireGuardListen.String())

	port := Port(51820)
	nc.VPNPortalPort = &port
	cfg, err = nc.Build()
	require.NoError(t, err)
	assert.Equal(t, uint16(51820), cfg.VPNPortal().WireGuardListen.Port())
}

// ============================================================================
//                              Build 失败路径
// ============================================================================

func TestNetworkConfig_Build_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NetworkConfig)
		want   string
	}{
		{"bad id", func(c *NetworkConfig) { c.ID = "x" }, "failed to parse instance id"},
		{"no identity", func(c *NetworkConfig) { c.NetworkName = nil; c.Token = nil }, "no token or network provided"},
		{"bad ipv4", func(c *NetworkConfig) { c.IPv4 = strPtr("999.1.1.1") }, "failed to parse ipv4 address"},
		{"ipv6 as ipv4", func(c *NetworkConfig) { c.IPv4 = strPtr("fe80::1") }, "failed to parse ipv4 address"},
		{"no peers", func(c *NetworkConfig) { c.PeerURLs = []string{"", ""} }, "no peer urls provided"},
		{"bad peer", func(c *NetworkConfig) { c.PeerURLs = []string{"1.2.3.4"} }, "failed to parse peer uri"},
		{"bad listener", func(c *NetworkConfig) { c.ListenerURLs = []string{"::::"} }, "failed to parse listener uri"},
		{"bad proxy", func(c *NetworkConfig) { c.ProxyCIDRs = []string{"10.0.0.0/99"} }, "failed to parse proxy network"},
		{"bad portal", func(c *NetworkConfig) { c.VPNPortalAddr = strPtr("nope") }, "failed to parse vpn portal client cidr"},
		{"empty portal", func(c *NetworkConfig) { c.VPNPortalAddr = strPtr("") }, "failed to parse vpn portal client cidr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nc := validNetworkConfig()
			tt.mutate(&nc)
			cfg, err := nc.Build()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// ============================================================================
//                              JSON / TOML
// ============================================================================

func TestNetworkConfig_JSON(t *testing.T) {
	raw := `{
		"id": "` + testID + `",
		"dhcp": false,
		"ipv4": "10.0.0.1",
		"networkName": "lab",
		"peerUrls": ["tcp://peer:11010"],
		"listenerUrls": ["tcp://0.0.0.0:11010"],
		"vpnPortalPort": "22023",
		"rpcPort": 15888
	}`

	var nc NetworkConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &nc))
	require.NotNil(t, nc.VPNPortalPort)
	assert.Equal(t, Port(22023), *nc.VPNPortalPort)
	assert.Equal(t, Port(15888), *nc.RPCPort)
	assert.Equal(t, "lab", *nc.NetworkName)

	var bad NetworkConfig
	assert.Error(t, json.Unmarshal([]byte(`{"rpcPort": "http"}`), &bad))
}

func TestEngineConfig_Dump(t *testing.T) {
	nc := validNetworkConfig()
	nc.IPv4 = strPtr("10.0.0.9")
	nc.ProxyCIDRs = []string{"172.16.0.0/16"}
	nc.VPNPortalAddr = strPtr("10.14.14.0")

	cfg, err := nc.Build()
	require.NoError(t, err)

	dump, err := cfg.Dump()
	require.NoError(t, err)

	assert.Contains(t, dump, `instance_name = "office"`)
	assert.Contains(t, dump, `instance_id = "`+strings.ToLower(testID)+`"`)
	assert.Contains(t, dump, `ipv4 = "10.0.0.9"`)
	assert.Contains(t, dump, `rpc_portal = "127.0.0.1:0"`)
	assert.Contains(t, dump, "[network_identity]")
	assert.Contains(t, dump, "[[peer]]")
	assert.Contains(t, dump, `uri = "tcp://1.2.3.4:11010"`)
	assert.Contains(t, dump, "[[proxy_network]]")
	assert.Contains(t, dump, "[vpn_portal_config]")
	assert.Contains(t, dump, `wireguard_listen = "0.0.0.0:22022"`)
}

func TestDefaultNetworkConfig(t *testing.T) {
	a := DefaultNetworkConfig()
	b := DefaultNetworkConfig()
	assert.NotEqual(t, a.ID, b.ID)
	require.NotNil(t, a.Token)
	assert.Len(t, *a.Token, 6)

	cfg, err := a.Build()
	require.NoError(t, err)
	assert.Len(t, cfg.Listeners(), 3)
}

func TestEngineConfig_AccessorsReturnCopies(t *testing.T) {
	nc := validNetworkConfig()
	nc.STUNServers = []string{"stun.example.org:3478", " "}
	cfg, err := nc.Build()
	require.NoError(t, err)

	peers := cfg.Peers()
	peers[0].Host = "mutated:1"
	assert.Equal(t, "1.2.3.4:11010", cfg.Peers()[0].Host)

	servers := cfg.STUNServers()
	require.Len(t, servers, 1)
	servers[0] = "mutated"
	assert.Equal(t, "stun.example.org:3478", cfg.STUNServers()[0])
}
