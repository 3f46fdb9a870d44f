package loopback

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/crypto/curve25519"

	"github.com/EasyTier/EasyLink/config"
)

// wgKeyPair WireGuard 密钥对（base64）
type wgKeyPair struct {
	Private string
	Public  string
}

func newWGKeyPair() (wgKeyPair, error) {
	var priv [curve25519.ScalarSize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return wgKeyPair{}, err
	}
	// clamp
	priv[0] &= 248
	priv[31] = (priv[31] & 127) | 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return wgKeyPair{}, err
	}
	return wgKeyPair{
		Private: base64.StdEncoding.EncodeToString(priv[:]),
		Public:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// portal WireGuard 门户
type portal struct {
	cfg    config.VPNPortalConfig
	server wgKeyPair
	client wgKeyPair
}

func newPortal(cfg config.VPNPortalConfig) (*portal, error) {
	server, err := newWGKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}
	client, err := newWGKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate client key: %w", err)
	}
	return &portal{cfg: cfg, server: server, client: client}, nil
}

// clientConfig 生成 WireGuard 客户端配置
//
// 客户端地址取网段内第一个主机地址；endpoint 优先使用公网地址。
func (p *portal) clientConfig(publicIPv4 string, allowed []netip.Prefix) string {
	clientAddr := p.cfg.ClientCIDR.Masked().Addr().Next()

	endpointHost := publicIPv4
	if endpointHost == "" {
		endpointHost = p.cfg.WireGuardListen.Addr().String()
	}

	allowedIPs := []string{p.cfg.ClientCIDR.Masked().String()}
	for _, a := range allowed {
		allowedIPs = append(allowedIPs, a.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", p.client.Private)
	fmt.Fprintf(&b, "Address = %s/32\n", clientAddr)
	fmt.Fprintf(&b, "\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", p.server.Public)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(allowedIPs, ", "))
	fmt.Fprintf(&b, "Endpoint = %s:%d\n", endpointHost, p.cfg.WireGuardListen.Port())
	fmt.Fprintf(&b, "PersistentKeepalive = 25\n")
	return b.String()
}
