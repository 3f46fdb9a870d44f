package stun

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EasyTier/EasyLink/pkg/types"
)

// startServer 启动一个本地 STUN 服务器，把请求方地址加上 portShift 作为映射地址返回
func startServer(t *testing.T, portShift int, legacy bool) string {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
			if err := req.Decode(); err != nil {
				continue
			}

			var setter stun.Setter = &stun.XORMappedAddress{IP: from.IP, Port: from.Port + portShift}
			if legacy {
				setter = &stun.MappedAddress{IP: from.IP, Port: from.Port + portShift}
			}
			res, err := stun.Build(
				stun.NewTransactionIDSetter(req.TransactionID),
				stun.BindingSuccess,
				setter,
				stun.Fingerprint,
			)
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(res.Raw, from)
		}
	}()

	return conn.LocalAddr().String()
}

// ============================================================================
//                              真实请求
// ============================================================================

func TestClient_ProbeLocalServer(t *testing.T) {
	server := startServer(t, 0, false)

	client := NewClient([]string{server})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Probe(ctx)
	require.NoError(t, err)

	assert.True(t, res.Mapped.IP.Equal(net.IPv4(127, 0, 0, 1)))
	assert.Equal(t, res.Local.Port, res.Mapped.Port)
	assert.Equal(t, []string{server}, res.Servers)
	// 回环地址是本机网卡地址
	assert.Equal(t, types.NATTypeOpenInternet, res.NATType)
}

func TestClient_LegacyMappedAddress(t *testing.T) {
	server := startServer(t, 7, true)

	client := NewClient([]string{server})
	addr, err := client.GetExternalAddr(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, addr.Port)
}

func TestClient_TwoServersDisagree(t *testing.T) {
	a := startServer(t, 0, false)
	b := startServer(t, 1, false)

	client := NewClient([]string{a, b})
	res, err := client.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.NATTypeSymmetric, res.NATType)
	assert.Len(t, res.Servers, 2)
}

// ============================================================================
//                              测试钩子
// ============================================================================

func TestClient_QueryHookAndCache(t *testing.T) {
	mock := clock.NewMock()
	client := NewClient([]string{"stun.invalid:3478"})
	client.SetClock(mock)
	client.SetCacheDuration(time.Minute)

	var calls atomic.Int32
	client.SetQueryFunc(func(_ context.Context, _ *net.UDPConn, _ string) (*net.UDPAddr, error) {
		calls.Add(1)
		return &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 54321}, nil
	})

	addr, err := client.GetExternalAddr(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.1:54321", addr.String())

	_, err = client.GetExternalAddr(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call should hit the cache")

	mock.Add(2 * time.Minute)
	_, err = client.GetExternalAddr(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_FailoverToNextServer(t *testing.T) {
	client := NewClient([]string{"bad:1", "good:2"})
	client.SetRetries(1)

	var asked []string
	client.SetQueryFunc(func(_ context.Context, _ *net.UDPConn, server string) (*net.UDPAddr, error) {
		asked = append(asked, server)
		if server == "bad:1" {
			return nil, errors.New("unreachable")
		}
		return &net.UDPAddr{IP: net.ParseIP("198.51.100.2"), Port: 4000}, nil
	})

	res, err := client.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bad:1", "good:2"}, asked)
	assert.Equal(t, []string{"good:2"}, res.Servers)
}

func TestClient_AllServersFail(t *testing.T) {
	client := NewClient([]string{"a:1", "b:2"})
	client.SetRetries(1)
	client.SetQueryFunc(func(context.Context, *net.UDPConn, string) (*net.UDPAddr, error) {
		return nil, errors.New("unreachable")
	})

	_, err := client.Probe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_CancelledContext(t *testing.T) {
	client := NewClient(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Probe(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_NoServers(t *testing.T) {
	client := NewClient(nil)
	client.servers = nil
	_, err := client.Probe(context.Background())
	assert.ErrorIs(t, err, ErrNoServers)
}

// ============================================================================
//                              分类
// ============================================================================

func TestClassify(t *testing.T) {
	local := &net.UDPAddr{IP: net.ParseIP("192.168.1.5"), Port: 5000}
	localIPs := []net.IP{net.ParseIP("192.168.1.5")}

	tests := []struct {
		name   string
		local  *net.UDPAddr
		mapped []*net.UDPAddr
		want   types.NATType
	}{
		{"no response", local, nil, types.NATTypeUnknown},
		{"public", local, []*net.UDPAddr{{IP: net.ParseIP("192.168.1.5"), Port: 5000}}, types.NATTypeOpenInternet},
		{"no pat", local, []*net.UDPAddr{{IP: net.ParseIP("203.0.113.9"), Port: 5000}}, types.NATTypeNoPAT},
		{"port changed", local, []*net.UDPAddr{{IP: net.ParseIP("203.0.113.9"), Port: 6000}}, types.NATTypeUnknown},
		{"symmetric", local, []*net.UDPAddr{
			{IP: net.ParseIP("203.0.113.9"), Port: 6000},
			{IP: net.ParseIP("203.0.113.9"), Port: 6001},
		}, types.NATTypeSymmetric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.local, tt.mapped, localIPs))
		})
	}
}

func TestSTUNError(t *testing.T) {
	cause := errors.New("boom")
	err := &STUNError{Message: "read response", Cause: cause}
	assert.Equal(t, "stun: read response: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "stun: no STUN servers", ErrNoServers.Error())
}
