package stun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/stun"

	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("core/nat/stun")

// DefaultServers 默认 STUN 服务器
var DefaultServers = []string{
	"stun.l.google.com:19302",
	"stun1.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// Errors
var (
	ErrNoServers = &STUNError{Message: "no STUN servers"}
	ErrTimeout   = &STUNError{Message: "STUN request timeout"}
)

// STUNError STUN 错误
type STUNError struct {
	Message string
	Cause   error
}

func (e *STUNError) Error() string {
	if e.Cause != nil {
		return "stun: " + e.Message + ": " + e.Cause.Error()
	}
	return "stun: " + e.Message
}

func (e *STUNError) Unwrap() error {
	return e.Cause
}

// ============================================================================
//                              Client
// ============================================================================

// Result 一次探测的结果
type Result struct {
	// Mapped 第一个响应的服务器看到的映射地址
	Mapped *net.UDPAddr
	// Local 本地套接字地址
	Local *net.UDPAddr
	// NATType 粗粒度 NAT 类型
	NATType types.NATType
	// Servers 成功响应的服务器
	Servers []string
	// At 探测完成时间
	At time.Time
}

// QueryFunc 单次查询函数，签名与内部实现一致（用于测试）
type QueryFunc func(ctx context.Context, conn *net.UDPConn, server string) (*net.UDPAddr, error)

// Client STUN 客户端
type Client struct {
	servers []string
	timeout time.Duration
	retries int
	clock   clock.Clock

	mu            sync.RWMutex
	cached        *Result
	cacheDuration time.Duration

	// 用于测试的钩子函数
	queryFunc QueryFunc
}

// NewClient 创建 STUN 客户端，servers 为空时使用 DefaultServers
func NewClient(servers []string) *Client {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	return &Client{
		servers:       append([]string(nil), servers...),
		timeout:       3 * time.Second,
		retries:       2,
		clock:         clock.New(),
		cacheDuration: 5 * time.Minute,
	}
}

// SetClock 替换时钟（用于测试）
func (c *Client) SetClock(clk clock.Clock) { c.clock = clk }

// SetTimeout 设置单次请求超时
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// SetRetries 设置每个服务器的尝试次数
func (c *Client) SetRetries(n int) {
	if n < 1 {
		n = 1
	}
	c.retries = n
}

// SetCacheDuration 设置缓存时间
func (c *Client) SetCacheDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheDuration = d
}

// SetQueryFunc 设置查询函数（用于测试）
func (c *Client) SetQueryFunc(f QueryFunc) { c.queryFunc = f }

// GetExternalAddr 获取外部映射地址
func (c *Client) GetExternalAddr(ctx context.Context) (*net.UDPAddr, error) {
	res, err := c.Probe(ctx)
	if err != nil {
		return nil, err
	}
	return res.Mapped, nil
}

// Probe 探测映射地址并分类 NAT
//
// 所有查询复用同一个本地 UDP 套接字。第一个服务器成功后再尝试
// 另一个服务器，用于判断映射是否随目的地址变化。
func (c *Client) Probe(ctx context.Context) (*Result, error) {
	if res := c.getCached(); res != nil {
		return res, nil
	}
	if len(c.servers) == 0 {
		return nil, ErrNoServers
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, &STUNError{Message: "create UDP socket", Cause: err}
	}
	defer conn.Close()

	// ctx 取消时关闭套接字，阻塞中的读立即返回
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	local := conn.LocalAddr().(*net.UDPAddr)

	var mapped []*net.UDPAddr
	var servers []string
	var lastErr error
	for _, server := range c.servers {
		addr, err := c.queryWithRetry(ctx, conn, server)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("STUN 服务器无响应", "server", server, "err", err)
			continue
		}
		mapped = append(mapped, addr)
		servers = append(servers, server)
		if len(mapped) == 2 {
			break
		}
	}

	if len(mapped) == 0 {
		if lastErr == nil {
			lastErr = ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrTimeout, lastErr)
	}

	res := &Result{
		Mapped:  mapped[0],
		Local:   local,
		NATType: Classify(local, mapped, interfaceIPs()),
		Servers: servers,
		At:      c.clock.Now(),
	}
	c.setCached(res)

	logger.Debug("STUN 探测完成", "mapped", res.Mapped, "nat", res.NATType)
	return res, nil
}

// queryWithRetry 对单个服务器重试，指数退避
func (c *Client) queryWithRetry(ctx context.Context, conn *net.UDPConn, server string) (*net.UDPAddr, error) {
	var lastErr error
	for retry := 0; retry < c.retries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(time.Duration(1<<(retry-1)) * 200 * time.Millisecond):
			}
		}

		addr, err := c.query(ctx, conn, server)
		if err == nil {
			return addr, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) query(ctx context.Context, conn *net.UDPConn, server string) (*net.UDPAddr, error) {
	if c.queryFunc != nil {
		return c.queryFunc(ctx, conn, server)
	}
	return c.queryServer(ctx, conn, server)
}

// queryServer 查询单个 STUN 服务器
func (c *Client) queryServer(ctx context.Context, conn *net.UDPConn, server string) (*net.UDPAddr, error) {
	raddr, err := net.ResolveUDPAddr("udp4", server)
	if err != nil {
		return nil, &STUNError{Message: "resolve server address", Cause: err}
	}

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, &STUNError{Message: "build request", Cause: err}
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &STUNError{Message: "set deadline", Cause: err}
	}

	if _, err := conn.WriteToUDP(req.Raw, raddr); err != nil {
		return nil, &STUNError{Message: "send request", Cause: err}
	}

	buf := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, &STUNError{Message: "read response", Cause: err}
		}
		if !from.IP.Equal(raddr.IP) || from.Port != raddr.Port {
			continue
		}

		res := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
		if err := res.Decode(); err != nil {
			return nil, &STUNError{Message: "decode response", Cause: err}
		}
		if res.TransactionID != req.TransactionID {
			// 上一次重试的迟到响应
			continue
		}
		return mappedAddress(res)
	}
}

// mappedAddress 提取 XOR-MAPPED-ADDRESS，回退到 MAPPED-ADDRESS（旧版 STUN）
func mappedAddress(res *stun.Message) (*net.UDPAddr, error) {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(res); err == nil {
		return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, nil
	}

	var mapped stun.MappedAddress
	if err := mapped.GetFrom(res); err != nil {
		return nil, &STUNError{Message: "no mapped address in response", Cause: err}
	}
	return &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}, nil
}

func (c *Client) getCached() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cached != nil && c.clock.Since(c.cached.At) < c.cacheDuration {
		return c.cached
	}
	return nil
}

func (c *Client) setCached(res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = res
}

// ============================================================================
//                              分类
// ============================================================================

// Classify 根据本地地址与各服务器看到的映射地址给出粗粒度 NAT 类型
func Classify(local *net.UDPAddr, mapped []*net.UDPAddr, localIPs []net.IP) types.NATType {
	if local == nil || len(mapped) == 0 {
		return types.NATTypeUnknown
	}

	first := mapped[0]
	for _, m := range mapped[1:] {
		if !m.IP.Equal(first.IP) || m.Port != first.Port {
			return types.NATTypeSymmetric
		}
	}

	if first.Port == local.Port {
		for _, ip := range localIPs {
			if ip.Equal(first.IP) {
				return types.NATTypeOpenInternet
			}
		}
		return types.NATTypeNoPAT
	}
	return types.NATTypeUnknown
}

// interfaceIPs 本机网卡地址
func interfaceIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			out = append(out, ipNet.IP)
		}
	}
	return out
}
