package loopback

import (
	"net"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/EasyTier/EasyLink/internal/core/nat/stun"
)

// 默认值
const (
	DefaultDialInterval = 5 * time.Second
	DefaultDialTimeout  = 3 * time.Second
	DefaultEventBuffer  = 256
)

type options struct {
	clock        clock.Clock
	dialInterval time.Duration
	dialTimeout  time.Duration
	eventBuffer  int
	dialer       *net.Dialer
	stunEnabled  bool
	stunClient   *stun.Client
}

func defaultOptions() options {
	return options{
		clock:        clock.New(),
		dialInterval: DefaultDialInterval,
		dialTimeout:  DefaultDialTimeout,
		eventBuffer:  DefaultEventBuffer,
		dialer:       &net.Dialer{},
		stunEnabled:  true,
	}
}

// Option 引擎选项
type Option func(*options)

// WithClock 设置时钟（拨号周期）
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithDialInterval 设置对等节点重拨周期
func WithDialInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialInterval = d
		}
	}
}

// WithDialTimeout 设置单次拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithEventBuffer 设置事件订阅缓冲区
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithSTUNClient 使用指定的 STUN 客户端
func WithSTUNClient(c *stun.Client) Option {
	return func(o *options) {
		o.stunClient = c
		o.stunEnabled = c != nil
	}
}

// WithoutSTUN 关闭 STUN 探测
func WithoutSTUN() Option {
	return func(o *options) {
		o.stunEnabled = false
		o.stunClient = nil
	}
}
