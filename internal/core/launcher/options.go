package launcher

import (
	"github.com/benbjohnson/clock"

	"github.com/EasyTier/EasyLink/config"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
)

// Option Launcher 选项
type Option func(*Launcher)

// WithConfig 设置执行上下文参数
func WithConfig(cfg config.LauncherConfig) Option {
	return func(l *Launcher) { l.cfg = cfg }
}

// WithClock 设置时钟，用于事件时间戳、刷新周期与停止超时
func WithClock(clk clock.Clock) Option {
	return func(l *Launcher) {
		if clk != nil {
			l.clock = clk
		}
	}
}

// WithEmitter 设置实例事件的发射器（types.InstanceEvent）
func WithEmitter(em pkgif.Emitter) Option {
	return func(l *Launcher) { l.emitter = em }
}
