package easylink

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/engine/loopback"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
)

// Option Manager 配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config     *config.Config
	factory    pkgif.EngineFactory
	sinks      []pkgif.Sink
	eventSinks []pkgif.EventSink
	clock      clock.Clock
	fxOptions  []fx.Option
	fxLogger   *zap.Logger
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{
		config: config.NewConfig(),
	}
}

// finalize 填充默认值并校验
func (o *options) finalize() error {
	if err := o.config.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if o.factory == nil {
		o.factory = loopback.NewFactory(loopback.WithEventBuffer(o.config.Launcher.EventBuffer))
	}
	if o.fxLogger == nil {
		o.fxLogger = zap.NewNop()
	}
	return nil
}

// WithConfig 使用指定的守护进程配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg
		return nil
	}
}

// WithEngineFactory 设置引擎工厂，默认使用 loopback 引擎
func WithEngineFactory(f pkgif.EngineFactory) Option {
	return func(o *options) error {
		if f == nil {
			return errors.New("engine factory is nil")
		}
		o.factory = f
		return nil
	}
}

// WithSink 添加状态快照通知渠道，可多次调用
func WithSink(s pkgif.Sink) Option {
	return func(o *options) error {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
		return nil
	}
}

// WithEventSink 添加实例事件通知渠道，可多次调用
func WithEventSink(s pkgif.EventSink) Option {
	return func(o *options) error {
		if s != nil {
			o.eventSinks = append(o.eventSinks, s)
		}
		return nil
	}
}

// WithClock 替换时钟（用于测试）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}

// WithFxLogger 设置 Fx 框架日志，默认不输出
func WithFxLogger(l *zap.Logger) Option {
	return func(o *options) error {
		o.fxLogger = l
		return nil
	}
}
