package easylink

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/EasyTier/EasyLink/internal/core/broadcaster"
	"github.com/EasyTier/EasyLink/internal/core/eventbus"
	"github.com/EasyTier/EasyLink/internal/core/metrics"
	"github.com/EasyTier/EasyLink/internal/core/registry"
	"github.com/EasyTier/EasyLink/internal/core/sink"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
)

// Module 返回核心模块集合
//
// 需要外部提供 *config.Config、pkgif.EngineFactory 与 pkgif.Sink；
// clock.Clock 可选。
//
// 加载顺序（按依赖）：metrics → eventbus → registry → broadcaster。
// OnStop 按相反顺序执行：先停广播，再拆除所有实例，最后关闭总线。
func Module() fx.Option {
	return fx.Options(
		metrics.Module,
		eventbus.Module(),
		registry.Module(),
		broadcaster.Module(),
	)
}

// buildFxApp 构建 Fx 应用
func buildFxApp(o *options, m *Manager) *fx.App {
	modules := []fx.Option{
		fx.Supply(o.config),
		fx.Provide(func() pkgif.EngineFactory { return o.factory }),
		fx.Provide(func() pkgif.Sink { return combineSinks(o.sinks) }),
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	modules = append(modules, Module())
	modules = append(modules, o.fxOptions...)
	modules = append(modules,
		fx.Populate(&m.bus, &m.registry, &m.broadcaster),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: o.fxLogger}
		}),
	)

	return fx.New(modules...)
}

func combineSinks(sinks []pkgif.Sink) pkgif.Sink {
	switch len(sinks) {
	case 0:
		return sink.Discard
	case 1:
		return sinks[0]
	default:
		return sink.Multi(sinks...)
	}
}
