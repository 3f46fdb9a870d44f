package broadcaster

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/registry"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
)

// Params 广播器依赖参数
type Params struct {
	fx.In

	Config   *config.Config
	Registry *registry.Registry
	Sink     pkgif.Sink
	Clock    clock.Clock `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("broadcaster",
		fx.Provide(Provide),
		fx.Invoke(registerLifecycle),
	)
}

// Provide 创建以注册表为来源的广播器
func Provide(p Params) *Broadcaster {
	return New(p.Registry, p.Sink,
		WithConfig(p.Config.Broadcaster),
		WithClock(p.Clock),
	)
}

type lifecycleInput struct {
	fx.In

	LC          fx.Lifecycle
	Broadcaster *Broadcaster
}

func registerLifecycle(in lifecycleInput) {
	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return in.Broadcaster.Close()
		},
	})
}
