package registry

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/launcher"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/types"
)

// Params 注册表依赖参数
type Params struct {
	fx.In

	Config  *config.Config
	Factory pkgif.EngineFactory
	Bus     pkgif.EventBus
	Clock   clock.Clock `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(Provide),
		fx.Invoke(registerLifecycle),
	)
}

// Provide 创建注册表，每个 Launcher 共享一个 InstanceEvent 发射器
func Provide(p Params) (*Registry, error) {
	em, err := p.Bus.Emitter(new(types.InstanceEvent))
	if err != nil {
		return nil, err
	}

	opts := []launcher.Option{
		launcher.WithConfig(p.Config.Launcher),
		launcher.WithEmitter(em),
	}
	if p.Clock != nil {
		opts = append(opts, launcher.WithClock(p.Clock))
	}

	return New(func(id string) *launcher.Launcher {
		return launcher.New(id, p.Factory, opts...)
	}), nil
}

type lifecycleInput struct {
	fx.In

	LC       fx.Lifecycle
	Registry *Registry
}

// registerLifecycle 停止时关闭注册表
func registerLifecycle(in lifecycleInput) {
	in.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return in.Registry.Close(ctx)
		},
	})
}
