package interfaces

// 本文件定义网络引擎契约。

import (
	"context"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/pkg/types"
)

// Engine 网络引擎
//
// 实例管理层只通过本接口驱动引擎，不关心隧道、路由或加密的实现。
// 一个 Engine 只运行一次，由唯一的 Launcher 独占。
type Engine interface {
	// Run 运行引擎直到 ctx 取消或发生不可恢复的错误
	//
	// ctx 取消后应尽快返回；因取消而返回时返回 nil 或 ctx.Err()。
	Run(ctx context.Context) error

	// Subscribe 订阅引擎生命周期事件
	//
	// Launcher 在调用 Run 之前订阅，因此启动阶段的事件不会丢失。
	// Run 返回后引擎应关闭所有订阅的输出通道。
	Subscribe() (EventSubscription, error)

	// NodeInfo 返回引擎自身的当前视图
	NodeInfo(ctx context.Context) (types.NodeInfo, error)

	// Routes 返回当前路由表
	Routes(ctx context.Context) ([]types.Route, error)

	// Peers 返回当前直连对等节点
	Peers(ctx context.Context) ([]types.PeerInfo, error)
}

// EventSubscription 引擎事件订阅
type EventSubscription interface {
	// Out 返回事件通道，引擎退出后关闭
	Out() <-chan types.EngineEvent

	// Close 取消订阅
	Close() error
}

// EngineFactory 根据校验过的配置创建引擎
//
// 返回错误视为启动期引擎错误，同步返回给调用方。
type EngineFactory func(cfg *config.EngineConfig) (Engine, error)

// ConfigProvider 延迟产出引擎配置
//
// Launcher.Start 同步调用一次；返回错误时实例不会进入 Running。
type ConfigProvider func() (*config.EngineConfig, error)
