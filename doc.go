// Package easylink 管理一个进程内的多个虚拟网络实例
//
// 每个实例由一个 Launcher 持有：独立的执行上下文运行引擎，
// 并维护共享状态块（节点信息、路由表、对等节点列表、最近 100 条事件）。
// Manager 是展示层的唯一入口，负责启动/停止实例、汇总快照，
// 并通过状态广播器周期性地把所有实例的快照推送给通知渠道。
//
// # 快速开始
//
//	mgr, err := easylink.New(
//	    easylink.WithEngineFactory(loopback.NewFactory()),
//	    easylink.WithSink(hub),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop(context.Background())
//
//	netCfg := config.DefaultNetworkConfig()
//	if err := mgr.StartInstance(&netCfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # 组件
//
//	┌──────────────────────────────────────────────────────────────┐
//	│  Manager (easylink)                                          │
//	├──────────────────────────────────────────────────────────────┤
//	│  Registry ── Launcher ── Engine (pkg/interfaces.Engine)      │
//	│     │            └── status.Block                            │
//	│  Broadcaster ── sink.Async ── Sink (websocket Hub ...)       │
//	│  EventBus ── InstanceEvent / EvtInstanceStarted / Stopped    │
//	└──────────────────────────────────────────────────────────────┘
//
// # 错误
//
// 实例相关错误均可用 errors.Is 判断：ErrAlreadyExists、ErrNotFound、
// ErrInvalidConfig、ErrStartFailed、ErrStopTimeout。
package easylink
