// Package launcher 实现单个网络实例的执行上下文
//
// 每个 Launcher 拥有一个引擎和一个共享状态块。Start 之后，一个监督
// goroutine 通过 errgroup 承载三个任务：
//
//	relay    引擎事件 → 状态块事件日志（+ 事件总线）
//	refresh  每 RefreshInterval 整体替换 node / routes / peers
//	engine   Engine.Run，panic 在此恢复
//
// 状态机：
//
//	NotStarted ──Start──▶ Running ──Stop / 引擎正常结束──▶ Stopped
//	                         └────────引擎错误 / panic─────▶ Errored
//
// Launcher 不会重新启动；同一个实例 ID 的重启由注册表创建新的 Launcher。
package launcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/metrics"
	"github.com/EasyTier/EasyLink/internal/core/status"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("core/launcher")

// Launcher 实例执行上下文
type Launcher struct {
	id      string
	factory pkgif.EngineFactory
	cfg     config.LauncherConfig
	clock   clock.Clock
	emitter pkgif.Emitter

	status *status.Block
	state  atomic.Int32

	started       atomic.Bool
	stopRequested atomic.Bool

	mu            sync.Mutex
	cancel        context.CancelFunc
	runningConfig string

	done chan struct{}
}

// New 创建 Launcher
func New(id string, factory pkgif.EngineFactory, opts ...Option) *Launcher {
	l := &Launcher{
		id:      types.NormalizeID(id),
		factory: factory,
		cfg:     config.DefaultLauncherConfig(),
		clock:   clock.New(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.status = status.NewBlock(l.cfg.EventCapacity)
	return l
}

// ID 实例 ID
func (l *Launcher) ID() string { return l.id }

// ════════════════════════════════════════════════════════════════════════════
//                              启动
// ════════════════════════════════════════════════════════════════════════════

// Start 启动执行上下文
//
// provider 在调用方 goroutine 中同步执行一次。配置或工厂失败时错误写入
// 状态块并同步返回，Launcher 保持 NotStarted。成功时返回前状态已是
// Running，且引擎事件订阅已建立。
func (l *Launcher) Start(provider pkgif.ConfigProvider) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	cfg, eng, sub, err := l.prepare(provider)
	if err != nil {
		l.status.SetError(err.Error())
		return err
	}

	dump, err := cfg.Dump()
	if err != nil {
		logger.Warn("导出运行配置失败", "id", l.id, "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	l.cancel = cancel
	l.runningConfig = dump
	l.mu.Unlock()

	l.state.Store(int32(types.StateRunning))
	go l.supervise(ctx, eng, sub)

	logger.Info("实例已启动", "id", l.id, "network", cfg.Network().Name)
	return nil
}

// prepare 同步执行配置、工厂与订阅，panic 转为 ErrStartFailed
func (l *Launcher) prepare(provider pkgif.ConfigProvider) (
	cfg *config.EngineConfig, eng pkgif.Engine, sub pkgif.EventSubscription, err error,
) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("启动期 panic", "id", l.id, "panic", r, "stack", string(debug.Stack()))
			cfg, eng, sub = nil, nil, nil
			err = fmt.Errorf("%w: panic: %v", ErrStartFailed, r)
		}
	}()

	cfg, err = provider()
	if err != nil {
		if !errors.Is(err, config.ErrInvalidConfig) {
			err = fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		return nil, nil, nil, err
	}

	eng, err = l.factory(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	// 先订阅再运行，启动阶段的事件不会丢失
	sub, err = eng.Subscribe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: subscribe: %w", ErrStartFailed, err)
	}
	return cfg, eng, sub, nil
}

// supervise 监督 goroutine，承载 relay / refresh / engine 三个任务
func (l *Launcher) supervise(ctx context.Context, eng pkgif.Engine, sub pkgif.EventSubscription) {
	defer close(l.done)

	g, gctx := errgroup.WithContext(ctx)
	engineDone := make(chan struct{})

	g.Go(func() error {
		defer close(engineDone)
		return l.runEngine(gctx, eng)
	})
	g.Go(func() error {
		return l.refreshLoop(gctx, eng, engineDone)
	})
	g.Go(func() error {
		l.relay(sub, engineDone)
		return nil
	})

	l.finish(g.Wait())
}

// finish 根据退出原因设置终态
func (l *Launcher) finish(err error) {
	stopped := l.stopRequested.Load()

	switch {
	case err == nil, stopped && errors.Is(err, context.Canceled):
		l.state.Store(int32(types.StateStopped))
		metrics.RecordExit(metrics.ExitStopped)
		logger.Info("实例已停止", "id", l.id)
	default:
		l.status.SetError(err.Error())
		if stopped {
			l.state.Store(int32(types.StateStopped))
		} else {
			l.state.Store(int32(types.StateErrored))
		}
		if errors.Is(err, ErrEnginePanic) {
			metrics.RecordExit(metrics.ExitPanic)
		} else {
			metrics.RecordExit(metrics.ExitErrored)
		}
		logger.Warn("实例异常退出", "id", l.id, "err", err)
	}
}

// runEngine 运行引擎，panic 转为 ErrEnginePanic
func (l *Launcher) runEngine(ctx context.Context, eng pkgif.Engine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("引擎 panic", "id", l.id, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrEnginePanic, r)
		}
	}()
	return eng.Run(ctx)
}

// relay 转发引擎事件，引擎退出后排空缓冲区
func (l *Launcher) relay(sub pkgif.EventSubscription, engineDone <-chan struct{}) {
	defer sub.Close()

	out := sub.Out()
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				return
			}
			l.record(ev)
		case <-engineDone:
			for {
				select {
				case ev, ok := <-out:
					if !ok {
						return
					}
					l.record(ev)
				default:
					return
				}
			}
		}
	}
}

// record 追加事件并转发到事件总线
func (l *Launcher) record(ev types.EngineEvent) {
	now := l.clock.Now()
	l.status.AppendEvent(types.Event{Time: now, Payload: ev})
	metrics.RecordEvent(l.id)

	if l.emitter == nil {
		return
	}
	if err := l.emitter.Emit(types.InstanceEvent{ID: l.id, Time: now, Event: ev}); err != nil {
		logger.Debug("转发实例事件失败", "id", l.id, "err", err)
	}
}

// refreshLoop 周期性刷新节点、路由与对等节点信息
func (l *Launcher) refreshLoop(ctx context.Context, eng pkgif.Engine, engineDone <-chan struct{}) error {
	if err := l.refresh(ctx, eng); err != nil {
		return err
	}

	ticker := l.clock.Ticker(l.cfg.RefreshInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-engineDone:
			return nil
		case <-ticker.C:
			if err := l.refresh(ctx, eng); err != nil {
				return err
			}
		}
	}
}

// refresh 读取一次引擎视图
//
// 单项读取失败时保留上一次的值。
func (l *Launcher) refresh(ctx context.Context, eng pkgif.Engine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("引擎查询 panic", "id", l.id, "panic", r)
			err = fmt.Errorf("%w: %v", ErrEnginePanic, r)
		}
	}()

	if node, err := eng.NodeInfo(ctx); err == nil {
		l.status.SetNode(node)
	} else {
		logger.Debug("刷新节点信息失败", "id", l.id, "err", err)
	}
	if routes, err := eng.Routes(ctx); err == nil {
		l.status.SetRoutes(routes)
	} else {
		logger.Debug("刷新路由表失败", "id", l.id, "err", err)
	}
	if peers, err := eng.Peers(ctx); err == nil {
		l.status.SetPeers(peers)
	} else {
		logger.Debug("刷新对等节点失败", "id", l.id, "err", err)
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              停止
// ════════════════════════════════════════════════════════════════════════════

// Stop 请求停止并等待执行上下文退出
//
// 取消信号立即送达引擎。等待上限为 StopTimeout 与 ctx 中较早者；超时后
// 返回 ErrStopTimeout，执行上下文被分离，退出时仍会设置终态。
// 未启动的 Launcher 直接返回 nil。
func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}

	l.stopRequested.Store(true)
	cancel()

	waitCtx, waitCancel := l.clock.WithTimeout(ctx, l.cfg.StopTimeout.Duration())
	defer waitCancel()

	select {
	case <-l.done:
		return nil
	case <-waitCtx.Done():
		metrics.RecordStopTimeout()
		logger.Warn("停止超时，分离执行上下文",
			"id", l.id,
			"timeout", l.cfg.StopTimeout.Duration())
		return fmt.Errorf("%w: %s", ErrStopTimeout, l.id)
	}
}

// Done 执行上下文退出后关闭；从未启动时永不关闭
func (l *Launcher) Done() <-chan struct{} { return l.done }

// ════════════════════════════════════════════════════════════════════════════
//                              访问器（均返回副本）
// ════════════════════════════════════════════════════════════════════════════

// State 当前状态
func (l *Launcher) State() types.LauncherState {
	return types.LauncherState(l.state.Load())
}

// Running 执行上下文是否存活
func (l *Launcher) Running() bool {
	return l.State() == types.StateRunning
}

// Error 记录的错误信息
func (l *Launcher) Error() (string, bool) { return l.status.Error() }

// NodeInfo 最近一次刷新的节点信息
func (l *Launcher) NodeInfo() types.NodeInfo { return l.status.Node() }

// Routes 最近一次刷新的路由表
func (l *Launcher) Routes() []types.Route { return l.status.Routes() }

// Peers 最近一次刷新的对等节点
func (l *Launcher) Peers() []types.PeerInfo { return l.status.Peers() }

// Events 事件日志，从旧到新
func (l *Launcher) Events() []types.Event { return l.status.Events() }

// RunningConfig 启动时的配置（TOML）
func (l *Launcher) RunningConfig() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runningConfig
}

// Snapshot 读取状态块生成快照
//
// 未启动的 Launcher 返回 false。
func (l *Launcher) Snapshot() (types.InstanceSnapshot, bool) {
	state := l.State()
	if state == types.StateNotStarted {
		return types.InstanceSnapshot{}, false
	}

	routes := l.status.Routes()
	peers := l.status.Peers()
	if routes == nil {
		routes = []types.Route{}
	}
	if peers == nil {
		peers = []types.PeerInfo{}
	}

	snap := types.InstanceSnapshot{
		ID:             l.id,
		Node:           l.status.Node(),
		Events:         l.status.Events(),
		Routes:         routes,
		Peers:          peers,
		PeerRoutePairs: types.ListPeerRoutePairs(peers, routes),
		Running:        state == types.StateRunning,
		State:          state,
	}
	if msg, ok := l.status.Error(); ok {
		snap.Error = &msg
	}
	return snap, true
}
