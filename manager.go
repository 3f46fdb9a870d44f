package easylink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/broadcaster"
	"github.com/EasyTier/EasyLink/internal/core/registry"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("easylink")

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// eventForwardBuffer 事件转发订阅缓冲区
	eventForwardBuffer = 256
)

// ════════════════════════════════════════════════════════════════════════════
//                              Manager
// ════════════════════════════════════════════════════════════════════════════

// Manager 网络实例管理器，展示层的唯一入口
//
// 组合注册表、状态广播器与事件总线。生命周期：
//
//	New → Start → StartInstance / StopInstance / CollectInfos ... → Stop
//
// Stop 之后 Manager 不可再次启动。
type Manager struct {
	cfg        *config.Config
	clock      clock.Clock
	app        *fx.App
	eventSinks []pkgif.EventSink

	// 由 fx.Populate 注入
	bus         pkgif.EventBus
	registry    *registry.Registry
	broadcaster *broadcaster.Broadcaster

	startedEm pkgif.Emitter
	stoppedEm pkgif.Emitter
	history   *lru.Cache[string, types.InstanceSnapshot]

	mu          sync.RWMutex
	started     bool
	closed      bool
	forwardDone chan struct{}
}

// New 创建 Manager
func New(opts ...Option) (*Manager, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if err := o.finalize(); err != nil {
		return nil, err
	}

	history, err := lru.New[string, types.InstanceSnapshot](o.config.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("create history: %w", err)
	}

	m := &Manager{
		cfg:        o.config,
		clock:      o.clock,
		eventSinks: o.eventSinks,
		history:    history,
	}
	if m.clock == nil {
		m.clock = clock.New()
	}

	m.app = buildFxApp(o, m)
	if err := m.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}

	// 有状态：后来的订阅者立即收到最近一次启动
	if m.startedEm, err = m.bus.Emitter(new(types.EvtInstanceStarted), pkgif.Stateful()); err != nil {
		return nil, err
	}
	if m.stoppedEm, err = m.bus.Emitter(new(types.EvtInstanceStopped)); err != nil {
		return nil, err
	}
	return m, nil
}

// Config 返回守护进程配置
func (m *Manager) Config() *config.Config { return m.cfg }

// Start 启动 Manager 并拉起 AutoStart 中的实例
//
// 单个 AutoStart 实例失败只记录日志，不影响其他实例与 Manager 本身。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := m.app.Start(startCtx); err != nil {
		m.mu.Unlock()
		logger.Error("Manager 启动失败", "err", err)
		return fmt.Errorf("start fx app: %w", err)
	}

	if len(m.eventSinks) > 0 {
		sub, err := m.bus.Subscribe(new(types.InstanceEvent),
			pkgif.BufSize(eventForwardBuffer), pkgif.Name("manager"))
		if err != nil {
			m.mu.Unlock()
			return multierr.Append(err, m.app.Stop(ctx))
		}
		m.forwardDone = make(chan struct{})
		go m.forwardEvents(sub, m.forwardDone)
	}

	m.started = true
	m.mu.Unlock()
	logger.Info("Manager 已启动", "auto_start", len(m.cfg.AutoStart))

	for i := range m.cfg.AutoStart {
		nc := m.cfg.AutoStart[i]
		if err := m.StartInstance(&nc); err != nil {
			logger.Warn("自动启动实例失败", "id", nc.ID, "err", err)
		}
	}
	return nil
}

// Stop 停止 Manager，拆除所有实例
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.closed = true
	wasStarted := m.started
	m.started = false
	m.mu.Unlock()

	if !wasStarted {
		return multierr.Combine(m.broadcaster.Close(), m.bus.Close())
	}

	logger.Info("正在停止 Manager")

	// OnStop 依次关闭广播器、注册表与事件总线
	err := m.app.Stop(ctx)
	if m.forwardDone != nil {
		<-m.forwardDone
	}
	err = multierr.Combine(err, m.startedEm.Close(), m.stoppedEm.Close())
	if err != nil {
		logger.Warn("停止 Manager 时出现错误", "err", err)
		return fmt.Errorf("stop manager: %w", err)
	}
	logger.Info("Manager 已停止")
	return nil
}

// forwardEvents 把总线上的实例事件转发给事件通知渠道
func (m *Manager) forwardEvents(sub pkgif.Subscription, done chan<- struct{}) {
	defer close(done)
	for ev := range sub.Out() {
		ie, ok := ev.(types.InstanceEvent)
		if !ok {
			continue
		}
		for _, s := range m.eventSinks {
			s.PublishEvent(ie)
		}
	}
}

func (m *Manager) checkRunning() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	if !m.started {
		return ErrNotStarted
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              实例操作
// ════════════════════════════════════════════════════════════════════════════

// StartInstance 校验配置并启动实例
//
// 成功后唤醒状态广播器并发布 EvtInstanceStarted。
func (m *Manager) StartInstance(nc *config.NetworkConfig) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if nc == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	cfg := *nc
	id := types.NormalizeID(cfg.ID)
	err := m.registry.Start(id, func() (*config.EngineConfig, error) {
		return cfg.Build()
	})
	if err != nil {
		if errors.Is(err, registry.ErrClosed) {
			return ErrManagerClosed
		}
		return err
	}

	m.history.Remove(id)
	m.broadcaster.Arm()
	if err := m.startedEm.Emit(types.EvtInstanceStarted{ID: id, Time: m.clock.Now()}); err != nil {
		logger.Debug("发布实例启动事件失败", "id", id, "err", err)
	}
	return nil
}

// StopInstance 停止并移除实例
//
// 最终快照进入历史记录。停止超时返回 ErrStopTimeout，实例同样已被移除。
func (m *Manager) StopInstance(ctx context.Context, id string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}

	id = types.NormalizeID(id)
	l, found := m.registry.Get(id)

	err := m.registry.Stop(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return err
	}
	detached := errors.Is(err, ErrStopTimeout)

	if found {
		if snap, ok := l.Snapshot(); ok {
			// 分离的执行上下文可能仍在运行，但实例已移除
			if detached {
				snap.Running = false
				snap.State = types.StateStopped
			}
			m.history.Add(id, snap)
		}
	}
	if emitErr := m.stoppedEm.Emit(types.EvtInstanceStopped{
		ID:       id,
		Time:     m.clock.Now(),
		Detached: detached,
	}); emitErr != nil {
		logger.Debug("发布实例停止事件失败", "id", id, "err", emitErr)
	}
	return err
}

// CollectInfos 返回所有已启动实例的快照
func (m *Manager) CollectInfos() map[string]types.InstanceSnapshot {
	return m.registry.SnapshotAll()
}

// Instance 返回单个实例的快照
func (m *Manager) Instance(id string) (types.InstanceSnapshot, bool) {
	l, ok := m.registry.Get(id)
	if !ok {
		return types.InstanceSnapshot{}, false
	}
	return l.Snapshot()
}

// IDs 返回所有实例 ID（已排序）
func (m *Manager) IDs() []string { return m.registry.IDs() }

// RunningConfig 返回实例启动时的 TOML 配置
func (m *Manager) RunningConfig(id string) (string, bool) {
	l, ok := m.registry.Get(id)
	if !ok {
		return "", false
	}
	return l.RunningConfig(), true
}

// ParseConfig 校验配置并返回 TOML 文本，不启动实例
func (m *Manager) ParseConfig(nc *config.NetworkConfig) (string, error) {
	if nc == nil {
		return "", fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	cfg, err := nc.Build()
	if err != nil {
		return "", err
	}
	return cfg.Dump()
}

// History 返回最近停止的实例的最终快照，从旧到新
func (m *Manager) History() []types.InstanceSnapshot {
	return m.history.Values()
}

// Events 订阅实例事件
func (m *Manager) Events(opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	return m.bus.Subscribe(new(types.InstanceEvent), opts...)
}

// Lifecycle 订阅实例启动/停止事件
//
// 订阅的通道元素为 types.EvtInstanceStarted 或 types.EvtInstanceStopped。
// started 订阅建立时立即收到最近一次启动事件（若有）。
func (m *Manager) Lifecycle(opts ...pkgif.SubscriptionOpt) (started, stopped pkgif.Subscription, err error) {
	started, err = m.bus.Subscribe(new(types.EvtInstanceStarted), opts...)
	if err != nil {
		return nil, nil, err
	}
	stopped, err = m.bus.Subscribe(new(types.EvtInstanceStopped), opts...)
	if err != nil {
		_ = started.Close()
		return nil, nil, err
	}
	return started, stopped, nil
}
