// Package enginetest 提供用于测试实例生命周期的合成引擎
//
// Engine 按选项决定 Run 的行为：运行到取消、立即失败、panic 或
// 忽略取消一直阻塞。事件可以在 Run 开始时按脚本发出，也可以在
// 测试中随时通过 Emit 注入。
package enginetest

import (
	"context"
	"sync"

	"github.com/EasyTier/EasyLink/config"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/types"
)

// SubscriptionBuffer 订阅通道缓冲区大小
const SubscriptionBuffer = 256

// Option 引擎选项
type Option func(*Engine)

// Script Run 开始时按顺序发出的事件
func Script(events ...types.EngineEvent) Option {
	return func(e *Engine) { e.script = append(e.script, events...) }
}

// FailWith Run 发出脚本事件后立即返回 err
func FailWith(err error) Option {
	return func(e *Engine) { e.runErr = err }
}

// ExitCleanly Run 发出脚本事件后立即返回 nil
func ExitCleanly() Option {
	return func(e *Engine) { e.exitCleanly = true }
}

// PanicWith Run 发出脚本事件后 panic
func PanicWith(v any) Option {
	return func(e *Engine) { e.panicValue = v }
}

// Stall Run 忽略取消，直到 Release 被调用
func Stall() Option {
	return func(e *Engine) { e.stall = true }
}

// WithNode 设置 NodeInfo 的返回值
func WithNode(n types.NodeInfo) Option {
	return func(e *Engine) { e.node = n }
}

// WithTables 设置 Routes 与 Peers 的返回值
func WithTables(routes []types.Route, peers []types.PeerInfo) Option {
	return func(e *Engine) {
		e.routes = routes
		e.peers = peers
	}
}

// Engine 合成引擎
type Engine struct {
	script      []types.EngineEvent
	runErr      error
	exitCleanly bool
	panicValue  any
	stall       bool

	mu     sync.Mutex
	subs   []*subscription
	closed bool
	node   types.NodeInfo
	routes []types.Route
	peers  []types.PeerInfo
	cfg    *config.EngineConfig

	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
	relOnce   sync.Once
}

var _ pkgif.Engine = (*Engine)(nil)

// New 创建合成引擎
func New(opts ...Option) *Engine {
	e := &Engine{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run 实现 pkgif.Engine
func (e *Engine) Run(ctx context.Context) error {
	defer e.closeSubs()
	e.startOnce.Do(func() { close(e.started) })

	for _, ev := range e.script {
		e.Emit(ev)
	}

	switch {
	case e.panicValue != nil:
		panic(e.panicValue)
	case e.runErr != nil:
		return e.runErr
	case e.exitCleanly:
		return nil
	case e.stall:
		<-e.release
		return nil
	}

	<-ctx.Done()
	return ctx.Err()
}

// Subscribe 实现 pkgif.Engine
func (e *Engine) Subscribe() (pkgif.EventSubscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &subscription{engine: e, out: make(chan types.EngineEvent, SubscriptionBuffer)}
	if e.closed {
		close(sub.out)
		return sub, nil
	}
	e.subs = append(e.subs, sub)
	return sub, nil
}

// NodeInfo 实现 pkgif.Engine
func (e *Engine) NodeInfo(context.Context) (types.NodeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.node.Clone(), nil
}

// Routes 实现 pkgif.Engine
func (e *Engine) Routes(context.Context) ([]types.Route, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.CloneRoutes(e.routes), nil
}

// Peers 实现 pkgif.Engine
func (e *Engine) Peers(context.Context) ([]types.PeerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.ClonePeers(e.peers), nil
}

// Emit 向所有订阅者发出事件，Run 返回后为空操作
func (e *Engine) Emit(ev types.EngineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, s := range e.subs {
		s.out <- ev
	}
}

// SetNode 替换 NodeInfo 的返回值
func (e *Engine) SetNode(n types.NodeInfo) {
	e.mu.Lock()
	e.node = n
	e.mu.Unlock()
}

// Started Run 开始后关闭
func (e *Engine) Started() <-chan struct{} { return e.started }

// Release 解除 Stall 的阻塞
func (e *Engine) Release() {
	e.relOnce.Do(func() { close(e.release) })
}

// Config 工厂收到的配置
func (e *Engine) Config() *config.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) closeSubs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, s := range e.subs {
		close(s.out)
	}
	e.subs = nil
}

func (e *Engine) removeSub(sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s == sub {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			close(s.out)
			return
		}
	}
}

type subscription struct {
	engine *Engine
	out    chan types.EngineEvent
}

func (s *subscription) Out() <-chan types.EngineEvent { return s.out }

func (s *subscription) Close() error {
	s.engine.removeSub(s)
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              工厂
// ════════════════════════════════════════════════════════════════════════════

// Factory 每次调用都返回同一个引擎
func Factory(e *Engine) pkgif.EngineFactory {
	return func(cfg *config.EngineConfig) (pkgif.Engine, error) {
		e.mu.Lock()
		e.cfg = cfg
		e.mu.Unlock()
		return e, nil
	}
}

// FactoryFunc 每次调用创建新引擎，created 接收每个新引擎（可为 nil）
func FactoryFunc(created chan<- *Engine, opts ...Option) pkgif.EngineFactory {
	return func(cfg *config.EngineConfig) (pkgif.Engine, error) {
		e := New(opts...)
		e.cfg = cfg
		if created != nil {
			created <- e
		}
		return e, nil
	}
}

// FailingFactory 总是返回 err
func FailingFactory(err error) pkgif.EngineFactory {
	return func(*config.EngineConfig) (pkgif.Engine, error) {
		return nil, err
	}
}

// NetworkConfig 返回一份能通过校验的网络配置
func NetworkConfig(id string) *config.NetworkConfig {
	name := "test"
	return &config.NetworkConfig{
		ID:          id,
		NetworkName: &name,
		PeerURLs:    []string{"tcp://127.0.0.1:11010"},
	}
}

// Provider 返回基于 NetworkConfig(id) 的配置提供者
func Provider(id string) pkgif.ConfigProvider {
	return func() (*config.EngineConfig, error) {
		return NetworkConfig(id).Build()
	}
}
