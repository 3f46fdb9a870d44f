// Package broadcaster 周期性地把所有实例快照推送给通知渠道
//
// 状态机：
//
//	Idle ──Arm──▶ Armed ──连续 IdleThreshold 次空采样──▶ Idle
//
// Armed 时每个 Interval 采样一次注册表，只投递非空批次。挂起后不再
// 采样，直到下一次成功启动实例时调用 Arm。
package broadcaster

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/metrics"
	"github.com/EasyTier/EasyLink/internal/core/sink"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("core/broadcaster")

// State 广播器状态
type State int32

const (
	// StateIdle 未采样
	StateIdle State = iota
	// StateArmed 周期采样中
	StateArmed
)

// String 返回状态的字符串表示
func (s State) String() string {
	if s == StateArmed {
		return "armed"
	}
	return "idle"
}

// Source 快照来源（注册表）
type Source interface {
	SnapshotAll() map[string]types.InstanceSnapshot
}

// Option 广播器选项
type Option func(*Broadcaster)

// WithConfig 设置采样参数
func WithConfig(cfg config.BroadcasterConfig) Option {
	return func(b *Broadcaster) { b.cfg = cfg }
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(b *Broadcaster) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// Broadcaster 状态广播器
type Broadcaster struct {
	source Source
	sink   *sink.Async
	cfg    config.BroadcasterConfig
	clock  clock.Clock

	state atomic.Int32

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New 创建广播器，初始为 Idle
//
// 下游渠道被包装在 sink.Async 中。
func New(source Source, s pkgif.Sink, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		source: source,
		cfg:    config.DefaultBroadcasterConfig(),
		clock:  clock.New(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sink = sink.NewAsync("broadcaster", s, b.cfg.SinkBuffer)
	return b
}

// State 当前状态
func (b *Broadcaster) State() State {
	return State(b.state.Load())
}

// Arm 从 Idle 切换到 Armed 并开始采样
//
// 幂等：已是 Armed 时返回 false。关闭后返回 false。
func (b *Broadcaster) Arm() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if !b.state.CompareAndSwap(int32(StateIdle), int32(StateArmed)) {
		return false
	}

	// ticker 在 Arm 返回前创建，第一次采样不晚于一个周期
	ticker := b.clock.Ticker(b.cfg.Interval.Duration())
	b.wg.Add(1)
	go b.loop(ticker)

	logger.Debug("广播器已激活")
	return true
}

// Close 停止采样并等待剩余批次投递完毕
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.stopCh)
	b.mu.Unlock()

	b.wg.Wait()
	b.state.Store(int32(StateIdle))
	return b.sink.Close()
}

// Dropped 下游队列满时丢弃的批次数
func (b *Broadcaster) Dropped() int64 {
	return b.sink.Dropped()
}

func (b *Broadcaster) loop(ticker *clock.Ticker) {
	defer b.wg.Done()
	defer ticker.Stop()

	empty := 0
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
		}

		if b.tick() {
			empty = 0
			continue
		}

		empty++
		if empty < b.cfg.IdleThreshold {
			continue
		}

		b.state.CompareAndSwap(int32(StateArmed), int32(StateIdle))
		metrics.RecordSuspend()
		logger.Debug("连续空采样，广播器挂起", "ticks", empty)

		// 挂起前并发的 Arm 看到的是 Armed 而直接返回，这里补一次检查
		if len(b.source.SnapshotAll()) > 0 {
			b.Arm()
		}
		return
	}
}

// tick 采样一次，非空时投递并返回 true
func (b *Broadcaster) tick() bool {
	snaps := b.source.SnapshotAll()
	if len(snaps) == 0 {
		return false
	}

	batch := make([]types.InstanceSnapshot, 0, len(snaps))
	for _, s := range snaps {
		batch = append(batch, s)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })

	b.sink.Publish(batch)
	metrics.RecordBroadcast()
	return true
}
