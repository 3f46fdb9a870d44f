package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/EasyTier/EasyLink/internal/core/metrics"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	typ       reflect.Type
	name      string
	out       chan any
	dropped   atomic.Int64
	closeOnce sync.Once
}

// Out 返回事件通道
func (s *Subscription) Out() <-chan any {
	return s.out
}

// Dropped 因缓冲区满被丢弃的事件数
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close 取消订阅
//
// 并发安全，可多次调用。先从总线移除订阅再关闭通道，
// 因此关闭之后不会再有发射写入该通道。
func (s *Subscription) Close() error {
	s.bus.removeSub(s)
	s.closeChan()
	return nil
}

func (s *Subscription) closeChan() {
	s.closeOnce.Do(func() {
		close(s.out)
	})
}

// drop 记录一次丢弃，调用方持有节点锁
func (s *Subscription) drop() {
	dropped := s.dropped.Add(1)
	metrics.RecordBusDrop(s.typ.String())

	// 每丢弃 100 个事件警告一次，避免日志泛滥
	if dropped%100 == 1 {
		logger.Warn("慢消费者检测",
			"subscriber", s.name,
			"dropped", dropped,
			"type", s.typ,
			"reason", "subscriber buffer full")
	}
}

// ============================================================================
// Emitter 实现
// ============================================================================

// Emitter 事件发射器
type Emitter struct {
	bus       *Bus
	node      *node
	typ       reflect.Type
	closed    atomic.Bool
	closeOnce sync.Once
}

// Emit 发射事件
//
// 事件的动态类型必须与发射器类型一致。
func (e *Emitter) Emit(event any) error {
	if e.closed.Load() {
		return ErrEmitterClosed
	}
	if event == nil || reflect.TypeOf(event) != e.typ {
		return ErrInvalidEventType
	}

	e.node.emit(event)
	return nil
}

// Close 关闭发射器
//
// 引用计数归零且没有订阅者时删除类型节点。
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.node.nEmitters.Add(-1) == 0 {
			e.bus.tryDropNode(e.typ)
		}
	})
	return nil
}
