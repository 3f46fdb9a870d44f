package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/EasyTier/EasyLink/internal/core/metrics"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("core/sink")

// DefaultBuffer Async 默认队列长度
const DefaultBuffer = 16

// Async 异步通知渠道
//
// Publish 只做一次非阻塞入队；队列满时丢弃本批次并计数。
// 下游 Publish 中的 panic 被恢复并记录，派发 goroutine 继续运行。
type Async struct {
	name  string
	inner pkgif.Sink
	queue chan []types.InstanceSnapshot

	dropped atomic.Int64
	warn    rate.Sometimes

	closeOnce sync.Once
	mu        sync.RWMutex // 保护 closed 与 queue 的发送
	closed    bool
	done      chan struct{}
}

var _ pkgif.Sink = (*Async)(nil)

// NewAsync 创建异步渠道并启动派发 goroutine
//
// name 用于日志与 easylink_sink_dropped_total 的 sink 标签。
func NewAsync(name string, inner pkgif.Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if inner == nil {
		inner = Discard
	}
	a := &Async{
		name:  name,
		inner: inner,
		queue: make(chan []types.InstanceSnapshot, buffer),
		warn:  rate.Sometimes{First: 1, Interval: 10 * time.Second},
		done:  make(chan struct{}),
	}
	go a.dispatch()
	return a
}

// Publish 非阻塞入队
func (a *Async) Publish(batch []types.InstanceSnapshot) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- batch:
	default:
		dropped := a.dropped.Add(1)
		metrics.RecordSinkDrop(a.name)
		a.warn.Do(func() {
			logger.Warn("通知渠道队列已满，丢弃批次", "sink", a.name, "dropped", dropped)
		})
	}
}

// Dropped 已丢弃的批次数
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close 停止接收新批次，等待队列中剩余批次投递完毕
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
	return nil
}

func (a *Async) dispatch() {
	defer close(a.done)
	for batch := range a.queue {
		a.deliver(batch)
	}
}

func (a *Async) deliver(batch []types.InstanceSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("通知渠道 panic", "sink", a.name, "panic", r)
		}
	}()
	a.inner.Publish(batch)
}
