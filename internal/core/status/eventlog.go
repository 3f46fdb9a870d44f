package status

import (
	"github.com/EasyTier/EasyLink/pkg/types"
)

// DefaultCapacity 事件日志默认容量
const DefaultCapacity = 100

// EventLog 定长事件环
//
// 追加时若已满则淘汰最旧的一条。EventLog 本身不加锁，由 Block 保护。
type EventLog struct {
	buf   []types.Event
	head  int // 最旧元素的下标
	count int
}

// NewEventLog 创建指定容量的事件日志，capacity <= 0 时使用 DefaultCapacity
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventLog{buf: make([]types.Event, capacity)}
}

// Append 追加事件
func (l *EventLog) Append(e types.Event) {
	capacity := len(l.buf)
	if l.count < capacity {
		l.buf[(l.head+l.count)%capacity] = e
		l.count++
		return
	}
	l.buf[l.head] = e
	l.head = (l.head + 1) % capacity
}

// Snapshot 按从旧到新的顺序返回副本
func (l *EventLog) Snapshot() []types.Event {
	out := make([]types.Event, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Len 当前事件数
func (l *EventLog) Len() int { return l.count }

// Cap 容量
func (l *EventLog) Cap() int { return len(l.buf) }
