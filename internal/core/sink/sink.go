// Package sink 提供状态快照的通知渠道实现
//
//   - Async   有界队列 + 独立派发 goroutine，队列满时丢弃
//   - Func    函数适配器
//   - Multi   扇出到多个渠道
//   - Discard 丢弃一切
//
// 广播器总是把下游渠道包装在 Async 中，慢渠道不会拖慢采样节奏。
package sink

import (
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/types"
)

// Func 函数适配器
type Func func(batch []types.InstanceSnapshot)

// Publish 实现 pkgif.Sink
func (f Func) Publish(batch []types.InstanceSnapshot) { f(batch) }

// multi 扇出渠道
type multi []pkgif.Sink

// Multi 依次投递给每个渠道
//
// 每个渠道收到的是同一个批次，渠道不得修改批次内容。
func Multi(sinks ...pkgif.Sink) pkgif.Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Publish(batch []types.InstanceSnapshot) {
	for _, s := range m {
		s.Publish(batch)
	}
}

type discard struct{}

func (discard) Publish([]types.InstanceSnapshot) {}

// Discard 丢弃所有批次
var Discard pkgif.Sink = discard{}
