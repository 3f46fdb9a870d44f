package interfaces

// 本文件定义通知渠道接口。

import "github.com/EasyTier/EasyLink/pkg/types"

// Sink 状态快照的通知渠道
//
// Publish 必须是发后即忘的：不得阻塞调用方，投递失败只能丢弃。
// 广播器保证只投递非空批次。
type Sink interface {
	Publish(batch []types.InstanceSnapshot)
}

// EventSink 实例事件的通知渠道
//
// 与 Sink 一样不得阻塞调用方。
type EventSink interface {
	PublishEvent(evt types.InstanceEvent)
}
