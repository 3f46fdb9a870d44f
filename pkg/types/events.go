package types

import "time"

// ============================================================================
//                              引擎事件
// ============================================================================

// EngineEvent 引擎发出的一次生命周期事件
type EngineEvent struct {
	Kind   EventKind `json:"kind"`
	Peer   string    `json:"peer,omitempty"`
	Addr   string    `json:"addr,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Event 带时间戳的事件（EventLog 的元素）
type Event struct {
	Time    time.Time   `json:"time"`
	Payload EngineEvent `json:"event"`
}

// ============================================================================
//                              实例事件（事件总线）
// ============================================================================

// InstanceEvent 从某个实例转发给外部通知渠道的事件
type InstanceEvent struct {
	ID    string      `json:"id"`
	Time  time.Time   `json:"time"`
	Event EngineEvent `json:"event"`
}

// EvtInstanceStarted 实例启动成功
type EvtInstanceStarted struct {
	ID   string
	Time time.Time
}

// EvtInstanceStopped 实例已从注册表移除并完成拆除
type EvtInstanceStopped struct {
	ID   string
	Time time.Time
	// Detached 停止超时，后台上下文被分离
	Detached bool
}
