// Package interfaces 定义 EasyLink 的公共接口
//
// 本包只包含接口与选项类型，不包含实现：
//   - engine.go     - 网络引擎契约（Engine / EngineFactory / EventSubscription）
//   - sink.go       - 通知渠道（Sink）
//   - eventbus.go   - 进程内事件总线（EventBus / Subscription / Emitter）
//
// 实现位于 internal/ 下，一个接口文件对应一个实现目录：
//
//	Engine   → internal/engine/loopback
//	Sink     → internal/core/sink, internal/api (websocket hub)
//	EventBus → internal/core/eventbus
package interfaces
