// Package types 定义 EasyLink 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 EasyLink 内部包。
// 所有类型都是纯值类型，用于在引擎、实例管理器与展示层之间传递数据。
//
// # 文件组织
//
//   - ids.go      - 实例 ID 规范化
//   - enums.go    - NATType, LauncherState, EventKind
//   - events.go   - Event, EngineEvent, InstanceEvent, 生命周期事件
//   - node.go     - NodeInfo, IPList, StunInfo
//   - route.go    - Route, PeerInfo, PeerConnInfo, PeerRoutePair
//   - snapshot.go - InstanceSnapshot（推送给展示层的线格式）
//
// # 复制语义
//
// 所有包含切片的类型都提供 Clone()，状态块的读取方法通过 Clone
// 返回副本，调用方持有的值不会再被后台任务修改。
package types
