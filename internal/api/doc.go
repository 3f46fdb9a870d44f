// Package api 提供 EasyLink 守护进程的 HTTP 控制接口
//
// 路由：
//
//	POST   /api/v1/instances             启动实例（body: config.NetworkConfig）
//	GET    /api/v1/instances             所有实例快照
//	GET    /api/v1/instances/:id         单个实例快照
//	GET    /api/v1/instances/:id/config  实例运行配置（TOML）
//	DELETE /api/v1/instances/:id         停止实例
//	POST   /api/v1/config/parse          校验配置并返回 TOML
//	GET    /api/v1/history               最近停止的实例
//	GET    /api/v1/ws                    websocket 通知
//	GET    /health
//	GET    /metrics
//
// websocket 消息格式为 {"type": ..., "payload": ...}，type 取
// network_instance_info（快照批次）或 event（实例事件）。
package api
