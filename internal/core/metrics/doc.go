// Package metrics 提供实例生命周期相关的 Prometheus 指标
//
// 所有采集器注册到默认注册表，首次记录时惰性注册，Register 可重复调用。
//
// # 指标
//
//	easylink_registry_instances              注册表中的实例数
//	easylink_launcher_events_total{instance} 每个实例中继的事件数
//	easylink_launcher_exits_total{result}    执行上下文退出（stopped/errored/panic）
//	easylink_launcher_stop_timeouts_total    停止等待超时次数
//	easylink_broadcaster_emits_total         发出的快照批次
//	easylink_broadcaster_suspends_total      空闲挂起次数
//	easylink_sink_dropped_total{sink}        通知渠道丢弃
//	easylink_eventbus_dropped_total{type}    事件总线丢弃
//	easylink_http_requests_total             控制接口请求
//	easylink_ws_clients                      websocket 客户端数
//
// 进程级指标通过 Handler() 暴露（/metrics）。
package metrics
