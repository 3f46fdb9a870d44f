// Package status 实现实例的共享状态块
//
// 状态块由 Launcher 的执行上下文写入，由注册表快照与展示层读取。
// 每个字段由独立的读写锁保护，读取一律返回副本：
//
//	events  ← 事件转发任务追加
//	node    ← 刷新任务整体替换
//	routes  ← 刷新任务整体替换
//	peers   ← 刷新任务整体替换
//	err     ← 引擎任务退出时写入
//
// 字段之间没有共同的锁，同一次快照中的 node 与 events 可能来自
// 相邻的两个刷新周期。展示层每秒重新读取，这一偏差可以接受。
package status
