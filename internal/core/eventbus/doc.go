// Package eventbus 实现进程内事件总线
//
// 提供类型安全的事件发布/订阅机制，支持：
//   - 多订阅者
//   - 缓冲区配置
//   - 发射器引用计数
//   - 有状态模式（Stateful）
//
// 发射从不阻塞：订阅者缓冲区满时丢弃该订阅者的这一份，并计入
// Subscription.Dropped 与 easylink_eventbus_dropped_total。
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe(new(types.InstanceEvent), eventbus.BufSize(64))
//	defer sub.Close()
//
//	go func() {
//	    for evt := range sub.Out() {
//	        e := evt.(types.InstanceEvent)
//	        // 处理事件
//	    }
//	}()
//
//	em, _ := bus.Emitter(new(types.InstanceEvent))
//	defer em.Close()
//	em.Emit(types.InstanceEvent{...})
//
// # 总线上的事件
//
//   - types.InstanceEvent      Launcher 转发的引擎事件
//   - types.EvtInstanceStarted Manager 启动实例成功
//   - types.EvtInstanceStopped Manager 停止实例完成
//
// # 并发安全
//
//   - 类型节点映射：RWMutex 保护
//   - 单个节点的订阅者列表：节点锁保护
//   - 发射器引用计数：atomic.Int32
//   - 通道关闭：closeOnce 防止重复
package eventbus
