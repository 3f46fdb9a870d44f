package interfaces

// 进程内事件总线契约。launcher 发布 types.InstanceEvent，
// Manager 发布 types.EvtInstanceStarted / types.EvtInstanceStopped。

// EventBus 定义事件总线接口
//
// 事件类型以指针形式传入（new(types.InstanceEvent)），按元素类型分发。
type EventBus interface {
	// Subscribe 订阅指定类型的事件
	Subscribe(eventType any, opts ...SubscriptionOpt) (Subscription, error)

	// Emitter 获取指定事件类型的发射器
	Emitter(eventType any, opts ...EmitterOpt) (Emitter, error)

	// Close 关闭总线，关闭所有订阅的通道
	Close() error
}

// Subscription 定义事件订阅接口
type Subscription interface {
	// Out 返回接收事件的通道
	Out() <-chan any

	// Dropped 因缓冲区满被丢弃的事件数
	Dropped() int64

	// Close 取消订阅
	Close() error
}

// Emitter 定义事件发射器接口
type Emitter interface {
	// Emit 发射事件，事件类型必须与发射器类型一致
	//
	// Emit 从不阻塞：订阅者缓冲区满时丢弃该订阅者的这一份。
	Emit(event any) error

	// Close 关闭发射器
	Close() error
}

// SubscriptionOpt 订阅选项函数类型
type SubscriptionOpt func(*SubscriptionSettings)

// EmitterOpt 发射器选项函数类型
type EmitterOpt func(*EmitterSettings)

// SubscriptionSettings 订阅设置（导出以供实现使用）
type SubscriptionSettings struct {
	Buffer int
	// Name 订阅者名称，用于慢消费者日志与指标
	Name string
}

// EmitterSettings 发射器设置（导出以供实现使用）
type EmitterSettings struct {
	Stateful bool
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = size
	}
}

// Name 设置订阅者名称
func Name(name string) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Name = name
	}
}

// Stateful 设置发射器为有状态模式
//
// 新订阅者会立即收到最后一次发射的事件。
func Stateful() EmitterOpt {
	return func(s *EmitterSettings) {
		s.Stateful = true
	}
}
