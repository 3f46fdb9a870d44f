package eventbus

import pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"

// BufSize 设置订阅缓冲区大小，与 pkg/interfaces.BufSize 等效
func BufSize(size int) pkgif.SubscriptionOpt {
	return pkgif.BufSize(size)
}

// Name 设置订阅者名称，与 pkg/interfaces.Name 等效
func Name(name string) pkgif.SubscriptionOpt {
	return pkgif.Name(name)
}

// Stateful 设置发射器为有状态模式，与 pkg/interfaces.Stateful 等效
func Stateful() pkgif.EmitterOpt {
	return pkgif.Stateful()
}
