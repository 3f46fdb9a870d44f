// Package loopback 提供实现 Engine 契约的参考引擎
//
// loopback 不建立隧道、不转发数据包，只做实例管理层可观察的部分：
//
//   - 按配置绑定 TCP/UDP 监听地址，绑定失败时 Run 返回错误
//   - 接受入站 TCP 连接并记为对等节点
//   - 周期性拨号 TCP 对等节点，产生 connecting/connected/connect_error 事件
//   - 静态 IPv4 时发出 tun_device_ready
//   - 启动时做一次 STUN 探测，填充公网地址与 NAT 类型
//   - 配置了 VPN 门户时生成 WireGuard 客户端配置
//
// 守护进程在没有真实数据面时用它驱动整个生命周期。
package loopback
