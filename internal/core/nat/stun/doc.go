// Package stun 实现 STUN 客户端
//
// stun 使用 STUN 协议（RFC 5389）获取本机的公网映射地址，
// 并根据映射结果给出粗粒度的 NAT 类型：
//
//   - 映射地址是本机地址         → NATTypeOpenInternet
//   - 两个服务器看到的映射不同   → NATTypeSymmetric
//   - 映射端口与本地端口相同     → NATTypeNoPAT
//   - 其余                       → NATTypeUnknown
//
// 区分各类锥形 NAT 需要 CHANGE-REQUEST，不在此处实现。
//
// # 使用示例
//
//	client := stun.NewClient(cfg.STUNServers())
//	res, err := client.Probe(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Mapped, res.NATType)
package stun
