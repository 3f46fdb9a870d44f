package metrics

import "go.uber.org/fx"

// Module 是 metrics 的 Fx 模块
//
// 向默认 Registerer 注册所有 collector，重复注册是安全的。
var Module = fx.Module("metrics",
	fx.Invoke(Register),
)
