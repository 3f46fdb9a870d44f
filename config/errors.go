package config

import "errors"

// ErrInvalidConfig 网络配置无效
//
// NetworkConfig.Build 返回的所有错误都包装此错误。
var ErrInvalidConfig = errors.New("invalid network config")
