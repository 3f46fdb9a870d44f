package config

import (
	"fmt"
	"net"
)

// APIConfig HTTP 控制接口配置
type APIConfig struct {
	// ListenAddr 监听地址，空串表示不启动 HTTP 接口
	// 默认值: 127.0.0.1:15888
	ListenAddr string `json:"listen_addr"`

	// CORSOrigins 允许的跨域来源（展示层开发服务器等）
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// EnableMetrics 是否暴露 /metrics
	// 默认值: true
	EnableMetrics bool `json:"enable_metrics"`

	// ClientBuffer 每个 websocket 客户端的发送队列长度
	// 默认值: 32
	ClientBuffer int `json:"client_buffer"`
}

// DefaultAPIConfig 返回默认的 API 配置
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		ListenAddr:    "127.0.0.1:15888",
		EnableMetrics: true,
		ClientBuffer:  32,
	}
}

// Validate 验证 API 配置
func (c *APIConfig) Validate() error {
	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("invalid listen_addr %q: %w", c.ListenAddr, err)
		}
	}
	if c.ClientBuffer <= 0 {
		return fmt.Errorf("client_buffer must be positive")
	}
	return nil
}
