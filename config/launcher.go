package config

import (
	"errors"
	"time"
)

// LauncherConfig 实例执行上下文配置
type LauncherConfig struct {
	// RefreshInterval 节点/路由/对等节点信息刷新周期
	// 默认值: 1s
	RefreshInterval Duration `json:"refresh_interval"`

	// StopTimeout 停止时等待引擎退出的上限，超时后分离后台上下文
	// 默认值: 5s
	StopTimeout Duration `json:"stop_timeout"`

	// EventCapacity 事件日志容量
	// 默认值: 100
	EventCapacity int `json:"event_capacity"`

	// EventBuffer 引擎事件订阅缓冲区大小，0 表示使用引擎默认值
	// 默认值: 256
	EventBuffer int `json:"event_buffer"`
}

// DefaultLauncherConfig 返回默认的 Launcher 配置
func DefaultLauncherConfig() LauncherConfig {
	return LauncherConfig{
		RefreshInterval: Duration(time.Second),
		StopTimeout:     Duration(5 * time.Second),
		EventCapacity:   100,
		EventBuffer:     256,
	}
}

// Validate 验证 Launcher 配置
func (c *LauncherConfig) Validate() error {
	if c.RefreshInterval <= 0 {
		return errors.New("refresh_interval must be positive")
	}
	if c.StopTimeout <= 0 {
		return errors.New("stop_timeout must be positive")
	}
	if c.EventCapacity <= 0 {
		return errors.New("event_capacity must be positive")
	}
	if c.EventBuffer < 0 {
		return errors.New("event_buffer must not be negative")
	}
	return nil
}
