package config

import (
	"errors"
	"time"
)

// BroadcasterConfig 状态广播配置
type BroadcasterConfig struct {
	// Interval 采样周期
	// 默认值: 1s
	Interval Duration `json:"interval"`

	// IdleThreshold 连续空采样次数，达到后广播器挂起，等待下一次成功启动重新激活
	// 默认值: 5
	IdleThreshold int `json:"idle_threshold"`

	// SinkBuffer 通知渠道异步队列长度，队列满时丢弃
	// 默认值: 16
	SinkBuffer int `json:"sink_buffer"`
}

// DefaultBroadcasterConfig 返回默认的广播配置
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		Interval:      Duration(time.Second),
		IdleThreshold: 5,
		SinkBuffer:    16,
	}
}

// Validate 验证广播配置
func (c *BroadcasterConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.IdleThreshold <= 0 {
		return errors.New("idle_threshold must be positive")
	}
	if c.SinkBuffer <= 0 {
		return errors.New("sink_buffer must be positive")
	}
	return nil
}
