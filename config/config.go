// Package config 提供 EasyLink 的配置管理
//
// 本包分为两类配置：
//   - 守护进程配置 Config：Launcher / Broadcaster / API 子配置，
//     每个子配置在独立文件中定义，支持从 JSON 加载
//   - 网络实例配置 NetworkConfig：展示层提交的用户输入，
//     经 Build() 校验后生成不可变的 EngineConfig
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Launcher.StopTimeout = config.Duration(2 * time.Second)
//
//	netCfg := config.DefaultNetworkConfig()
//	engineCfg, err := netCfg.Build()
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config 守护进程完整配置
type Config struct {
	// Launcher 实例执行上下文配置
	Launcher LauncherConfig `json:"launcher"`

	// Broadcaster 状态广播配置
	Broadcaster BroadcasterConfig `json:"broadcaster"`

	// API HTTP 控制接口配置
	API APIConfig `json:"api"`

	// AutoStart 守护进程启动时自动拉起的网络实例
	AutoStart []NetworkConfig `json:"auto_start,omitempty"`

	// HistorySize 保留的已停止实例快照数量
	// 默认值: 32
	HistorySize int `json:"history_size"`
}

// DefaultHistorySize 默认历史快照容量
const DefaultHistorySize = 32

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Launcher:    DefaultLauncherConfig(),
		Broadcaster: DefaultBroadcasterConfig(),
		API:         DefaultAPIConfig(),
		HistorySize: DefaultHistorySize,
	}
}

// Validate 验证配置的有效性
//
// AutoStart 中的网络配置不在此处校验，启动时逐个 Build，
// 单个实例配置错误不影响其他实例。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Launcher.Validate(); err != nil {
		return fmt.Errorf("launcher: %w", err)
	}
	if err := c.Broadcaster.Validate(); err != nil {
		return fmt.Errorf("broadcaster: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if c.HistorySize <= 0 {
		return errors.New("history_size must be positive")
	}
	return nil
}

// FromJSON 从 JSON 解析配置
//
// 未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 从文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return FromJSON(data)
}
