// Package logger 负责进程级日志安装
//
// 支持通过环境变量配置日志：
//   - EASYLINK_LOG_LEVEL: 按组件配置级别
//     格式: 组件=级别,组件=级别,默认级别
//     示例: core/launcher=debug,api=warn,info
//   - EASYLINK_LOG_FORMAT: 日志格式 (text 或 json)
//   - EASYLINK_LOG_ADD_SOURCE: 是否输出源码位置
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// 环境变量名
const (
	EnvLogLevel     = "EASYLINK_LOG_LEVEL"
	EnvLogFormat    = "EASYLINK_LOG_FORMAT"
	EnvLogAddSource = "EASYLINK_LOG_ADD_SOURCE"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// ComponentLevels 各组件的日志级别
	ComponentLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// DefaultConfig 返回默认配置（info 级别、文本格式）
func DefaultConfig() *Config {
	return &Config{
		DefaultLevel:    slog.LevelInfo,
		ComponentLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}
}

// LevelFor 获取指定组件的日志级别
//
// 组件名按前缀匹配，core=debug 同时作用于 core/launcher 与 core/registry，
// 最长前缀优先。
func (c *Config) LevelFor(component string) slog.Level {
	best := -1
	level := c.DefaultLevel
	for name, lvl := range c.ComponentLevels {
		if component != name && !strings.HasPrefix(component, name+"/") {
			continue
		}
		if len(name) > best {
			best = len(name)
			level = lvl
		}
	}
	return level
}

// MinLevel 返回所有配置中最低的级别
func (c *Config) MinLevel() slog.Level {
	min := c.DefaultLevel
	for _, lvl := range c.ComponentLevels {
		if lvl < min {
			min = lvl
		}
	}
	return min
}

// ConfigFromEnv 从环境变量解析配置
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if levelStr := os.Getenv(EnvLogLevel); levelStr != "" {
		ParseLevelConfig(cfg, levelStr)
	}

	if formatStr := os.Getenv(EnvLogFormat); strings.EqualFold(formatStr, "json") {
		cfg.Format = FormatJSON
	}

	if addSourceStr := os.Getenv(EnvLogAddSource); addSourceStr != "" {
		cfg.AddSource = addSourceStr != "false" && addSourceStr != "0"
	}

	return cfg
}

// ParseLevelConfig 解析日志级别配置字符串
//
// 格式: component=level,component=level,defaultLevel
func ParseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if name, levelName, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(levelName); ok {
				cfg.ComponentLevels[strings.TrimSpace(name)] = level
			}
			continue
		}

		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
