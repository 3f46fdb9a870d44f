package logger

import (
	"io"
	"log/slog"
)

// Setup 从环境变量读取配置并安装为 slog 默认 logger
//
// 守护进程在解析完命令行参数后调用一次。levelOverride 非空时覆盖
// EASYLINK_LOG_LEVEL（命令行 -log-level 优先于环境变量）。
func Setup(levelOverride string) *Config {
	cfg := ConfigFromEnv()
	if levelOverride != "" {
		ParseLevelConfig(cfg, levelOverride)
	}
	Install(cfg)
	return cfg
}

// Install 使用指定配置安装默认 logger
func Install(cfg *Config) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	slog.SetDefault(slog.New(newHandler(cfg)))
}

// SetOutput 设置全局日志输出目标
//
// 已安装的 handler 通过 dynamicWriter 写出，切换立即生效。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

// Discard 返回一个丢弃所有日志的 Logger
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
