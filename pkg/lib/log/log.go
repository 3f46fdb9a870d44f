// Package log 提供 EasyLink 统一日志接口
//
// 基于标准库 log/slog，所有组件通过 Logger(component) 获取带组件名的
// 懒加载 logger。输出格式与级别由 internal/util/logger.Setup 在进程
// 启动时统一安装到 slog.Default()。
package log

import (
	"context"
	"log/slog"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ComponentKey 组件属性名
const ComponentKey = "component"

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次日志调用时都从 slog.Default() 获取最新的 handler，
// 因此包级变量形式的 logger 在 Setup 之后依然生效。
//
//	var logger = log.Logger("core/launcher")
//	logger.Info("实例已启动", "id", id)
type LazyLogger struct {
	component string
	args      []any
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) current() *slog.Logger {
	lg := slog.Default().With(ComponentKey, l.component)
	if len(l.args) > 0 {
		lg = lg.With(l.args...)
	}
	return lg
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.current().Debug(msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.current().Info(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.current().Warn(msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.current().Error(msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.current().WarnContext(ctx, msg, args...)
}

// With 返回附加了固定属性的 LazyLogger
//
// 返回值仍然是懒加载的，适合保存在长生命周期对象（如 Launcher）中。
func (l *LazyLogger) With(args ...any) *LazyLogger {
	merged := make([]any, 0, len(l.args)+len(args))
	merged = append(merged, l.args...)
	merged = append(merged, args...)
	return &LazyLogger{component: l.component, args: merged}
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
//
// 实例 ID 是 36 字符的 UUID，日志中通常只显示前 8 位。
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}
