package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/EasyTier/EasyLink/pkg/lib/log"
)

var (
	// globalOutput 全局日志输出目标，默认为 stderr
	globalOutput   io.Writer = os.Stderr
	globalOutputMu sync.RWMutex
)

// dynamicWriter 每次写入时查找 globalOutput，SetOutput 对已安装的 handler 同样生效
type dynamicWriter struct{}

func (w *dynamicWriter) Write(p []byte) (n int, err error) {
	globalOutputMu.RLock()
	output := globalOutput
	globalOutputMu.RUnlock()
	return output.Write(p)
}

// componentHandler 按组件控制级别的 slog.Handler
//
// pkg/lib/log 的 LazyLogger 通过 With("component", name) 附加组件名，
// WithAttrs 捕获该属性并据此切换级别。
type componentHandler struct {
	cfg       *Config
	component string
	level     slog.Level
	inner     slog.Handler
}

// newHandler 创建根 Handler
func newHandler(cfg *Config) *componentHandler {
	opts := &slog.HandlerOptions{
		// 级别过滤由 componentHandler 负责，内层放行所有配置过的最低级别
		Level:     cfg.MinLevel(),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelToString(lvl))
				}
			}
			return a
		},
	}

	output := &dynamicWriter{}

	var inner slog.Handler
	if cfg.Format == FormatJSON {
		inner = slog.NewJSONHandler(output, opts)
	} else {
		inner = slog.NewTextHandler(output, opts)
	}

	return &componentHandler{
		cfg:   cfg,
		level: cfg.DefaultLevel,
		inner: inner,
	}
}

// Enabled 检查是否启用指定级别
func (h *componentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle 处理日志记录
func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// WithAttrs 添加属性，遇到组件属性时重新计算级别
func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &componentHandler{
		cfg:       h.cfg,
		component: h.component,
		level:     h.level,
		inner:     h.inner.WithAttrs(attrs),
	}
	for _, a := range attrs {
		if a.Key == log.ComponentKey {
			next.component = a.Value.String()
			next.level = h.cfg.LevelFor(next.component)
		}
	}
	return next
}

// WithGroup 添加组
func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{
		cfg:       h.cfg,
		component: h.component,
		level:     h.level,
		inner:     h.inner.WithGroup(name),
	}
}

// levelToString 将日志级别转换为小写字符串
func levelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return level.String()
	}
}

// discardHandler 丢弃所有日志的 Handler（用于测试）
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
