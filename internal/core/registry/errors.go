package registry

import (
	"errors"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/launcher"
)

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrAlreadyExists 实例 ID 已存在（包括正在启动中的实例）
	ErrAlreadyExists = errors.New("instance already exists")
	// ErrNotFound 实例 ID 不存在
	ErrNotFound = errors.New("instance not found")
	// ErrClosed 注册表已关闭
	ErrClosed = errors.New("registry closed")

	// ErrInvalidConfig 配置错误，与 config.ErrInvalidConfig 相同
	ErrInvalidConfig = config.ErrInvalidConfig
	// ErrStartFailed 启动期引擎错误，与 launcher.ErrStartFailed 相同
	ErrStartFailed = launcher.ErrStartFailed
	// ErrStopTimeout 停止超时，与 launcher.ErrStopTimeout 相同
	ErrStopTimeout = launcher.ErrStopTimeout
)
