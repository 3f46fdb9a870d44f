package easylink

import (
	"errors"

	"github.com/EasyTier/EasyLink/internal/core/registry"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// Manager 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted Manager 未启动
	ErrNotStarted = errors.New("manager not started")

	// ErrAlreadyStarted Manager 已启动
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrManagerClosed Manager 已关闭
	ErrManagerClosed = errors.New("manager closed")

	// ────────────────────────────────────────────────────────────────────────
	// 实例错误（与 registry 包相同的哨兵值）
	// ────────────────────────────────────────────────────────────────────────

	// ErrAlreadyExists 实例 ID 已存在
	ErrAlreadyExists = registry.ErrAlreadyExists

	// ErrNotFound 实例不存在
	ErrNotFound = registry.ErrNotFound

	// ErrInvalidConfig 网络配置无效
	ErrInvalidConfig = registry.ErrInvalidConfig

	// ErrStartFailed 引擎启动期失败
	ErrStartFailed = registry.ErrStartFailed

	// ErrStopTimeout 停止等待超时，后台上下文已分离
	ErrStopTimeout = registry.ErrStopTimeout
)
