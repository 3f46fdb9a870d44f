package launcher

import "errors"

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrAlreadyStarted Launcher 已启动过，不支持重启
	ErrAlreadyStarted = errors.New("launcher already started")
	// ErrStartFailed 启动期引擎错误（工厂或订阅失败）
	ErrStartFailed = errors.New("engine start failed")
	// ErrStopTimeout 停止超时，执行上下文已分离
	ErrStopTimeout = errors.New("stop timed out, execution context detached")
	// ErrEnginePanic 引擎在执行上下文中 panic
	ErrEnginePanic = errors.New("engine panicked")
)
