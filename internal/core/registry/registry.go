// Package registry 实现实例注册表
//
// 注册表按实例 ID 持有 Launcher。启动采用预留协议：
//
//  1. 持锁检查 ID 并插入占位项（pending），重复 ID 在任何副作用之前被拒绝
//  2. 释放锁后创建并启动 Launcher
//  3. 持锁把占位项提升为正式项，或在失败时删除
//
// 占位项对 Stop / SnapshotAll / Len 不可见。持锁期间从不调用 Launcher。
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/EasyTier/EasyLink/internal/core/launcher"
	"github.com/EasyTier/EasyLink/internal/core/metrics"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("core/registry")

// LauncherFactory 为实例 ID 创建 Launcher
type LauncherFactory func(id string) *launcher.Launcher

// entry 注册表项，launcher 为 nil 表示占位
type entry struct {
	launcher *launcher.Launcher
}

// Registry 实例注册表
type Registry struct {
	newLauncher LauncherFactory

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New 创建注册表
func New(newLauncher LauncherFactory) *Registry {
	return &Registry{
		newLauncher: newLauncher,
		entries:     make(map[string]*entry),
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              启动 / 停止
// ════════════════════════════════════════════════════════════════════════════

// Start 启动实例
//
// ID 已存在返回 ErrAlreadyExists；配置错误返回 ErrInvalidConfig；
// 启动期引擎错误返回 ErrStartFailed。失败的启动不会留在注册表中。
// 启动期间注册表被关闭时，新启动的 Launcher 被立即停止并返回 ErrClosed。
func (r *Registry) Start(id string, provider pkgif.ConfigProvider) (err error) {
	id = types.NormalizeID(id)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	placeholder := &entry{}
	r.entries[id] = placeholder
	r.mu.Unlock()

	promoted := false
	defer func() {
		if promoted {
			return
		}
		r.mu.Lock()
		if cur, ok := r.entries[id]; ok && cur == placeholder {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrStartFailed, rec)
			logger.Error("实例启动 panic", "id", id, "panic", rec)
		}
	}()

	l := r.newLauncher(id)
	if err := l.Start(provider); err != nil {
		logger.Warn("实例启动失败", "id", id, "err", err)
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if stopErr := l.Stop(context.Background()); stopErr != nil {
			logger.Warn("注册表已关闭，停止新实例失败", "id", id, "err", stopErr)
		}
		return ErrClosed
	}
	placeholder.launcher = l
	promoted = true
	n := r.lenLocked()
	r.mu.Unlock()

	metrics.SetInstances(n)
	logger.Info("实例已注册", "id", id, "instances", n)
	return nil
}

// Stop 停止并移除实例
//
// 先从注册表移除，再等待执行上下文退出。等待超时返回 ErrStopTimeout，
// 此时实例已被移除，后台上下文被分离。
func (r *Registry) Stop(ctx context.Context, id string) error {
	id = types.NormalizeID(id)

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.launcher == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.entries, id)
	n := r.lenLocked()
	r.mu.Unlock()

	metrics.SetInstances(n)
	defer metrics.ForgetInstance(id)

	if err := e.launcher.Stop(ctx); err != nil {
		logger.Warn("实例停止超时", "id", id, "err", err)
		return err
	}
	logger.Info("实例已移除", "id", id, "instances", n)
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// SnapshotAll 返回所有已启动实例的快照
//
// 只在持锁时复制 Launcher 引用，读取状态块不持注册表锁。
func (r *Registry) SnapshotAll() map[string]types.InstanceSnapshot {
	launchers := r.launchers()

	out := make(map[string]types.InstanceSnapshot, len(launchers))
	for _, l := range launchers {
		if snap, ok := l.Snapshot(); ok {
			out[l.ID()] = snap
		}
	}
	return out
}

// Get 返回实例的 Launcher
func (r *Registry) Get(id string) (*launcher.Launcher, bool) {
	id = types.NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.launcher == nil {
		return nil, false
	}
	return e.launcher, true
}

// IDs 返回已启动实例的 ID（升序）
func (r *Registry) IDs() []string {
	launchers := r.launchers()
	ids := make([]string, 0, len(launchers))
	for _, l := range launchers {
		ids = append(ids, l.ID())
	}
	sort.Strings(ids)
	return ids
}

// Len 已启动实例数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *Registry) lenLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.launcher != nil {
			n++
		}
	}
	return n
}

func (r *Registry) launchers() []*launcher.Launcher {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*launcher.Launcher, 0, len(r.entries))
	for _, e := range r.entries {
		if e.launcher != nil {
			out = append(out, e.launcher)
		}
	}
	return out
}

// ════════════════════════════════════════════════════════════════════════════
//                              关闭
// ════════════════════════════════════════════════════════════════════════════

// Close 停止所有实例并拒绝后续启动
//
// 各实例并行停止，错误通过 multierr 汇总。
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, id := range r.IDs() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.Stop(ctx, id); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return errs
}
