package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/launcher"
	"github.com/EasyTier/EasyLink/internal/core/launcher/enginetest"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/types"
)

func launcherConfig() config.LauncherConfig {
	cfg := config.DefaultLauncherConfig()
	cfg.RefreshInterval = config.Duration(10 * time.Millisecond)
	cfg.StopTimeout = config.Duration(time.Second)
	return cfg
}

// newRegistry 创建注册表，factory 为每个 Launcher 提供引擎
func newRegistry(factory pkgif.EngineFactory, cfg config.LauncherConfig) (*Registry, *atomic.Int32) {
	var created atomic.Int32
	r := New(func(id string) *launcher.Launcher {
		created.Add(1)
		return launcher.New(id, factory, launcher.WithConfig(cfg))
	})
	return r, &created
}

func numbered(n int) []types.EngineEvent {
	out := make([]types.EngineEvent, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, types.EngineEvent{Kind: types.EventConnected, Detail: fmt.Sprint(i)})
	}
	return out
}

// ============================================================================
//                              启动
// ============================================================================

func TestRegistry_DuplicateStart(t *testing.T) {
	r, created := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())
	defer r.Close(context.Background())

	id := uuid.NewString()
	require.NoError(t, r.Start(id, enginetest.Provider(id)))

	err := r.Start(id, enginetest.Provider(id))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	// 大小写与空白不影响 ID
	err = r.Start("  "+strings.ToUpper(id)+" ", enginetest.Provider(id))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int32(1), created.Load(), "duplicate start must not create a launcher")
}

func TestRegistry_ConcurrentDuplicateStart(t *testing.T) {
	r, created := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())
	defer r.Close(context.Background())

	id := uuid.NewString()
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Start(id, enginetest.Provider(id))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyExists):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(15), dup.Load())
	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_PendingEntryInvisible(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())
	defer r.Close(context.Background())

	id := uuid.NewString()
	entered := make(chan struct{})
	release := make(chan struct{})

	started := make(chan error, 1)
	go func() {
		started <- r.Start(id, func() (*config.EngineConfig, error) {
			close(entered)
			<-release
			return enginetest.NetworkConfig(id).Build()
		})
	}()
	<-entered

	// 启动中的实例不可见，但占用 ID
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.SnapshotAll())
	assert.ErrorIs(t, r.Stop(context.Background(), id), ErrNotFound)
	assert.ErrorIs(t, r.Start(id, enginetest.Provider(id)), ErrAlreadyExists)
	_, found := r.Get(id)
	assert.False(t, found)

	close(release)
	require.NoError(t, <-started)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConfigRejected(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())

	id := uuid.NewString()
	err := r.Start(id, func() (*config.EngineConfig, error) {
		nc := enginetest.NetworkConfig(id)
		nc.NetworkName = nil
		return nc.Build()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 0, r.Len())
	assert.NotContains(t, r.SnapshotAll(), id)

	// 失败后同一 ID 可以重新启动
	require.NoError(t, r.Start(id, enginetest.Provider(id)))
	require.NoError(t, r.Stop(context.Background(), id))
}

func TestRegistry_StartFailed(t *testing.T) {
	r, _ := newRegistry(enginetest.FailingFactory(errors.New("no tun")), launcherConfig())

	id := uuid.NewString()
	assert.ErrorIs(t, r.Start(id, enginetest.Provider(id)), ErrStartFailed)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_EngineFailsImmediately(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil, enginetest.FailWith(errors.New("bind failed"))), launcherConfig())
	defer r.Close(context.Background())

	id := uuid.NewString()
	require.NoError(t, r.Start(id, enginetest.Provider(id)))

	require.Eventually(t, func() bool {
		snap, ok := r.SnapshotAll()[id]
		return ok && !snap.Running && snap.Error != nil
	}, time.Second, 5*time.Millisecond)

	snap := r.SnapshotAll()[id]
	assert.Equal(t, types.StateErrored, snap.State)
	assert.Contains(t, snap.ErrorMessage(), "bind failed")

	// 出错的实例仍可被停止移除
	require.NoError(t, r.Stop(context.Background(), id))
	assert.Equal(t, 0, r.Len())
}

// ============================================================================
//                              停止
// ============================================================================

func TestRegistry_StopUnknown(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())
	defer r.Close(context.Background())

	id := uuid.NewString()
	require.NoError(t, r.Start(id, enginetest.Provider(id)))

	err := r.Stop(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_StopIsSynchronous(t *testing.T) {
	engines := make(chan *enginetest.Engine, 1)
	r, _ := newRegistry(enginetest.FactoryFunc(engines), launcherConfig())

	id := uuid.NewString()
	require.NoError(t, r.Start(id, enginetest.Provider(id)))
	l, ok := r.Get(id)
	require.True(t, ok)
	<-engines

	require.NoError(t, r.Stop(context.Background(), id))
	assert.Equal(t, types.StateStopped, l.State())
	assert.Equal(t, 0, r.Len())
	assert.ErrorIs(t, r.Stop(context.Background(), id), ErrNotFound)
}

func TestRegistry_StopTimeoutRemovesEntry(t *testing.T) {
	cfg := launcherConfig()
	cfg.StopTimeout = config.Duration(50 * time.Millisecond)

	engines := make(chan *enginetest.Engine, 1)
	r, _ := newRegistry(enginetest.FactoryFunc(engines, enginetest.Stall()), cfg)

	id := uuid.NewString()
	require.NoError(t, r.Start(id, enginetest.Provider(id)))
	eng := <-engines
	defer eng.Release()

	start := time.Now()
	err := r.Stop(context.Background(), id)
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, r.Len())

	// ID 立即可以复用
	require.NoError(t, r.Start(id, enginetest.Provider(id)))
}

// ============================================================================
//                              快照
// ============================================================================

func TestRegistry_EventsThroughSnapshot(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil, enginetest.Script(numbered(150)...)), launcherConfig())
	defer r.Close(context.Background())

	id := uuid.NewString()
	require.NoError(t, r.Start(id, enginetest.Provider(id)))

	require.Eventually(t, func() bool {
		events := r.SnapshotAll()[id].Events
		return len(events) == 100 && events[99].Payload.Detail == "150"
	}, time.Second, 5*time.Millisecond)

	for i, e := range r.SnapshotAll()[id].Events {
		assert.Equal(t, fmt.Sprint(51+i), e.Payload.Detail)
	}
}

func TestRegistry_InterleavedStartStop(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())
	defer r.Close(context.Background())

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			assert.NoError(t, r.Start(id, enginetest.Provider(id)))
			if i%2 == 0 {
				assert.NoError(t, r.Stop(context.Background(), id))
			}
		}(i, id)
	}
	wg.Wait()

	snaps := r.SnapshotAll()
	assert.Len(t, snaps, 10)
	for i, id := range ids {
		_, ok := snaps[id]
		assert.Equal(t, i%2 == 1, ok, "id %d", i)
	}
	assert.Len(t, r.IDs(), 10)
}

func TestRegistry_ConcurrentSnapshots(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil, enginetest.Script(numbered(120)...)), launcherConfig())
	defer r.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				for _, snap := range r.SnapshotAll() {
					assert.LessOrEqual(t, len(snap.Events), 100)
					for j := 1; j < len(snap.Events); j++ {
						assert.False(t, snap.Events[j].Time.Before(snap.Events[j-1].Time))
					}
				}
			}
		}()
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				id := uuid.NewString()
				if err := r.Start(id, enginetest.Provider(id)); err != nil {
					continue
				}
				_ = r.Stop(context.Background(), id)
			}
		}()
	}
	wg.Wait()
}

// ============================================================================
//                              关闭
// ============================================================================

func TestRegistry_Close(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())

	var launchers []*launcher.Launcher
	for i := 0; i < 3; i++ {
		id := uuid.NewString()
		require.NoError(t, r.Start(id, enginetest.Provider(id)))
		l, _ := r.Get(id)
		launchers = append(launchers, l)
	}

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 0, r.Len())
	for _, l := range launchers {
		assert.Equal(t, types.StateStopped, l.State())
	}

	id := uuid.NewString()
	assert.ErrorIs(t, r.Start(id, enginetest.Provider(id)), ErrClosed)
}

func TestRegistry_CloseDuringPendingStart(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())

	id := uuid.NewString()
	entered := make(chan struct{})
	release := make(chan struct{})

	var (
		mu sync.Mutex
		l  *launcher.Launcher
	)
	r.newLauncher = func(id string) *launcher.Launcher {
		created := launcher.New(id, enginetest.FactoryFunc(nil), launcher.WithConfig(launcherConfig()))
		mu.Lock()
		l = created
		mu.Unlock()
		return created
	}

	started := make(chan error, 1)
	go func() {
		started <- r.Start(id, func() (*config.EngineConfig, error) {
			close(entered)
			<-release
			return enginetest.NetworkConfig(id).Build()
		})
	}()
	<-entered

	require.NoError(t, r.Close(context.Background()))
	close(release)

	assert.ErrorIs(t, <-started, ErrClosed)
	assert.Equal(t, 0, r.Len())
	_, found := r.Get(id)
	assert.False(t, found)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, l)
	assert.Equal(t, types.StateStopped, l.State())
	assert.False(t, l.Running())
}

func TestRegistry_StartPanicReleasesID(t *testing.T) {
	r, _ := newRegistry(enginetest.FactoryFunc(nil), launcherConfig())
	defer r.Close(context.Background())

	id := uuid.NewString()
	var err error
	require.NotPanics(t, func() {
		err = r.Start(id, func() (*config.EngineConfig, error) { panic("provider exploded") })
	})
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.Equal(t, 0, r.Len())

	// 占位项已被删除，同一 ID 可以再次启动
	require.NoError(t, r.Start(id, enginetest.Provider(id)))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_LauncherFactoryPanicReleasesID(t *testing.T) {
	r := New(func(string) *launcher.Launcher { panic("no launcher") })

	id := uuid.NewString()
	var err error
	require.NotPanics(t, func() { err = r.Start(id, enginetest.Provider(id)) })
	assert.ErrorIs(t, err, ErrStartFailed)

	r.mu.Lock()
	_, reserved := r.entries[id]
	r.mu.Unlock()
	assert.False(t, reserved)
}

func TestRegistry_CloseAggregatesErrors(t *testing.T) {
	cfg := launcherConfig()
	cfg.StopTimeout = config.Duration(20 * time.Millisecond)

	engines := make(chan *enginetest.Engine, 2)
	r, _ := newRegistry(enginetest.FactoryFunc(engines, enginetest.Stall()), cfg)
	for i := 0; i < 2; i++ {
		id := uuid.NewString()
		require.NoError(t, r.Start(id, enginetest.Provider(id)))
		defer (<-engines).Release()
	}

	err := r.Close(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.Len(t, multierr.Errors(err), 2)
}

