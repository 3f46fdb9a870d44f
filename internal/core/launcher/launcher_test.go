package launcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/eventbus"
	"github.com/EasyTier/EasyLink/internal/core/launcher/enginetest"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/types"
)

const testID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func fastConfig() config.LauncherConfig {
	cfg := config.DefaultLauncherConfig()
	cfg.RefreshInterval = config.Duration(10 * time.Millisecond)
	cfg.StopTimeout = config.Duration(time.Second)
	return cfg
}

func numbered(n int) []types.EngineEvent {
	out := make([]types.EngineEvent, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, types.EngineEvent{Kind: types.EventConnecting, Detail: fmt.Sprint(i)})
	}
	return out
}

// ============================================================================
//                              正常生命周期
// ============================================================================

func TestLauncher_StartAndStop(t *testing.T) {
	eng := enginetest.New(
		enginetest.Script(numbered(3)...),
		enginetest.WithNode(types.NodeInfo{VirtualIPv4: "10.144.144.1"}),
		enginetest.WithTables(
			[]types.Route{{PeerID: 7, IPv4Addr: "10.144.144.7"}},
			[]types.PeerInfo{{PeerID: 7}},
		),
	)
	l := New(testID, enginetest.Factory(eng), WithConfig(fastConfig()))
	assert.Equal(t, types.StateNotStarted, l.State())

	require.NoError(t, l.Start(enginetest.Provider(testID)))
	assert.True(t, l.Running())
	assert.Equal(t, types.StateRunning, l.State())

	require.Eventually(t, func() bool {
		return len(l.Events()) == 3 && l.NodeInfo().VirtualIPv4 == "10.144.144.1"
	}, time.Second, 5*time.Millisecond)

	snap, ok := l.Snapshot()
	require.True(t, ok)
	assert.Equal(t, testID, snap.ID)
	assert.True(t, snap.Running)
	assert.Nil(t, snap.Error)
	require.Len(t, snap.PeerRoutePairs, 1)
	assert.NotNil(t, snap.PeerRoutePairs[0].Peer)
	assert.Contains(t, l.RunningConfig(), `instance_id = "`+testID+`"`)

	require.NoError(t, l.Stop(context.Background()))
	assert.Equal(t, types.StateStopped, l.State())
	assert.False(t, l.Running())
	_, hasErr := l.Error()
	assert.False(t, hasErr)

	select {
	case <-l.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}

	// 停止后快照仍可读
	snap, ok = l.Snapshot()
	require.True(t, ok)
	assert.False(t, snap.Running)
	assert.Equal(t, types.StateStopped, snap.State)
}

func TestLauncher_EventLogKeepsLatest(t *testing.T) {
	eng := enginetest.New(enginetest.Script(numbered(150)...))
	l := New(testID, enginetest.Factory(eng), WithConfig(fastConfig()))
	require.NoError(t, l.Start(enginetest.Provider(testID)))
	defer l.Stop(context.Background())

	require.Eventually(t, func() bool {
		events := l.Events()
		return len(events) == 100 && events[99].Payload.Detail == "150"
	}, time.Second, 5*time.Millisecond)

	events := l.Events()
	for i, e := range events {
		assert.Equal(t, fmt.Sprint(51+i), e.Payload.Detail)
	}
}

func TestLauncher_EngineExitsCleanly(t *testing.T) {
	eng := enginetest.New(enginetest.ExitCleanly())
	l := New(testID, enginetest.Factory(eng), WithConfig(fastConfig()))
	require.NoError(t, l.Start(enginetest.Provider(testID)))

	<-l.Done()
	assert.Equal(t, types.StateStopped, l.State())
	_, hasErr := l.Error()
	assert.False(t, hasErr)
}

func TestLauncher_AlreadyStarted(t *testing.T) {
	l := New(testID, enginetest.Factory(enginetest.New()), WithConfig(fastConfig()))
	require.NoError(t, l.Start(enginetest.Provider(testID)))
	defer l.Stop(context.Background())

	assert.ErrorIs(t, l.Start(enginetest.Provider(testID)), ErrAlreadyStarted)
}

func TestLauncher_StopNeverStarted(t *testing.T) {
	l := New(testID, enginetest.Factory(enginetest.New()))
	assert.NoError(t, l.Stop(context.Background()))

	_, ok := l.Snapshot()
	assert.False(t, ok)
}

// ============================================================================
//                              失败路径
// ============================================================================

func TestLauncher_ConfigRejected(t *testing.T) {
	l := New(testID, enginetest.Factory(enginetest.New()))

	err := l.Start(func() (*config.EngineConfig, error) {
		nc := enginetest.NetworkConfig(testID)
		nc.NetworkName = nil
		return nc.Build()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	assert.Equal(t, types.StateNotStarted, l.State())
	assert.False(t, l.Running())
	msg, ok := l.Error()
	assert.True(t, ok)
	assert.Contains(t, msg, "no token or network provided")
}

func TestLauncher_ProviderErrorIsConfigError(t *testing.T) {
	l := New(testID, enginetest.Factory(enginetest.New()))
	err := l.Start(func() (*config.EngineConfig, error) {
		return nil, errors.New("file not found")
	})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLauncher_FactoryFails(t *testing.T) {
	l := New(testID, enginetest.FailingFactory(errors.New("tun device busy")))

	err := l.Start(enginetest.Provider(testID))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.Equal(t, types.StateNotStarted, l.State())
}

func TestLauncher_StartPanicsRecovered(t *testing.T) {
	tests := []struct {
		name     string
		factory  func() *Launcher
		provider func() (*config.EngineConfig, error)
	}{
		{
			name: "provider",
			factory: func() *Launcher {
				return New(testID, enginetest.FactoryFunc(nil))
			},
			provider: func() (*config.EngineConfig, error) { panic("bad provider") },
		},
		{
			name: "factory",
			factory: func() *Launcher {
				return New(testID, func(*config.EngineConfig) (pkgif.Engine, error) { panic("bad factory") })
			},
			provider: enginetest.Provider(testID),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.factory()

			var err error
			require.NotPanics(t, func() { err = l.Start(tt.provider) })
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStartFailed)
			assert.Contains(t, err.Error(), "bad "+tt.name)
			assert.Equal(t, types.StateNotStarted, l.State())

			msg, ok := l.Error()
			require.True(t, ok)
			assert.Contains(t, msg, "bad "+tt.name)
		})
	}
}

func TestLauncher_EngineFailsImmediately(t *testing.T) {
	eng := enginetest.New(
		enginetest.Script(types.EngineEvent{Kind: types.EventListenerAddFailed, Detail: "tcp://0.0.0.0:11010"}),
		enginetest.FailWith(errors.New("listen tcp 0.0.0.0:11010: address already in use")),
	)
	l := New(testID, enginetest.Factory(eng), WithConfig(fastConfig()))
	require.NoError(t, l.Start(enginetest.Provider(testID)))

	<-l.Done()
	assert.Equal(t, types.StateErrored, l.State())
	assert.False(t, l.Running())

	msg, ok := l.Error()
	require.True(t, ok)
	assert.Contains(t, msg, "address already in use")

	// 退出前的事件已被排空
	require.Len(t, l.Events(), 1)
	assert.Equal(t, types.EventListenerAddFailed, l.Events()[0].Payload.Kind)

	snap, ok := l.Snapshot()
	require.True(t, ok)
	assert.Equal(t, types.StateErrored, snap.State)
	assert.Contains(t, snap.ErrorMessage(), "address already in use")
}

func TestLauncher_EnginePanic(t *testing.T) {
	eng := enginetest.New(enginetest.PanicWith("boom"))
	l := New(testID, enginetest.Factory(eng), WithConfig(fastConfig()))
	require.NoError(t, l.Start(enginetest.Provider(testID)))

	<-l.Done()
	assert.Equal(t, types.StateErrored, l.State())
	msg, ok := l.Error()
	require.True(t, ok)
	assert.Contains(t, msg, "engine panicked: boom")
}

func TestLauncher_StopTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.StopTimeout = config.Duration(50 * time.Millisecond)

	eng := enginetest.New(enginetest.Stall())
	l := New(testID, enginetest.Factory(eng), WithConfig(cfg))
	require.NoError(t, l.Start(enginetest.Provider(testID)))
	<-eng.Started()

	start := time.Now()
	err := l.Stop(context.Background())
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// 分离的执行上下文最终退出时仍设置终态
	eng.Release()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("detached context did not exit after release")
	}
	assert.Equal(t, types.StateStopped, l.State())
}

func TestLauncher_StopHonorsCallerContext(t *testing.T) {
	eng := enginetest.New(enginetest.Stall())
	defer eng.Release()

	l := New(testID, enginetest.Factory(eng), WithConfig(config.DefaultLauncherConfig()))
	require.NoError(t, l.Start(enginetest.Provider(testID)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Stop(ctx), ErrStopTimeout)
}

// ============================================================================
//                              时钟与事件总线
// ============================================================================

func TestLauncher_RefreshOnClockTicks(t *testing.T) {
	mock := clock.NewMock()
	eng := enginetest.New(enginetest.WithNode(types.NodeInfo{VirtualIPv4: "10.0.0.1"}))
	l := New(testID, enginetest.Factory(eng), WithClock(mock))
	require.NoError(t, l.Start(enginetest.Provider(testID)))
	defer l.Stop(context.Background())

	// 启动时立即刷新一次
	require.Eventually(t, func() bool {
		return l.NodeInfo().VirtualIPv4 == "10.0.0.1"
	}, time.Second, 5*time.Millisecond)

	eng.SetNode(types.NodeInfo{VirtualIPv4: "10.0.0.2"})
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return l.NodeInfo().VirtualIPv4 == "10.0.0.2"
	}, time.Second, 5*time.Millisecond)

	// 事件时间戳来自注入的时钟
	eng.Emit(types.EngineEvent{Kind: types.EventPeerAdded, Peer: "7"})
	require.Eventually(t, func() bool { return len(l.Events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, l.Events()[0].Time.After(mock.Now()))
	assert.True(t, l.Events()[0].Time.After(time.Unix(0, 0)))
}

func TestLauncher_ForwardsToEventBus(t *testing.T) {
	bus := eventbus.NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe(new(types.InstanceEvent))
	require.NoError(t, err)
	em, err := bus.Emitter(new(types.InstanceEvent))
	require.NoError(t, err)

	eng := enginetest.New(enginetest.Script(types.EngineEvent{Kind: types.EventTunDeviceReady, Detail: "utun3"}))
	l := New(testID, enginetest.Factory(eng), WithConfig(fastConfig()), WithEmitter(em))
	require.NoError(t, l.Start(enginetest.Provider(testID)))
	defer l.Stop(context.Background())

	select {
	case evt := <-sub.Out():
		ie := evt.(types.InstanceEvent)
		assert.Equal(t, testID, ie.ID)
		assert.Equal(t, types.EventTunDeviceReady, ie.Event.Kind)
		assert.Equal(t, "utun3", ie.Event.Detail)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded to bus")
	}
}
