package sink

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EasyTier/EasyLink/pkg/types"
)

func batch(ids ...string) []types.InstanceSnapshot {
	out := make([]types.InstanceSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.InstanceSnapshot{ID: id})
	}
	return out
}

// ============================================================================
//                              Async
// ============================================================================

func TestAsync_Delivers(t *testing.T) {
	var mu sync.Mutex
	var got []string

	a := NewAsync("test", Func(func(b []types.InstanceSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range b {
			got = append(got, s.ID)
		}
	}), 4)

	a.Publish(batch("a"))
	a.Publish(batch("b", "c"))
	require.NoError(t, a.Close())

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, a.Dropped())

	// 关闭后 Publish 为空操作
	assert.NotPanics(t, func() { a.Publish(batch("d")) })
	require.NoError(t, a.Close())
}

func TestAsync_SlowSinkNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	var delivered atomic.Int32

	a := NewAsync("slow", Func(func([]types.InstanceSnapshot) {
		<-release
		delivered.Add(1)
	}), 2)

	start := time.Now()
	for i := 0; i < 20; i++ {
		a.Publish(batch("x"))
	}
	assert.Less(t, time.Since(start), time.Second)

	// 一个在派发中，两个在队列中，其余丢弃
	assert.GreaterOrEqual(t, a.Dropped(), int64(17))

	close(release)
	require.NoError(t, a.Close())
	assert.Equal(t, int32(20-a.Dropped()), delivered.Load())
}

func TestAsync_RecoversPanic(t *testing.T) {
	var calls atomic.Int32
	a := NewAsync("panicky", Func(func(b []types.InstanceSnapshot) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	}), 4)

	a.Publish(batch("a"))
	a.Publish(batch("b"))
	require.NoError(t, a.Close())
	assert.Equal(t, int32(2), calls.Load())
}

// ============================================================================
//                              Multi / Discard
// ============================================================================

func TestMulti(t *testing.T) {
	var n1, n2 int
	m := Multi(
		Func(func(b []types.InstanceSnapshot) { n1 += len(b) }),
		nil,
		Func(func(b []types.InstanceSnapshot) { n2 += len(b) }),
	)
	m.Publish(batch("a", "b"))

	assert.Equal(t, 2, n1)
	assert.Equal(t, 2, n2)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Publish(batch("a")) })
}
