// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ForEach(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := NewWithParallelism(parallelism)
		const n = 100
		var visited [n]atomic.Int32
		pool.ForEach(n, func(i int) {
			runtime.Gosched()
			visited[i].Add(1)
		})
		for i := range n {
			require.Equalf(t, int32(1), visited[i].Load(), "parallelism=%d, task %d", parallelism, i)
		}
	}
	// No tasks is a no-op.
	New().ForEach(0, func(int) { t.Fatal("should not be called") })
}

func TestPool_ForEachRespectsLimit(t *testing.T) {
	const limit = 2
	pool := NewWithParallelism(limit)
	var running, maxRunning atomic.Int32
	pool.ForEach(20, func(int) {
		current := running.Add(1)
		for {
			prev := maxRunning.Load()
			if current <= prev || maxRunning.CompareAndSwap(prev, current) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
	})
	// The pool runs at most `limit` tasks, plus the calling goroutine working inline.
	assert.LessOrEqual(t, int(maxRunning.Load()), limit+1)
	assert.Equal(t, int32(0), running.Load())
}

func TestPool_Parallelism(t *testing.T) {
	pool := NewWithParallelism(2)
	assert.True(t, pool.IsEnabled())
	assert.False(t, pool.IsUnlimited())
	assert.Equal(t, 2, pool.MaxParallelism())

	// Disabled parallelism never starts goroutines.
	pool = NewWithParallelism(0)
	assert.False(t, pool.IsEnabled())
	assert.False(t, pool.StartIfAvailable(func() {}))
	assert.Equal(t, runtime.NumCPU(), New().MaxParallelism())
}

func TestPool_StartIfAvailable(t *testing.T) {
	pool := NewWithParallelism(1)
	release := make(chan struct{})
	done := make(chan struct{})
	require.True(t, pool.StartIfAvailable(func() {
		<-release
		close(done)
	}))
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	<-done

	// Unlimited always starts.
	pool = NewWithParallelism(-1)
	assert.True(t, pool.IsUnlimited())
	finished := make(chan struct{})
	assert.True(t, pool.StartIfAvailable(func() { close(finished) }))
	<-finished
}
