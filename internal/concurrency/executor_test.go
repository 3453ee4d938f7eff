package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_RunsAllTasks(t *testing.T) {
	e := NewExecutor(4, 256)
	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	e.Close()
	assert.Equal(t, int64(200), n.Load())
	submitted, completed := e.Stats()
	assert.Equal(t, int64(200), submitted)
	assert.Equal(t, int64(200), completed)
	assert.Equal(t, 4, e.NumWorkers())
}

func TestExecutor_QueueFullAndClosed(t *testing.T) {
	e := NewExecutor(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, e.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, e.Submit(func() {})) // fills the single slot
	assert.ErrorIs(t, e.Submit(func() {}), ErrQueueFull)
	assert.Equal(t, 1, e.Pending())

	close(release)
	e.Close()
	assert.ErrorIs(t, e.Submit(func() {}), ErrExecutorClosed)
	e.Close() // idempotent
}

func TestExecutor_RecoversPanics(t *testing.T) {
	e := NewExecutor(1, 4)
	var recovered atomic.Value
	e.OnPanic(func(r any) { recovered.Store(r) })
	require.NoError(t, e.Submit(func() { panic("boom") }))
	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { close(done) }))
	<-done
	e.Close()
	assert.Equal(t, "boom", recovered.Load())
}
