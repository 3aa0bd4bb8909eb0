package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsSubmittedWork(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	var mu sync.Mutex
	var done int
	for i := 0; i < 5; i++ {
		err := pool.Submit(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, done)
	assert.Equal(t, int64(5), pool.Metrics().Completed)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	release := make(chan struct{})
	err := pool.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	// Pool is full: a submit with an expiring context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pool.Submit(ctx, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	pool.Wait()
}

func TestWorkerPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()

	err := pool.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrPoolShutdown)
}

func TestWorkerPoolSurvivesPanickingWork(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error {
		panic("worker blew up")
	}))
	pool.Wait()

	assert.Equal(t, int64(1), pool.Metrics().Failed)

	// Pool still accepts work afterwards.
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error { return nil }))
	pool.Wait()
	assert.Equal(t, int64(1), pool.Metrics().Completed)
}
