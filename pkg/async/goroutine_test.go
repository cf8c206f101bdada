package async

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestGoRunsTask(t *testing.T) {
	done := make(chan struct{})
	Go(context.Background(), time.Second, "test", testLogger(), func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	ran := make(chan struct{})
	Go(context.Background(), time.Second, "test", testLogger(), func(ctx context.Context) error {
		defer close(ran)
		panic("boom")
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	// A second task still runs; the panic did not escape.
	done := make(chan struct{})
	Go(context.Background(), time.Second, "test", testLogger(), func(ctx context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("follow-up task never ran")
	}
}

func TestGoAppliesTimeout(t *testing.T) {
	expired := make(chan struct{})
	Go(context.Background(), 10*time.Millisecond, "test", testLogger(), func(ctx context.Context) error {
		<-ctx.Done()
		close(expired)
		return ctx.Err()
	})

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("task context never expired")
	}
}

func TestPoolProcessesTasks(t *testing.T) {
	pool := NewPool(context.Background(), 3, "test", time.Second, testLogger())

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
			return nil
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
	require.NoError(t, pool.Shutdown(time.Second))
}

func TestPoolSurvivesPanicsAndErrors(t *testing.T) {
	pool := NewPool(context.Background(), 1, "test", time.Second, testLogger())

	require.NoError(t, pool.Submit(func(ctx context.Context) error { panic("boom") }))
	require.NoError(t, pool.Submit(func(ctx context.Context) error { return errors.New("fail") }))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped processing after a panic")
	}
	require.NoError(t, pool.Shutdown(time.Second))
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2, "test", time.Second, testLogger())
	require.NoError(t, pool.Shutdown(time.Second))

	err := pool.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}
