package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campuscms/campuscms/pkg/observability"
)

// Go runs fn in a goroutine with a timeout and panic recovery. Use
// instead of a bare `go func()` for work detached from a request.
func Go(parent context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// Pool is a bounded worker pool with graceful shutdown. Tasks carry
// their own timeout; a panicking task takes down only its worker slot
// for that task, not the pool.
type Pool struct {
	taskName string
	timeout  time.Duration
	logger   *observability.Logger

	workCh chan func(context.Context) error
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewPool starts workers goroutines processing submitted tasks
func NewPool(ctx context.Context, workers int, taskName string, timeout time.Duration, logger *observability.Logger) *Pool {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.worker()
			}()
		}
		wg.Wait()
		close(p.doneCh)
	}()

	return p
}

// Submit queues a task, blocking when all workers are busy and the
// buffer is full. Returns an error once the pool is shut down.
func (p *Pool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool %q shut down", p.taskName)
	case p.workCh <- fn:
		return nil
	}
}

// Shutdown stops accepting tasks and waits up to timeout for in-flight
// work to finish
func (p *Pool) Shutdown(timeout time.Duration) error {
	var err error
	p.once.Do(func() {
		p.cancel()
		select {
		case <-p.doneCh:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q shutdown timed out after %v", p.taskName, timeout)
		}
	})
	return err
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn := <-p.workCh:
			p.runTask(fn)
		}
	}
}

func (p *Pool) runTask(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer observability.RecoverPanic(p.logger, p.taskName)

	if err := fn(ctx); err != nil {
		p.logger.WithError(err).WithField("task", p.taskName).Warn("pool task failed")
	}
}
