package background

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Background runs fire-and-forget work (event publishing, cache warming)
// outside the request and lets shutdown wait for it.
type Background struct {
	log logrus.FieldLogger
	wg  sync.WaitGroup
	mu  sync.Mutex
	off bool
}

func New(log logrus.FieldLogger) *Background {
	return &Background{log: log}
}

// Go runs fn in its own goroutine. After Shutdown has been called new work
// is dropped and logged.
func (b *Background) Go(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.off {
		b.mu.Unlock()
		b.log.WithField("task", name).Warn("background task dropped during shutdown")
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				b.log.WithField("task", name).Errorf("background task panic: %v", rec)
			}
		}()

		if err := fn(context.Background()); err != nil {
			b.log.WithField("task", name).WithError(err).Error("background task failed")
		}
	}()
}

// Shutdown stops accepting work and waits for running tasks or ctx.
func (b *Background) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.off = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}
