// Package scheduler runs periodic background tasks until their context is
// cancelled.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of periodic work. Errors are logged, never fatal: the
// next tick runs regardless.
type Task func(ctx context.Context) error

// Scheduler owns the goroutines running periodic tasks.
type Scheduler struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New returns an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Every runs task immediately and then on each interval tick until ctx is
// cancelled.
func (scheduler *Scheduler) Every(ctx context.Context, name string, interval time.Duration, task Task) {
	scheduler.wg.Add(1)
	go func() {
		defer scheduler.wg.Done()
		scheduler.runOnce(ctx, name, task)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				scheduler.logger.Info("background task stopped", zap.String("task", name))
				return
			case <-ticker.C:
				scheduler.runOnce(ctx, name, task)
			}
		}
	}()
}

// Wait blocks until every task goroutine has exited.
func (scheduler *Scheduler) Wait() {
	scheduler.wg.Wait()
}

func (scheduler *Scheduler) runOnce(ctx context.Context, name string, task Task) {
	started := time.Now()
	if err := task(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		scheduler.logger.Error("background task failed",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return
	}
	scheduler.logger.Debug("background task finished",
		zap.String("task", name),
		zap.Duration("elapsed", time.Since(started)))
}
