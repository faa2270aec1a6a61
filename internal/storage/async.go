package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"anchorsync/internal/metrics"
	"anchorsync/pkg"
	"anchorsync/src/logger"
)

const DefaultWriteTimeout = 10 * time.Second

// AsyncWriter issues repository writes without blocking the caller.
// Failures are logged and counted, never returned.
type AsyncWriter struct {
	repo    TaskRepository
	base    context.Context
	timeout time.Duration

	wg     sync.WaitGroup
	failed atomic.Int64
}

// NewAsyncWriter binds writes to ctx; a non-positive timeout uses DefaultWriteTimeout
func NewAsyncWriter(ctx context.Context, repo TaskRepository, timeout time.Duration) *AsyncWriter {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &AsyncWriter{repo: repo, base: ctx, timeout: timeout}
}

func (w *AsyncWriter) Create(task pkg.Task) {
	w.run("create", task.ID, func(ctx context.Context) error {
		_, err := w.repo.Create(ctx, task)
		return err
	})
}

func (w *AsyncWriter) Update(task pkg.Task) {
	if task.ID == "" {
		logger.Debug().Str("op", "update").Msg("skipping write for task without identity")
		return
	}
	w.run("update", task.ID, func(ctx context.Context) error {
		return w.repo.Update(ctx, task)
	})
}

func (w *AsyncWriter) Delete(task pkg.Task) {
	if task.ID == "" {
		logger.Debug().Str("op", "delete").Msg("skipping write for task without identity")
		return
	}
	w.run("delete", task.ID, func(ctx context.Context) error {
		return w.repo.Delete(ctx, task)
	})
}

// Wait blocks until every issued write has finished
func (w *AsyncWriter) Wait() {
	w.wg.Wait()
}

// Failed returns how many writes have failed so far
func (w *AsyncWriter) Failed() int64 {
	return w.failed.Load()
}

func (w *AsyncWriter) run(op, id string, write func(ctx context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(w.base, w.timeout)
		defer cancel()

		start := time.Now()
		if err := write(ctx); err != nil {
			w.failed.Add(1)
			metrics.WriteFailures.WithLabelValues(op).Inc()
			logger.Warn().Err(err).Str("op", op).Str("task_id", id).Msg("repository write failed")
			return
		}
		logger.Debug().Str("op", op).Str("task_id", id).Dur("took", time.Since(start)).Msg("repository write done")
	}()
}
