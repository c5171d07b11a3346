package otp

import (
	"context"
	"sync"
	"time"

	"github.com/tech-arch1tect/passcode/services/logging"
	"go.uber.org/zap"
)

type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Worker runs Cleanup on a fixed interval. A failed pass is logged and the
// next tick tries again.
type Worker struct {
	cleaner  Cleaner
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(cleaner Cleaner, interval time.Duration, logger *logging.Service) *Worker {
	return &Worker{
		cleaner:  cleaner,
		interval: interval,
		timeout:  interval,
		logger:   logger,
	}
}

func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.interval <= 0 {
		if w.logger != nil {
			w.logger.Info("otp cleanup worker disabled")
		}
		return
	}
	if w.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(ctx, w.done)

	if w.logger != nil {
		w.logger.Info("started otp cleanup worker", zap.Duration("interval", w.interval))
	}
}

// Stop cancels the worker and waits for an in-flight pass to return, or for
// ctx to end.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		if w.logger != nil {
			w.logger.Info("stopped otp cleanup worker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	removed, err := w.cleaner.Cleanup(ctx)
	if err != nil {
		if w.logger != nil {
			w.logger.Error("otp cleanup pass failed", zap.Error(err), zap.Int("removed", removed))
		}
		return removed, err
	}

	if w.logger != nil && removed > 0 {
		w.logger.Debug("otp cleanup pass completed", zap.Int("removed", removed))
	}
	return removed, nil
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}
