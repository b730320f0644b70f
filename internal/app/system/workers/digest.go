// internal/app/system/workers/digest.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/organizer/internal/app/system/digest"
	"github.com/dalemusser/organizer/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// DigestRunner runs one digest batch.
type DigestRunner interface {
	Run(ctx context.Context) (digest.Result, error)
}

// DigestScheduler is a background worker that sends digests on an interval.
// Batches never overlap: the next tick is taken only after a batch returns.
type DigestScheduler struct {
	runner   DigestRunner
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewDigestScheduler creates a scheduler that calls runner every interval.
func NewDigestScheduler(runner DigestRunner, logger *zap.Logger, interval time.Duration) *DigestScheduler {
	return &DigestScheduler{
		runner:   runner,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *DigestScheduler) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("digest worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for a running batch to finish.
func (w *DigestScheduler) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("digest worker stopped")
}

func (w *DigestScheduler) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.batch()
		}
	}
}

func (w *DigestScheduler) batch() {
	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Batch(), w.log, "digest batch")
	defer cancel()

	// Stop cancels an in-flight batch between persons.
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	res, err := w.runner.Run(ctx)
	if err != nil {
		w.log.Error("digest batch failed", zap.Error(err))
		return
	}
	if res.Sent > 0 || res.Failed > 0 {
		w.log.Info("digest batch sent",
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed))
	}
}
