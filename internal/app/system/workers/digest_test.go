package workers_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/organizer/internal/app/system/digest"
	"github.com/dalemusser/organizer/internal/app/system/workers"
	"go.uber.org/zap"
)

type countingRunner struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
}

func (c *countingRunner) Run(ctx context.Context) (digest.Result, error) {
	if c.running.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.running.Add(-1)
	c.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return digest.Result{Sent: 1}, nil
}

func TestDigestScheduler_RunsOnInterval(t *testing.T) {
	r := &countingRunner{}
	w := workers.NewDigestScheduler(r, zap.NewNop(), 2*time.Millisecond)
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	w.Stop()

	if n := r.calls.Load(); n < 3 {
		t.Errorf("calls: got %d, want at least 3", n)
	}
	if r.overlap.Load() {
		t.Error("batches overlapped")
	}
}

func TestDigestScheduler_StopWithoutTick(t *testing.T) {
	r := &countingRunner{}
	w := workers.NewDigestScheduler(r, zap.NewNop(), time.Hour)
	w.Start()
	w.Stop()

	if n := r.calls.Load(); n != 0 {
		t.Errorf("calls: got %d, want 0", n)
	}
}
