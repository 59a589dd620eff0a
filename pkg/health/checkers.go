package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when the most recent stop-the-world GC pause exceeds
// threshold. Long pauses point at memory pressure or an oversized heap.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) == 0 {
			return nil
		}
		if pause := stats.Pause[0]; pause > threshold {
			return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
		}
		return nil
	}
}

// Pinger is a backend that can be checked for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// QueueDepthCheck fails when depth reports more than limit queued items,
// which means a background writer has fallen behind its storage.
func QueueDepthCheck(depth func() int, limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := depth(); n > limit {
			return errors.Errorf("queue depth %d exceeds limit %d", n, limit)
		}
		return nil
	}
}
