package cart

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultSaveTimeout bounds a single background save.
const DefaultSaveTimeout = 5 * time.Second

type pendingWrite struct {
	persister Persister
	data      []byte
}

// WriteBehind saves cart documents from a single background goroutine.
// Writes are coalesced per key: when a key is scheduled again before its
// previous write started, only the latest document is saved. Failed saves
// are logged and counted and never reported to the code that scheduled them.
type WriteBehind struct {
	lg      *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	pending  map[string]pendingWrite
	order    []string
	inflight map[string]pendingWrite
	closed   bool

	wake  chan struct{}
	flush chan chan struct{}
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	saved    metric.Int64Counter
	failures metric.Int64Counter
}

// NewWriteBehind starts the background writer. Stop it with Close.
func NewWriteBehind(lg *zap.Logger, meter metric.Meter) (*WriteBehind, error) {
	saved, err := meter.Int64Counter("cart.persist.saved",
		metric.WithDescription("Cart documents written to storage"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("cart.persist.failures",
		metric.WithDescription("Cart documents that failed to save"),
	)
	if err != nil {
		return nil, err
	}

	w := &WriteBehind{
		lg:       lg,
		timeout:  DefaultSaveTimeout,
		pending:  make(map[string]pendingWrite),
		inflight: make(map[string]pendingWrite),
		wake:     make(chan struct{}, 1),
		flush:    make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		saved:    saved,
		failures: failures,
	}
	go w.run()
	return w, nil
}

// Schedule queues data to be saved through p under key. After Close the
// save happens synchronously on the caller's goroutine.
func (w *WriteBehind) Schedule(key string, p Persister, data []byte) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.save(key, pendingWrite{persister: p, data: data})
		return
	}
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = pendingWrite{persister: p, data: data}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Pending returns the newest document scheduled for key that may not have
// reached storage yet.
func (w *WriteBehind) Pending(key string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pw, ok := w.pending[key]; ok {
		return pw.data, true
	}
	if pw, ok := w.inflight[key]; ok {
		return pw.data, true
	}
	return nil, false
}

// Len returns the number of keys waiting for or undergoing a save.
func (w *WriteBehind) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) + len(w.inflight)
}

// Flush blocks until every write scheduled before the call has been
// attempted.
func (w *WriteBehind) Flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case w.flush <- reply:
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains outstanding writes and stops the background goroutine.
func (w *WriteBehind) Close(ctx context.Context) error {
	w.once.Do(func() {
		close(w.stop)
	})

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WriteBehind) run() {
	defer close(w.done)

	for {
		select {
		case <-w.wake:
			w.drain()
		case reply := <-w.flush:
			w.drain()
			close(reply)
		case <-w.stop:
			// Writes scheduled while draining still go through the queue;
			// closed flips only once it is observed empty.
			for {
				w.drain()
				w.mu.Lock()
				if len(w.pending) == 0 {
					w.closed = true
					w.mu.Unlock()
					return
				}
				w.mu.Unlock()
			}
		}
	}
}

// drain saves batches until nothing is pending.
func (w *WriteBehind) drain() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return
		}
		order := w.order
		w.inflight, w.pending = w.pending, make(map[string]pendingWrite)
		w.order = nil
		w.mu.Unlock()

		for _, key := range order {
			w.mu.Lock()
			pw := w.inflight[key]
			w.mu.Unlock()

			w.save(key, pw)

			w.mu.Lock()
			delete(w.inflight, key)
			w.mu.Unlock()
		}
	}
}

func (w *WriteBehind) save(key string, pw pendingWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := pw.persister.Save(ctx, pw.data); err != nil {
		w.failures.Add(ctx, 1)
		w.lg.Warn("Cart save failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	w.saved.Add(ctx, 1)
}
