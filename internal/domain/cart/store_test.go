package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Mocks ---

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	getErr  error
	setErr  error
	setGate chan struct{}
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	if m.setGate != nil {
		<-m.setGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memKV) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memKV) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core), logs
}

// --- Tests ---

func TestStore_SynchronousSave(t *testing.T) {
	kv := newMemKV()
	s := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, zap.NewNop())

	s.AddItem(snap("a", "12.00"), 2)

	stored, ok := kv.value("sess/orvelix-cart")
	require.True(t, ok)
	assert.Equal(t, string(Encode(s.Snapshot().Items)), stored)
}

func TestStore_RestoreRoundTrip(t *testing.T) {
	kv := newMemKV()
	first := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, zap.NewNop())
	first.AddItem(snap("a", "12.00"), 2)
	first.AddItem(snap("b", "3.50"), 1)

	second := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, zap.NewNop())
	second.Restore(context.Background())

	got := second.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.True(t, first.Snapshot().Total.Equal(got.Total))
}

func TestStore_RestoreCanonicalDoesNotRewrite(t *testing.T) {
	kv := newMemKV()
	kv.data[Key("sess")] = string(Encode(Add(Clear(), snap("a", "1"), 1).Items))

	s := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, zap.NewNop())
	s.Restore(context.Background())

	assert.Equal(t, 1, s.Snapshot().Count())
	assert.Zero(t, kv.setCount())
}

func TestStore_RestoreCorruptDocument(t *testing.T) {
	kv := newMemKV()
	kv.data[Key("sess")] = `{"not":"a cart"`

	lg, logs := newObservedLogger()
	s := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, lg)
	s.Restore(context.Background())

	assert.True(t, s.Snapshot().Empty())
	stored, _ := kv.value(Key("sess"))
	assert.Equal(t, "[]", stored, "corrupt document is replaced")
	assert.Equal(t, 1, logs.FilterMessage("Cart document unreadable, starting empty").Len())
}

func TestStore_RestoreSanitizedDocumentIsRewritten(t *testing.T) {
	kv := newMemKV()
	kv.data[Key("sess")] = `[{"id":"a","price":"2","quantity":"3"},{"id":"b","price":1,"quantity":0}]`

	s := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, zap.NewNop())
	s.Restore(context.Background())

	got := s.Snapshot()
	assert.Equal(t, []string{"a"}, ids(got))
	stored, _ := kv.value(Key("sess"))
	assert.Equal(t, string(Encode(got.Items)), stored)
}

func TestStore_LoadFailureStartsEmpty(t *testing.T) {
	kv := newMemKV()
	kv.getErr = errors.New("connection refused")

	lg, logs := newObservedLogger()
	s := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, lg)
	s.Restore(context.Background())

	assert.True(t, s.Snapshot().Empty())
	assert.Equal(t, 1, logs.FilterMessage("Cart load failed, starting empty").Len())
}

func TestStore_SaveFailureIsNotSurfaced(t *testing.T) {
	kv := newMemKV()
	kv.setErr = errors.New("quota exceeded")

	lg, logs := newObservedLogger()
	s := NewStore(Key("sess"), NewKVPersister(kv, "sess"), nil, lg)

	assert.NotPanics(t, func() { s.AddItem(snap("a", "5"), 1) })
	assert.Equal(t, 1, s.Snapshot().Count(), "mutation applies even when saving fails")
	assert.Equal(t, 1, logs.FilterMessage("Cart save failed").Len())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore(Key("sess"), NewKVPersister(newMemKV(), "sess"), nil, zap.NewNop())
	s.AddItem(snap("a", "5"), 1)

	got := s.Snapshot()
	got.Items[0].Quantity = 99

	assert.Equal(t, 1, s.Snapshot().Items[0].Quantity)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	wb := newTestWriteBehind(t, zap.NewNop())
	kv := newMemKV()
	s := NewStore(Key("sess"), NewKVPersister(kv, "sess"), wb, zap.NewNop())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddItem(snap("a", "1.10"), 1)
		}()
	}
	wg.Wait()
	require.NoError(t, wb.Flush(context.Background()))

	got := s.Snapshot()
	require.Len(t, got.Items, 1)
	assert.Equal(t, 50, got.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(55).Equal(got.Total), "total %s", got.Total)

	stored, _ := kv.value(Key("sess"))
	assert.Equal(t, string(Encode(got.Items)), stored)
}

func TestStore_Observe(t *testing.T) {
	s := NewStore(Key("sess"), NewKVPersister(newMemKV(), "sess"), nil, zap.NewNop())
	var ops []string
	s.observe = func(op string) { ops = append(ops, op) }

	s.AddItem(snap("a", "1"), 1)
	s.UpdateQuantity("a", 3)
	s.RemoveItem("a")
	s.Clear()

	assert.Equal(t, []string{"add", "update", "remove", "clear"}, ops)
}
