package cart

import (
	"context"
	"runtime"
	"sync"
	"weak"

	"github.com/go-faster/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultResidentCarts is the number of carts kept in memory by default.
const DefaultResidentCarts = 10_000

// Manager hands out the Store of each session. Stores are kept in an LRU;
// an evicted cart is restored from storage, or from the write-behind queue
// when its latest save is still pending, on next access.
//
// A Store evicted while a request still holds it stays reachable through a
// weak reference and is put back on next access, so a session never has two
// live Stores saving over each other.
type Manager struct {
	kv KV
	wb *WriteBehind
	lg *zap.Logger

	mu      sync.Mutex
	stores  *lru.Cache[string, *Store]
	evicted map[string]weak.Pointer[Store]

	mutations metric.Int64Counter
}

// NewManager creates a Manager over kv. resident bounds the number of carts
// held in memory; zero selects DefaultResidentCarts.
func NewManager(kv KV, wb *WriteBehind, lg *zap.Logger, meter metric.Meter, resident int) (*Manager, error) {
	if resident <= 0 {
		resident = DefaultResidentCarts
	}
	m := &Manager{
		kv:      kv,
		wb:      wb,
		lg:      lg,
		evicted: make(map[string]weak.Pointer[Store]),
	}
	// Evictions only happen inside stores.Add, which runs with m.mu held.
	stores, err := lru.NewWithEvict(resident, func(key string, s *Store) {
		m.evicted[key] = weak.Make(s)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create cart cache")
	}
	m.stores = stores
	mutations, err := meter.Int64Counter("cart.mutations",
		metric.WithDescription("Cart state transitions by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}

	m.mutations = mutations
	return m, nil
}

// Get returns the Store of sessionID, restoring it on first access.
func (m *Manager) Get(ctx context.Context, sessionID string) *Store {
	key := Key(sessionID)

	m.mu.Lock()
	s, ok := m.resident(key)
	m.mu.Unlock()
	if ok {
		return s
	}

	s = NewStore(key, NewKVPersister(m.kv, sessionID), m.wb, m.lg)
	s.observe = func(op string) {
		m.mutations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
	}
	runtime.AddCleanup(s, m.forget, evictedRef{key: key, ptr: weak.Make(s)})
	if data, pending := m.pendingSave(key); pending {
		s.RestoreFrom(data)
	} else {
		s.Restore(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have restored the same cart meanwhile.
	if existing, ok := m.resident(key); ok {
		return existing
	}
	m.stores.Add(key, s)
	return s
}

// resident returns the live Store for key, reviving an evicted one that is
// still referenced. m.mu must be held.
func (m *Manager) resident(key string) (*Store, bool) {
	if s, ok := m.stores.Get(key); ok {
		return s, true
	}
	ptr, ok := m.evicted[key]
	if !ok {
		return nil, false
	}
	delete(m.evicted, key)
	s := ptr.Value()
	if s == nil {
		return nil, false
	}
	m.stores.Add(key, s)
	return s, true
}

type evictedRef struct {
	key string
	ptr weak.Pointer[Store]
}

// forget drops the weak reference of a collected Store.
func (m *Manager) forget(ref evictedRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evicted[ref.key] == ref.ptr {
		delete(m.evicted, ref.key)
	}
}

// Snapshot returns the current cart of sessionID.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) State {
	return m.Get(ctx, sessionID).Snapshot()
}

// Clear empties the cart of sessionID.
func (m *Manager) Clear(ctx context.Context, sessionID string) {
	m.Get(ctx, sessionID).Clear()
}

// Resident returns the number of carts in the LRU.
func (m *Manager) Resident() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores.Len()
}

func (m *Manager) pendingSave(key string) ([]byte, bool) {
	if m.wb == nil {
		return nil, false
	}
	return m.wb.Pending(key)
}
