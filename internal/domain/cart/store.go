package cart

import (
	"bytes"
	"context"
	"sync"

	"go.uber.org/zap"
)

// Store owns the cart of one session. Mutations are serialized by a mutex,
// applied through the pure transitions in this package, and followed by a
// write-behind save of the full line list. Mutations never fail.
type Store struct {
	key       string
	persister Persister
	wb        *WriteBehind
	lg        *zap.Logger
	observe   func(op string)

	mu    sync.RWMutex
	state State
}

// NewStore returns an empty Store persisting through p under key. When wb is
// nil saves run synchronously after each mutation.
func NewStore(key string, p Persister, wb *WriteBehind, lg *zap.Logger) *Store {
	return &Store{
		key:       key,
		persister: p,
		wb:        wb,
		lg:        lg,
		observe:   func(string) {},
		state:     Clear(),
	}
}

// Restore replaces the in-memory cart with the persisted one. Unreadable
// storage yields an empty cart.
func (s *Store) Restore(ctx context.Context) {
	data, err := s.persister.Load(ctx)
	if err != nil {
		s.lg.Warn("Cart load failed, starting empty", zap.String("key", s.key), zap.Error(err))
		data = nil
	}
	s.RestoreFrom(data)
}

// RestoreFrom replaces the in-memory cart with the one encoded in data. The
// sanitized result is written back when it differs from data, so a corrupt
// document is overwritten once.
func (s *Store) RestoreFrom(data []byte) {
	state := Clear()
	lines, err := Decode(data)
	if err != nil {
		s.lg.Warn("Cart document unreadable, starting empty", zap.String("key", s.key), zap.Error(err))
	} else {
		state = Load(lines)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	if encoded := Encode(state.Items); len(data) > 0 && !bytes.Equal(encoded, data) {
		s.schedule(encoded)
	}
}

// AddItem merges quantity units of item into the cart.
func (s *Store) AddItem(item Snapshot, quantity int) {
	s.apply("add", func(st State) State { return Add(st, item, quantity) })
}

// RemoveItem deletes the line for productID, if any.
func (s *Store) RemoveItem(productID string) {
	s.apply("remove", func(st State) State { return Remove(st, productID) })
}

// UpdateQuantity sets the quantity for productID; non-positive removes it.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	s.apply("update", func(st State) State { return UpdateQuantity(st, productID, quantity) })
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.apply("clear", func(State) State { return Clear() })
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) apply(op string, fn func(State) State) {
	s.mu.Lock()
	s.state = fn(s.state)
	// Scheduling under the lock keeps saves in mutation order.
	s.schedule(Encode(s.state.Items))
	s.mu.Unlock()

	s.observe(op)
}

func (s *Store) schedule(data []byte) {
	if s.wb != nil {
		s.wb.Schedule(s.key, s.persister, data)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultSaveTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, data); err != nil {
		s.lg.Warn("Cart save failed", zap.String("key", s.key), zap.Error(err))
	}
}
