package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// StorageKey is the key under which a session's cart lines are stored.
const StorageKey = "orvelix-cart"

// Key returns the storage key of the cart owned by sessionID.
func Key(sessionID string) string {
	return sessionID + "/" + StorageKey
}

// Persister is the durable side-channel of a single cart.
type Persister interface {
	// Load returns the stored document, or nil when nothing was stored.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// KV is string key-value storage shared by all carts.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// KVPersister persists one cart under a fixed key of a KV.
type KVPersister struct {
	kv  KV
	key string
}

var _ Persister = (*KVPersister)(nil)

// NewKVPersister returns a Persister storing the cart of sessionID in kv.
func NewKVPersister(kv KV, sessionID string) *KVPersister {
	return &KVPersister{kv: kv, key: Key(sessionID)}
}

// Load implements Persister.
func (p *KVPersister) Load(ctx context.Context) ([]byte, error) {
	v, ok, err := p.kv.Get(ctx, p.key)
	if err != nil {
		return nil, errors.Wrapf(err, "get %q", p.key)
	}
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

// Save implements Persister.
func (p *KVPersister) Save(ctx context.Context, data []byte) error {
	if err := p.kv.Set(ctx, p.key, string(data)); err != nil {
		return errors.Wrapf(err, "set %q", p.key)
	}
	return nil
}
