package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/orvelix/db"
	"github.com/xenking/orvelix/internal/domain/auth"
	"github.com/xenking/orvelix/internal/domain/cart"
	"github.com/xenking/orvelix/internal/domain/order"
	"github.com/xenking/orvelix/internal/domain/product"
	"github.com/xenking/orvelix/internal/storage/memory"
	"github.com/xenking/orvelix/internal/storage/postgres"
	"github.com/xenking/orvelix/internal/storage/sqlite"
	"github.com/xenking/orvelix/pkg/health"
)

// storage is the set of repositories selected by the storage backend.
type storage struct {
	products product.Repository
	orders   order.Repository
	keys     auth.Repository
	carts    cart.KV
	// pinger is nil for the memory backend.
	pinger health.Pinger
	close  func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg StorageConfig, bootstrap []auth.APIKeyInfo) (*storage, error) {
	switch cfg.Backend {
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.MaxConns))
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		keys := postgres.NewAPIKeyRepository(pool)
		for _, k := range bootstrap {
			if err := keys.Upsert(ctx, k); err != nil {
				pool.Close()
				return nil, errors.Wrapf(err, "provision api key %s", k.ID)
			}
		}
		lg.Info("Storage ready", zap.String("backend", cfg.Backend))
		return &storage{
			products: postgres.NewProductRepository(pool),
			orders:   postgres.NewOrderRepository(pool),
			keys:     keys,
			carts:    postgres.NewKV(pool),
			pinger:   pool,
			close:    pool.Close,
		}, nil

	case BackendSQLite:
		kv, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		st, err := memoryStorage(bootstrap)
		if err != nil {
			_ = kv.Close()
			return nil, err
		}
		st.carts = kv
		st.pinger = kv
		st.close = func() {
			if err := kv.Close(); err != nil {
				lg.Warn("Close sqlite", zap.Error(err))
			}
		}
		lg.Info("Storage ready", zap.String("backend", cfg.Backend), zap.String("path", cfg.SQLitePath))
		return st, nil

	case BackendMemory:
		st, err := memoryStorage(bootstrap)
		if err != nil {
			return nil, err
		}
		lg.Warn("Storage is in memory, nothing survives a restart")
		return st, nil

	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// memoryStorage seeds an in-memory catalog from the embedded seed file.
func memoryStorage(bootstrap []auth.APIKeyInfo) (*storage, error) {
	catalog, err := product.DecodeCatalog(db.Catalog)
	if err != nil {
		return nil, errors.Wrap(err, "load seed catalog")
	}
	return &storage{
		products: memory.NewProductRepository(catalog),
		orders:   memory.NewOrderRepository(),
		keys:     memory.NewAPIKeyRepository(bootstrap...),
		carts:    memory.NewKV(),
		close:    func() {},
	}, nil
}

// bootstrapKeys returns the API keys provisioned on startup.
func bootstrapKeys(cfg *Config) []auth.APIKeyInfo {
	if cfg.AdminKey == "" {
		return nil
	}
	return []auth.APIKeyInfo{{
		ID:      "bootstrap-admin",
		KeyHash: auth.Hash([]byte(cfg.APIKeyPepper), cfg.AdminKey),
		Name:    "Bootstrap admin",
		Scopes:  []string{auth.ScopeAdmin},
	}}
}
