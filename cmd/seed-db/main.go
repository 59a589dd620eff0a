package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orvelix/db"
	"github.com/xenking/orvelix/internal/domain/auth"
	"github.com/xenking/orvelix/internal/domain/product"
	"github.com/xenking/orvelix/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "products JSON file, optionally .gz (default: embedded catalog)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to provision (or ORVELIX_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORVELIX_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ORVELIX_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ORVELIX_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	data, err := readCatalog(productsFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), data); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if apiKey == "" {
		slog.Info("no api key given, skipping admin key")
		return nil
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "seed-admin",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "Seeded admin",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("seeded admin api key", slog.String("id", "seed-admin"))

	return nil
}

// readCatalog returns the contents of path, decompressing .gz files. An empty
// path selects the embedded catalog.
func readCatalog(path string) ([]byte, error) {
	if path == "" {
		slog.Info("using embedded catalog")
		return db.Catalog, nil
	}

	slog.Info("reading products file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}
	return data, nil
}

// seedProducts validates the catalog and upserts it in file order, which is
// the order the storefront lists products in.
func seedProducts(ctx context.Context, repo *postgres.ProductRepository, data []byte) error {
	products, err := product.DecodeCatalog(data)
	if err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	valid := make(chan *product.Product)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(valid)
		for i := range products {
			p := &products[i]
			if err := p.Validate(); err != nil {
				return errors.Wrapf(err, "product %q", p.ID)
			}
			select {
			case valid <- p:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		for p := range valid {
			if err := repo.Upsert(ctx, p); err != nil {
				return err
			}
			slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
		}
		return nil
	})
	return g.Wait()
}
