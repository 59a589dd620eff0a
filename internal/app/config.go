package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orvelix/internal/domain/checkout"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORVELIX_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (ORVELIX_API_KEY_PEPPER)" flag:"api-key-pepper"`
	// AdminKey, when set, is provisioned as an admin API key on startup.
	AdminKey  string `usage:"Bootstrap admin API key (ORVELIX_ADMIN_KEY)" flag:"admin-key"`
	Storage   StorageConfig
	Cart      CartConfig
	Checkout  CheckoutConfig
	Stripe    StripeConfig
	Paypal    PaypalConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects where products, orders and carts live.
type StorageConfig struct {
	// Backend is postgres for everything in PostgreSQL, sqlite for carts in
	// an SQLite file with the catalog and orders in memory, or memory.
	Backend     string `default:"postgres" usage:"Storage backend: postgres, sqlite or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORVELIX_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxConns    int    `default:"10" usage:"PostgreSQL pool size"`
	SQLitePath  string `env:"SQLITE_PATH" default:"orvelix-carts.db" usage:"SQLite cart database file" flag:"sqlite-path"`
}

// CartConfig controls cart residency and the session cookie.
type CartConfig struct {
	Resident      int           `default:"10000" usage:"Carts kept in memory"`
	MaxPending    int           `default:"1000" usage:"Queued cart saves before readiness fails"`
	SessionMaxAge time.Duration `default:"720h" usage:"Session cookie lifetime"`
	SecureCookie  bool          `default:"false" usage:"Mark the session cookie Secure" flag:"secure-cookie"`
}

// CheckoutConfig holds the pricing rules. Money values are decimal strings.
type CheckoutConfig struct {
	FreeShippingOver string `default:"100" usage:"Subtotal above which shipping is free"`
	ShippingFee      string `default:"15.99" usage:"Flat shipping fee"`
	TaxRate          string `default:"0.08" usage:"Tax rate applied to the subtotal"`
	Currency         string `default:"usd" usage:"ISO currency code"`
	MinCardAmount    int64  `default:"50" usage:"Smallest card charge in minor units"`
}

// Rules parses c into checkout rules.
func (c CheckoutConfig) Rules() (checkout.Rules, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse checkout %s", name)
		}
		if d.IsNegative() {
			return decimal.Zero, errors.Errorf("checkout %s must not be negative", name)
		}
		return d, nil
	}

	var (
		r   = checkout.Rules{Currency: c.Currency, MinCardAmount: c.MinCardAmount}
		err error
	)
	if r.FreeShippingOver, err = parse("free shipping threshold", c.FreeShippingOver); err != nil {
		return r, err
	}
	if r.ShippingFee, err = parse("shipping fee", c.ShippingFee); err != nil {
		return r, err
	}
	if r.TaxRate, err = parse("tax rate", c.TaxRate); err != nil {
		return r, err
	}
	return r, nil
}

// StripeConfig enables card payments when SecretKey is set.
type StripeConfig struct {
	SecretKey         string `usage:"Stripe secret key (ORVELIX_STRIPE_SECRET_KEY or STRIPE_SECRET_KEY)"`
	BaseURL           string `default:"" usage:"Override the Stripe API URL"`
	MaxNetworkRetries int64  `default:"2" usage:"Stripe client retries"`
}

// PaypalConfig enables wallet payments when ClientID and Secret are set.
type PaypalConfig struct {
	ClientID  string `env:"CLIENT_ID" usage:"PayPal REST client id"`
	Secret    string `usage:"PayPal REST secret"`
	BaseURL   string `default:"https://api-m.sandbox.paypal.com" usage:"PayPal API URL"`
	ReturnURL string `default:"" usage:"Where PayPal returns the customer after approval"`
	CancelURL string `default:"" usage:"Where PayPal returns the customer on cancel"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (the session cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "ORVELIX",
		Files:     []string{"config.yaml", "/etc/orvelix/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, ac)
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set ORVELIX_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if _, err := c.Checkout.Rules(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ORVELIX_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Stripe.SecretKey == "" {
		c.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
