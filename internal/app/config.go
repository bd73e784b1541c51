package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// Config holds the complete application configuration, loadable from
// environment variables (RENTAL_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Storage driver: postgres or bolt"`
	DatabaseURL string `usage:"PostgreSQL connection URL (RENTAL_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	BoltPath    string `default:"rental.db" usage:"BoltDB file path for the bolt driver" flag:"bolt-path"`
}

// JobsConfig controls the background refresh of active rentals.
type JobsConfig struct {
	Enabled         bool          `default:"true" usage:"Run scheduled jobs"`
	RefreshSchedule string        `default:"0 5 0 * * *" usage:"Cron spec (with seconds, UTC) for the active rental refresh"`
	RefreshTimeout  time.Duration `default:"10m" usage:"Upper bound for one refresh run"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, applies platform defaults and validates the storage section.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RENTAL",
		Files:     []string{"config.yaml", "/etc/rental/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
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
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set RENTAL_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverBolt:
		if c.Storage.BoltPath == "" {
			return errors.New("bolt path is required for the bolt driver")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Jobs.Enabled && c.Jobs.RefreshSchedule == "" {
		return errors.New("jobs enabled without a refresh schedule")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) such as DATABASE_URL and PORT onto the configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
