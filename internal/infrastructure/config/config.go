package config

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/crypto/bcrypt"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"

	SettingsFile  = "file"
	SettingsRedis = "redis"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`

	Token    TokenConfig
	Store    StoreConfig
	SQLite   SQLiteConfig
	Mongo    MongoConfig
	Settings SettingsConfig
	Redis    RedisConfig
}

type TokenConfig struct {
	// Secret signs session tokens. Empty means a random per-process key.
	Secret     string        `env:"JWT_SECRET"`
	Issuer     string        `env:"JWT_ISSUER,  default=authgate"`
	TTL        time.Duration `env:"TOKEN_TTL,   default=24h"`
	BcryptCost int           `env:"BCRYPT_COST, default=12"`
}

type StoreConfig struct {
	Driver    string        `env:"STORE_DRIVER,     default=sqlite"`
	OpTimeout time.Duration `env:"STORE_OP_TIMEOUT, default=5s"`
}

type SQLiteConfig struct {
	Path        string        `env:"SQLITE_PATH,         default=data/authgate.db"`
	BusyTimeout time.Duration `env:"SQLITE_BUSY_TIMEOUT, default=5s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=authgate"`
}

type SettingsConfig struct {
	Backend  string        `env:"SETTINGS_BACKEND,      default=file"`
	Path     string        `env:"SETTINGS_PATH,         default=data/settings.yaml"`
	CacheTTL time.Duration `env:"ENFORCEMENT_CACHE_TTL, default=5s"`
}

type RedisConfig struct {
	Addr        string `env:"REDIS_ADDR,         default=localhost:6379"`
	Password    string `env:"REDIS_PASSWORD"`
	DB          int    `env:"REDIS_DB,           default=0"`
	SettingsKey string `env:"REDIS_SETTINGS_KEY, default=authgate:settings:enforcement"`
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects driver names the binary cannot serve and out-of-range
// token settings.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreSQLite, StoreMongo:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Settings.Backend {
	case SettingsFile, SettingsRedis:
	default:
		return fmt.Errorf("unknown SETTINGS_BACKEND %q", c.Settings.Backend)
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.Token.TTL)
	}
	if c.Token.BcryptCost < bcrypt.MinCost || c.Token.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Token.BcryptCost)
	}
	return nil
}

// Parse reads configuration from the given lookuper.
func Parse(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load(log zerolog.Logger) *Config {
	cfg, err := Parse(context.Background(), envconfig.OsLookuper())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		panic(err)
	}
	return cfg
}
