package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/efreitasn/simmarket/internal/domain"
)

// Config holds all runtime configuration for the simulated market.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver string         `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath  string         `envconfig:"SQLITE_PATH" default:"simmarket.db"`
	Postgres    PostgresConfig `ignored:"true"`

	Volatility      float64       `envconfig:"VOLATILITY" default:"0.02"`
	InitialPrice    float64       `envconfig:"INITIAL_PRICE" default:"100"`
	DefaultBalance  float64       `envconfig:"DEFAULT_BALANCE" default:"10000"`
	AdminIDs        []string      `envconfig:"ADMIN_IDS"`
	UpdateInterval  time.Duration `envconfig:"UPDATE_INTERVAL" default:"180s"`
	TickInterval    time.Duration `envconfig:"TICK_INTERVAL" default:"1s"`
	ErrorBackoff    time.Duration `envconfig:"ERROR_BACKOFF" default:"5s"`
	NewsProbability float64       `envconfig:"NEWS_PROBABILITY" default:"0.3"`

	TimeSyncURL     string        `envconfig:"TIME_SYNC_URL" default:"http://www.baidu.com"`
	TimeSyncTimeout time.Duration `envconfig:"TIME_SYNC_TIMEOUT" default:"3s"`

	MarketFile string `envconfig:"MARKET_FILE"`

	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Filled from MARKET_FILE, or the built-in defaults.
	Symbols       []domain.Symbol `ignored:"true"`
	NewsTemplates []string        `ignored:"true"`
}

// PostgresConfig holds a single PostgreSQL connection, read from PG_*
// variables. Fields carry no envconfig tag so lookups never fall back to
// unprefixed names like USER or PORT.
type PostgresConfig struct {
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	Name     string `default:"simmarket"`
	User     string `default:"simmarket"`
	Password string
	SSLMode  string `split_words:"true" default:"prefer"`
	MaxConns int    `split_words:"true" default:"10"`
	MinConns int    `split_words:"true" default:"1"`
}

// Load reads an optional .env file, maps environment variables onto a
// Config, applies the market file if one is configured, and validates the
// result.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := envconfig.Process("PG", &cfg.Postgres); err != nil {
		return nil, fmt.Errorf("read postgres environment: %w", err)
	}

	cfg.Symbols = DefaultSymbols(cfg.InitialPrice)
	cfg.NewsTemplates = DefaultNewsTemplates()

	if cfg.MarketFile != "" {
		mf, err := LoadMarketFile(cfg.MarketFile)
		if err != nil {
			return nil, err
		}
		cfg.apply(mf)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsAdmin reports whether id is listed in AdminIDs.
func (c *Config) IsAdmin(id string) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// Validate checks every value and returns an error for the first invalid one.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	switch c.StoreDriver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %q, must be one of: memory, sqlite, postgres", c.StoreDriver)
	}
	if c.Volatility < 0 {
		return fmt.Errorf("invalid VOLATILITY: %v, must be >= 0", c.Volatility)
	}
	if c.InitialPrice <= 0 {
		return fmt.Errorf("invalid INITIAL_PRICE: %v, must be > 0", c.InitialPrice)
	}
	if c.DefaultBalance < 0 {
		return fmt.Errorf("invalid DEFAULT_BALANCE: %v, must be >= 0", c.DefaultBalance)
	}
	if c.NewsProbability < 0 || c.NewsProbability > 1 {
		return fmt.Errorf("invalid NEWS_PROBABILITY: %v, must be between 0 and 1", c.NewsProbability)
	}
	for name, d := range map[string]time.Duration{
		"UPDATE_INTERVAL": c.UpdateInterval,
		"TICK_INTERVAL":   c.TickInterval,
		"ERROR_BACKOFF":   c.ErrorBackoff,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %v, must be > 0", name, d)
		}
	}
	if c.StoreDriver == "postgres" && c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("invalid PG_MIN_CONNS: %d, must not exceed PG_MAX_CONNS %d", c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	if _, err := domain.NewSymbolSet(c.Symbols); err != nil {
		return fmt.Errorf("invalid symbols: %w", err)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
