// Package config loads runtime configuration from an optional YAML file,
// a .env file and environment variables, in that order of precedence
// (environment wins). Values are defaulted and validated at load time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v2"
)

// Config holds all runtime configuration for the paper-trading server.
type Config struct {
	Addr         string             `yaml:"addr"`
	JWTSecret    string             `yaml:"jwt_secret"`
	StoreBackend string             `yaml:"store_backend"` // memory | file | redis | postgres
	DataDir      string             `yaml:"data_dir"`
	RedisAddr    string             `yaml:"redis_addr"`
	PostgresConn string             `yaml:"postgres_conn"`
	FeedMode     string             `yaml:"feed_mode"` // ws | poll
	StreamURL    string             `yaml:"stream_url"`
	RESTURL      string             `yaml:"rest_url"`
	PollInterval string             `yaml:"poll_interval"`
	Symbols      []string           `yaml:"symbols"`
	Spreads      map[string]float64 `yaml:"spreads"`
	StaticDir    string             `yaml:"static_dir"`

	ParsedPollInterval time.Duration `yaml:"-"`
}

// DefaultSymbols are the traded base assets, all quoted in USDT.
var DefaultSymbols = []string{"BTC", "ETH", "SOL", "BNB", "ADA", "XRP", "DOGE"}

// Load reads configuration from filename (skipped when absent), applies
// .env and environment overrides, fills defaults and validates.
func Load(filename string) (*Config, error) {
	if filename != "" {
		envPath := filepath.Join(filepath.Dir(filename), ".env")
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{}
	if filename != "" {
		file, err := os.Open(filename)
		if err == nil {
			err = yaml.NewDecoder(file).Decode(cfg)
			file.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	interval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poll_interval: %w", err)
	}
	cfg.ParsedPollInterval = interval

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Addr, "ADDR")
	setStr(&cfg.JWTSecret, "JWT_SECRET")
	setStr(&cfg.StoreBackend, "STORE_BACKEND")
	setStr(&cfg.DataDir, "DATA_DIR")
	setStr(&cfg.RedisAddr, "REDIS_ADDR")
	setStr(&cfg.PostgresConn, "POSTGRES_CONN")
	setStr(&cfg.FeedMode, "FEED_MODE")
	setStr(&cfg.PollInterval, "POLL_INTERVAL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-me"
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "file"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.FeedMode == "" {
		cfg.FeedMode = "ws"
	}
	if cfg.PollInterval == "" {
		cfg.PollInterval = "2s"
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if cfg.Spreads == nil {
		cfg.Spreads = map[string]float64{}
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "frontend"
	}
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "memory", "file", "redis", "postgres":
	default:
		return fmt.Errorf("invalid store_backend: %q, must be one of: memory, file, redis, postgres", c.StoreBackend)
	}
	switch c.FeedMode {
	case "ws", "poll":
	default:
		return fmt.Errorf("invalid feed_mode: %q, must be one of: ws, poll", c.FeedMode)
	}
	if c.StoreBackend == "postgres" && c.PostgresConn == "" {
		return fmt.Errorf("postgres_conn is required with the postgres backend")
	}
	for pair, spread := range c.Spreads {
		if spread < 0 || spread >= 1 {
			return fmt.Errorf("invalid spread for %s: %f", pair, spread)
		}
	}
	return nil
}
