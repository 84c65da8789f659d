package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stocks-trader/database"
)

// Config is read from the environment, after an optional .env file.
type Config struct {
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"data/trader.db"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	QuoteCacheTTL time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"5m"`

	JWTSecret       string        `env:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	Port            string        `env:"PORT" envDefault:"8080"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AlphaVantageKey      string        `env:"ALPHA_VANTAGE_API_KEY"`
	AlphaVantageURL      string        `env:"ALPHA_VANTAGE_URL" envDefault:"https://www.alphavantage.co/query"`
	QuoteRefreshInterval time.Duration `env:"QUOTE_REFRESH_INTERVAL" envDefault:"0s"`

	StoreMaxRetries   int           `env:"STORE_MAX_RETRIES" envDefault:"3"`
	StoreRetryInitial time.Duration `env:"STORE_RETRY_INITIAL" envDefault:"50ms"`

	Currency string `env:"CURRENCY" envDefault:"CNY"`
}

// Load reads .env when present and parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// InitLogger sets the logrus level from LOG_LEVEL, defaulting to info.
func (c Config) InitLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warnf("unknown LOG_LEVEL %q, using info", c.LogLevel)
		return
	}
	log.SetLevel(level)
}

// RetryPolicy is the store retry policy.
func (c Config) RetryPolicy() database.RetryPolicy {
	return database.RetryPolicy{MaxRetries: c.StoreMaxRetries, Initial: c.StoreRetryInitial}
}

// InitDB opens the database and the document store on top of it.
func (c Config) InitDB() (*gorm.DB, *database.GormStore, error) {
	if c.DBDriver == "sqlite" || c.DBDriver == "" {
		if dir := filepath.Dir(c.DBDSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	level := logger.Warn
	if log.IsLevelEnabled(log.DebugLevel) {
		level = logger.Info
	}
	db, err := database.Open(c.DBDriver, c.DBDSN, level)
	if err != nil {
		return nil, nil, err
	}
	store, err := database.NewGormStore(db, c.RetryPolicy())
	if err != nil {
		return nil, nil, err
	}
	return db, store, nil
}

// InitRedis connects to redis. It returns nil when REDIS_ADDR is empty.
func (c Config) InitRedis(ctx context.Context) (*redis.Client, error) {
	if c.RedisAddr == "" {
		log.Info("redis disabled: REDIS_ADDR is empty")
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", c.RedisAddr, err)
	}
	return rdb, nil
}
