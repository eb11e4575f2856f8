// Shared bootstrap for all subcommands: environment loading, logging setup,
// database and cache construction. Every command goes through bootstrap() so
// a pipeline run and the HTTP server see identical configuration.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/cache"
	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/provider"
	"github.com/dentalops/recallbridge/internal/repo"
	"github.com/dentalops/recallbridge/internal/sysutil"
)

// bootstrap loads .env (best effort), parses configuration, and configures
// the global logger.
func bootstrap() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return cfg, nil
}

// openDB opens the SQLite store and applies the schema.
func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// newDedupeCache picks the webhook dedupe cache backend: Redis when
// REDIS_ADDR is configured, otherwise in-process memory. Memory is fine for a
// single instance; the audit-log window is the durable backstop either way.
func newDedupeCache(cfg config.Config) cache.TTLCache {
	if cfg.Redis.Addr == "" {
		return cache.NewMemory()
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis dedupe cache")
	return cache.NewRedis(rc, "rb:dedupe")
}

// newSender builds the outbound SMS client.
func newSender(cfg config.Config) provider.Sender {
	return provider.NewTwilioClient(cfg.Provider)
}
