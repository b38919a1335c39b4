package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// processConfig holds the process-level settings cmd/dbiserver needs
// to stand up a Server with one or more pools: which backend to talk
// to, its DSN, and the pool policy knobs from pool.Config. The
// flag-plus-environment-override pattern (flags win, env vars are the
// fallback, compiled-in defaults are the floor) is lifted from
// burrowctl/server/config.go's LoadConfigFromFlags/getEnv* helpers.
type processConfig struct {
	Driver string
	DSN    string
	Name   string

	MaxHandles    int
	MaxRows       int
	MaxIdle       time.Duration
	MaxOpen       time.Duration
	MaxQueries    uint64
	Timeout       time.Duration
	CheckInterval time.Duration
	CacheSize     int
}

func defaultProcessConfig() *processConfig {
	return &processConfig{
		Driver: getEnv("DBI_DRIVER", "mysql"),
		DSN:    getEnv("DBI_DSN", "dbiuser:dbipass@tcp(localhost:3306)/dbicore"),
		Name:   getEnv("DBI_POOL_NAME", "default"),

		MaxHandles:    getEnvInt("DBI_MAX_HANDLES", 0),
		MaxRows:       getEnvInt("DBI_MAX_ROWS", 1000),
		MaxIdle:       getEnvDuration("DBI_MAX_IDLE", 0),
		MaxOpen:       getEnvDuration("DBI_MAX_OPEN", 0),
		MaxQueries:    uint64(getEnvInt("DBI_MAX_QUERIES", 0)),
		Timeout:       getEnvDuration("DBI_TIMEOUT", 10*time.Second),
		CheckInterval: getEnvDuration("DBI_CHECK_INTERVAL", 600*time.Second),
		CacheSize:     getEnvInt("DBI_CACHE_SIZE", 1<<20),
	}
}

// loadProcessConfig applies flag overrides on top of the
// environment/compiled-in defaults, flags taking precedence.
func loadProcessConfig() *processConfig {
	cfg := defaultProcessConfig()

	flag.StringVar(&cfg.Driver, "driver", cfg.Driver, "driver name registered in driver.DefaultRegistry (mysql, postgres)")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "data source name passed to the driver's Open")
	flag.StringVar(&cfg.Name, "pool-name", cfg.Name, "name to register the pool under")
	flag.IntVar(&cfg.MaxHandles, "max-handles", cfg.MaxHandles, "maximum live handles, 0 for unlimited")
	flag.IntVar(&cfg.MaxRows, "max-rows", cfg.MaxRows, "default row ceiling per query")
	flag.DurationVar(&cfg.MaxIdle, "max-idle", cfg.MaxIdle, "recycle a handle idle longer than this, 0 to disable")
	flag.DurationVar(&cfg.MaxOpen, "max-open", cfg.MaxOpen, "recycle a handle older than this, 0 to disable")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "default handle acquisition timeout")
	flag.DurationVar(&cfg.CheckInterval, "check-interval", cfg.CheckInterval, "background staleness sweep interval")
	flag.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "per-handle statement cache budget in bytes")
	flag.Parse()

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
