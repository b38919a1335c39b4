// Command dbiserver is a minimal example of wiring this module's
// pieces together into a running process: load configuration, build a
// pool against a registered driver, register it with a dbi.Server,
// run its background staleness sweep, and serve until interrupted.
// This mirrors how druarnfield-mantis_core's cmd/ binaries wire
// config -> manager -> handlers, a layer burrowctl itself never had
// (it runs as a library embedded in worker_pool.go instead).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lordbasex/dbicore/dbi"
	"github.com/lordbasex/dbicore/driver"
	"github.com/lordbasex/dbicore/pool"

	"github.com/lordbasex/dbicore/drivers/mysql"
	"github.com/lordbasex/dbicore/drivers/postgres"
)

func main() {
	cfg := loadProcessConfig()

	drv, err := driver.Get(cfg.Driver)
	if err != nil {
		log.Fatalf("[dbiserver] %v", err)
	}

	p := pool.New(cfg.Name, drv, driverConfig(cfg), pool.Config{
		CacheSize:     cfg.CacheSize,
		MaxHandles:    cfg.MaxHandles,
		MaxRows:       cfg.MaxRows,
		MaxIdle:       cfg.MaxIdle,
		MaxOpen:       cfg.MaxOpen,
		MaxQueries:    cfg.MaxQueries,
		Timeout:       cfg.Timeout,
		CheckInterval: cfg.CheckInterval,
		Default:       true,
	})

	server := dbi.NewServer()
	if err := server.AddPool(p); err != nil {
		log.Fatalf("[dbiserver] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go p.RunSweeper(ctx)

	log.Printf("[dbiserver] pool %q ready (driver=%s, maxhandles=%d)", p.Name(), p.DriverName(), cfg.MaxHandles)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[dbiserver] shutting down")
	cancel()

	deadline := time.Now().Add(30 * time.Second)
	if err := server.Shutdown(context.Background(), &deadline); err != nil {
		log.Printf("[dbiserver] shutdown: %v", err)
	}
}

// driverConfig builds the opaque, driver-private configuration value
// each concrete driver package expects (spec §3 "Driver descriptor").
func driverConfig(cfg *processConfig) driver.Config {
	switch cfg.Driver {
	case "postgres":
		return postgres.Config{DSN: cfg.DSN}
	default:
		return mysql.Config{DSN: cfg.DSN}
	}
}
