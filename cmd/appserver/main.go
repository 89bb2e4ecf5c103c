// Command appserver is the process entrypoint: it loads configuration,
// wires storage/compute/cache into an app.Application, mounts the HTTP
// façade, and runs until an OS signal requests a graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/r3e-labs/rlstudio/infrastructure/ratelimit"
	app "github.com/r3e-labs/rlstudio/internal/app"
	"github.com/r3e-labs/rlstudio/internal/app/httpapi"
	"github.com/r3e-labs/rlstudio/internal/app/storage/postgres"
	"github.com/r3e-labs/rlstudio/internal/config"
	"github.com/r3e-labs/rlstudio/internal/platform/database"
	"github.com/r3e-labs/rlstudio/internal/platform/migrations"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config HTTP_PORT or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rootCtx := context.Background()
	dsnVal := resolveDSN(*dsn, cfg)

	stores := app.Stores{}
	var db *sql.DB
	if dsnVal != "" {
		db, err = database.Open(rootCtx, dsnVal)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		if *runMigrations {
			if err := migrations.Apply(rootCtx, db); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}
		stores.Client = postgres.New(db)
	}
	if db != nil {
		defer db.Close()
	}

	application, err := app.New(stores, nil, app.WithRuntimeConfig(app.RuntimeConfig{
		ComputeBackendURL:    cfg.ComputeBackendURL,
		RedisURL:             cfg.RedisURL,
		BlobStoreDir:         cfg.BlobStoreDir,
		CompiledEnvCacheSize: cfg.CompiledEnvCacheSize,
		AssetCacheSize:       cfg.AssetCacheSize,
	}))
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	httpCfg := httpapi.Config{CORSOrigins: cfg.CORSOrigins, AuditMax: 1000}
	if db != nil {
		httpCfg.AuditSink = httpapi.NewPostgresAuditSink(db)
	}
	if cfg.RateLimitEnabled {
		rl := rateLimitFromConfig(cfg)
		httpCfg.RateLimit = &rl
	}
	router := httpapi.NewRouter(application, httpCfg)

	listenAddr := determineAddr(*addr, cfg)
	server := &http.Server{Addr: listenAddr, Handler: router}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}

	go func() {
		log.Printf("rlstudio listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

// rateLimitFromConfig converts the config's requests-per-window shape into
// the ratelimit package's requests-per-second + burst shape.
func rateLimitFromConfig(cfg *config.Config) ratelimit.RateLimitConfig {
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	rps := float64(cfg.RateLimitRequests) / window.Seconds()
	return ratelimit.RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             cfg.RateLimitRequests,
		Window:            window,
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	addr := strings.TrimSpace(flagAddr)
	if addr != "" {
		return addr
	}
	if cfg != nil && cfg.HTTPPort != 0 {
		return fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	return ":8080"
}

// resolveDSN prioritizes an explicit flag, then DATABASE_URL, then the
// loaded config's PostgresDSN. An empty result means "use the in-memory
// store".
func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg.PostgresDSN)
}
