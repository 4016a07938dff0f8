/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the supply ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env, optional config file)
  2. Build the logger
  3. Open the SQLite store
  4. Pick the chain locker (in-process or Redis)
  5. Create engine, handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional config file (.env, yaml, json). Environment wins.

ENVIRONMENT:
  APP_PORT, DB_PATH, LOG_LEVEL, LOG_FORMAT, LOCK_BACKEND (memory|redis),
  REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB, LOCK_TTL_SECONDS,
  CORS_ALLOWED_ORIGINS, PAGE_DEFAULT_LIMIT, PAGE_MAX_LIMIT, STATIC_DIR.
  See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  DB_PATH=./data/supplies.db ./server

  # Several servers sharing one database
  LOCK_BACKEND=redis REDIS_ADDRESS=redis:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/supply-ledger/api"
	"github.com/warp/supply-ledger/config"
	"github.com/warp/supply-ledger/ledger"
	"github.com/warp/supply-ledger/lock"
	"github.com/warp/supply-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logg := config.NewLogger(cfg.Log)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		config.LogError(logg, "main", "sqlite.New", cfg.Database.Path, err)
		os.Exit(1)
	}
	defer store.Close()

	locker, closeLocker, err := newLocker(cfg, logg)
	if err != nil {
		config.LogError(logg, "main", "newLocker", cfg.Lock.Backend, err)
		os.Exit(1)
	}
	defer closeLocker()

	engine := ledger.NewEngine(store, locker, logg,
		ledger.WithPageLimits(ledger.PageLimits{Default: cfg.Page.DefaultLimit, Max: cfg.Page.MaxLimit}),
	)

	handler := api.NewHandler(engine, logg)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		StaticDir:      cfg.App.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.App.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.ReadTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logg.WithFields(logrus.Fields{"addr": server.Addr, "lock_backend": cfg.Lock.Backend}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.LogError(logg, "main", "ListenAndServe", server.Addr, err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		config.LogError(logg, "main", "Shutdown", nil, err)
	}

	logg.Info("server stopped")
}

// newLocker builds the chain locker for the configured backend. The
// returned func releases its connections.
func newLocker(cfg *config.Config, logg *logrus.Logger) (ledger.ChainLocker, func(), error) {
	if cfg.Lock.Backend != config.LockBackendRedis {
		return lock.NewKeyed(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}

	return lock.NewRedis(rdb, cfg.Lock.TTL, logg), func() { rdb.Close() }, nil
}
