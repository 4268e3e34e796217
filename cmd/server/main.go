/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the swim class registration server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment (config.Load), apply flag overrides
  2. Open the store (SQLite or PostgreSQL)
  3. Create the payment gateway client (Zarinpal, or the fake for local dev)
  4. Create the booking engine, token issuer and API handler
  5. Start the reconciliation scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -env     .env file to load (default: .env, missing file is fine)
  -port    HTTP server port (overrides PORT)
  -driver  sqlite | postgres (overrides DB_DRIVER)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -debug   Debug logging

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, waiting for a running reconciliation
  4. Close database connection

EXAMPLES:
  # Local development: in-memory database, payments auto-approve
  PAYMENT_GATEWAY=fake JWT_SECRET=dev-secret-0123456789 ./server -db=":memory:"

  # Production
  DB_DRIVER=postgres DATABASE_URL=postgres://... ZARINPAL_MERCHANT_ID=... ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/swim-engine/api"
	"github.com/warp/swim-engine/booking"
	"github.com/warp/swim-engine/config"
	"github.com/warp/swim-engine/gateway/fake"
	"github.com/warp/swim-engine/gateway/zarinpal"
	"github.com/warp/swim-engine/identity"
	"github.com/warp/swim-engine/store/postgres"
	"github.com/warp/swim-engine/store/sqlite"
)

func main() {
	// Flags
	envFile := flag.String("env", ".env", "Env file to load")
	port := flag.String("port", "", "HTTP server port")
	driver := flag.String("driver", "", "Store driver: sqlite or postgres")
	dbPath := flag.String("db", "", "SQLite database path")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *envFile, *port, *driver, *dbPath); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, envFile, port, driver, dbPath string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}
	if driver != "" {
		cfg.Database.Driver = driver
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	// Initialize store
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	gateway := newGateway(cfg.Gateway, logger)

	engine := booking.NewEngine(store, gateway, booking.Options{
		RegistrationCallbackURL: cfg.RegistrationCallbackURL(),
		WalletCallbackURL:       cfg.WalletCallbackURL(),
		Logger:                  logger,
	})

	scheduler := api.NewReconciliationScheduler(engine, cfg.Reconcile.Schedule, cfg.Reconcile.After, logger)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	handler := api.NewHandler(engine, store, identity.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), scheduler, api.Config{
		FrontendURL:       cfg.Server.FrontendURL,
		AdminUsername:     cfg.Auth.AdminUsername,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		CookieSecure:      cfg.Auth.CookieSecure,
		CORSOrigins:       cfg.Server.CORSOrigins,
		Logger:            logger,
	})
	if cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"store", cfg.Database.Driver,
			"gateway", cfg.Gateway.Provider,
			"public_url", cfg.Server.PublicBaseURL,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (booking.Store, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, err
			}
		}
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func newGateway(cfg config.GatewayConfig, logger *slog.Logger) booking.PaymentGateway {
	if cfg.Provider == "fake" {
		logger.Warn("using fake payment gateway, every payment is approved")
		g := fake.New()
		g.Instant = true
		return g
	}
	return zarinpal.NewClient(zarinpal.Config{
		MerchantID: cfg.MerchantID,
		Sandbox:    cfg.Sandbox,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
	})
}
