/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire calculator, engine, service, year-end processor
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION (environment):
  PORT                    HTTP server port (default: 8080)
  DATABASE_PATH           SQLite database path (default: leave.db)
                          Use ":memory:" for an in-memory database
  LOG_LEVEL               logrus level (default: info)
  STATUTORY_ANNUAL_DAYS   Fallback annual entitlement (default: 14)
  STATUTORY_SICK_DAYS     Fallback sick entitlement (default: 10)
  DEFAULT_CARRY_OVER_CAP  Carry-over cap fallback (default: 10)
  TX_MAX_RETRIES          Engine conflict retry bound (default: 5)
  YEAR_END_CONCURRENCY    Year-end worker count (default: 8)
  BATCH_CHUNK_SIZE        Batched insert chunk size (default: 450)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-ledger/accrual"
	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(cfg.ParseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath, sqlite.WithChunkSize(cfg.BatchChunkSize))
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire domain components
	calc := accrual.NewCalculator(accrual.StatutoryMinimum{
		AnnualDays: cfg.StatutoryAnnual(),
		SickDays:   cfg.StatutorySick(),
	})
	engine := ledger.NewEngine(store, store,
		ledger.WithMaxRetries(cfg.TxMaxRetries),
		ledger.WithEngineLogger(logger),
	)
	carryOverCap := ledger.DaysFromFloat(cfg.DefaultCarryOverCap)
	service := ledger.NewService(store, store, store, store, calc, engine,
		ledger.WithCarryOverCap(carryOverCap),
		ledger.WithLogger(logger),
	)
	yearEnd := ledger.NewYearEndProcessor(store, store, store,
		ledger.WithYearEndCarryOverCap(carryOverCap),
		ledger.WithYearEndConcurrency(cfg.YearEndConcurrency),
		ledger.WithYearEndMaxRetries(cfg.TxMaxRetries),
		ledger.WithYearEndLogger(logger),
	)

	// Create router
	handler := api.NewHandler(service, yearEnd, store, store, logger)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on http://localhost:%d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
