/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty program server: configuration,
  logger, store, ledger engines, router, graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and environment configuration
  2. Build the zap logger
  3. Open the SQLite store (auto-migrates the schema)
  4. Wire grant recorder, redemption engine, auth service
  5. Serve HTTP; drain on SIGINT/SIGTERM

ENVIRONMENT:
  See config/config.go for the full surface. AUTH_SECRET is required
  outside development; the two ledger timing constants default to a
  0-day release delay and a 180-day validity window.
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fidelium/pontos/api"
	"github.com/fidelium/pontos/auth"
	"github.com/fidelium/pontos/config"
	"github.com/fidelium/pontos/ledger"
	"github.com/fidelium/pontos/store/sqlite"
)

func main() {
	ctx := context.Background()

	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		panic(err)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	secret := cfg.Auth.Secret
	if secret == "" {
		if cfg.App.IsProduction() {
			log.Fatal("AUTH_SECRET must be set in production")
		}
		log.Warn("AUTH_SECRET not set; using development default")
		secret = "dev-secret-do-not-use"
	}

	timing := ledger.Days(cfg.Ledger.ReleaseDelayDays, cfg.Ledger.ValidityDays)
	if err := timing.Validate(); err != nil {
		log.Fatal("invalid ledger timing", zap.Error(err))
	}

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	recorder := ledger.NewGrantRecorder(store, timing)
	engine := ledger.NewRedemptionEngine(store)
	authSvc := auth.NewService(store, []byte(secret), time.Duration(cfg.Auth.TTLHours)*time.Hour)

	handler := api.NewHandler(store, recorder, engine, authSvc, log)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PublicRPS:      cfg.Server.PublicRPS,
		PublicBurst:    cfg.Server.PublicBurst,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.DB.Path),
			zap.Int("release_delay_days", cfg.Ledger.ReleaseDelayDays),
			zap.Int("validity_days", cfg.Ledger.ValidityDays),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.App.IsProduction() {
		c := zap.NewProductionConfig()
		if lvl, err := zap.ParseAtomicLevel(cfg.App.LogLevel); err == nil {
			c.Level = lvl
		}
		return c.Build()
	}
	c := zap.NewDevelopmentConfig()
	if lvl, err := zap.ParseAtomicLevel(cfg.App.LogLevel); err == nil {
		c.Level = lvl
	}
	return c.Build()
}
