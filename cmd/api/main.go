package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/launchkit/service-core/internal/auth"
	"github.com/launchkit/service-core/internal/config"
	"github.com/launchkit/service-core/internal/router"
	"github.com/launchkit/service-core/internal/user"
	"github.com/launchkit/service-core/pkg/database"
	"github.com/launchkit/service-core/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	cfg := config.LoadFromEnv()
	sugar.Infow("starting service-core", "environment", cfg.Environment)

	if cfg.Environment == "production" && cfg.SecretKey == "change-this-in-production" {
		sugar.Fatal("SECRET_KEY must be set in production")
	}

	// init db
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// development convenience schema setup; production uses migrations
	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Second)
	users := user.NewUserService(db, nil, nil)
	tokens := auth.NewTokenService(db, cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err := users.EnsureSchema(setupCtx); err != nil {
		cancelSetup()
		sugar.Fatalf("ensure users schema: %v", err)
	}
	if err := tokens.EnsureSchema(setupCtx); err != nil {
		cancelSetup()
		sugar.Fatalf("ensure auth schema: %v", err)
	}
	cancelSetup()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// mount http server
	handler := router.RegisterRoutes(sugar, db, cfg)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	// run server in background
	go func() {
		sugar.Infow("http server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := db.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
