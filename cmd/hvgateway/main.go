// Command hvgateway is the control-plane gateway entrypoint: it loads
// configuration, opens the Postgres-backed store, wires the core
// subsystems (NodeClient dispatch, the VNC proxy, the VM aggregator, the
// metrics pump) behind the HTTP/WebSocket routing shell, and serves until
// an OS signal requests a graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"hvgateway/internal/aggregator"
	"hvgateway/internal/auth"
	"hvgateway/internal/config"
	"hvgateway/internal/httpapi"
	"hvgateway/internal/logger"
	"hvgateway/internal/metrics"
	"hvgateway/internal/model"
	"hvgateway/internal/nodecache"
	"hvgateway/internal/nodeclient"
	"hvgateway/internal/secretenc"
	"hvgateway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger isn't initialized yet if config failed before LogLevel was read.
		logger.Init("info")
		logger.Get().Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init(cfg.LogLevel)
	metrics.Init()

	secretBox, err := secretenc.New(cfg.NodeSecretKey)
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("failed to initialize secret encryption")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL, secretBox)
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := bootstrapAdmin(ctx, cfg, db); err != nil {
		logger.Get().Fatal().Err(err).Msg("failed to seed admin account")
	}

	nodeclient.SetInsecureTLSDefault(cfg.AllowInsecureTLS)
	cache := nodecache.New(nodeclient.New)
	agg := aggregator.New(db, cache.Get)

	deps := &httpapi.Deps{
		Cfg:     cfg,
		Nodes:   db,
		Users:   db,
		Tickets: db,
		Cache:   cache,
		Agg:     agg,
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket connections (console, metrics) must not be cut off
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Get().Info().Str("addr", srv.Addr).Msg("starting hvgateway")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Get().Fatal().Err(err).Msg("server failed to start")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	logger.Get().Info().Msg("graceful shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Get().Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Get().Info().Msg("server exited gracefully")
}

// bootstrapAdmin seeds the first admin account from ADMIN_USERNAME and
// ADMIN_PASSWORD when no admin exists yet. The password is bcrypt-hashed
// here; the cleartext never touches the store. A no-op once any admin row
// exists, so a rotated env password does not overwrite a live account.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, users store.UserStore) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	exists, err := users.AnyAdminExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	u := &model.User{
		ID:           uuid.NewString(),
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	}
	if err := users.CreateUser(ctx, u); err != nil {
		return err
	}
	logger.Get().Info().Str("username", u.Username).Msg("seeded admin account")
	return nil
}
