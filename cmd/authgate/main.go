// Command authgate serves account management, session tokens and access
// control over HTTP.
//
// @title                      authgate API
// @version                    1.0
// @description                Account, session token and access control service.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/authgate/internal/api"
	"github.com/99minutos/authgate/internal/api/handler"
	"github.com/99minutos/authgate/internal/core/ports"
	"github.com/99minutos/authgate/internal/core/service"
	"github.com/99minutos/authgate/internal/infrastructure/config"
	mongostore "github.com/99minutos/authgate/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/authgate/internal/infrastructure/db/redis"
	sqlitestore "github.com/99minutos/authgate/internal/infrastructure/db/sqlite"
	"github.com/99minutos/authgate/internal/infrastructure/settings"
	"github.com/99minutos/authgate/pkg/logger"
)

const startupTimeout = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "authgate: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.Load(zerolog.New(os.Stderr).With().Timestamp().Logger())

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "authgate",
	})

	hasher := service.NewBcryptHasher(cfg.Token.BcryptCost)
	tokens, err := service.NewJWTService(cfg.Token.Secret, logger.For("tokens"),
		service.WithTTL(cfg.Token.TTL),
		service.WithIssuer(cfg.Token.Issuer),
	)
	if err != nil {
		return err
	}

	store := newUserStore(cfg, hasher)
	initCtx, cancelInit := context.WithTimeout(ctx, startupTimeout)
	err = store.Initialize(initCtx)
	cancelInit()
	if err != nil {
		return fmt.Errorf("initialize %s account store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := store.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("account store shutdown failed")
		}
	}()

	readiness := map[string]handler.Pinger{"account_store": store}

	settingsRepo, closeSettings, err := newSettingsRepository(ctx, cfg, readiness)
	if err != nil {
		return err
	}
	defer closeSettings()

	toggle := service.NewEnforcementToggle(settingsRepo, cfg.Settings.CacheTTL, logger.For("enforcement"))
	if s := toggle.Read(ctx); !s.Enabled {
		log.Warn().
			Str("audit", "bypass").
			Str("updated_by", s.UpdatedBy).
			Time("updated_at", s.UpdatedAt).
			Msg("authentication enforcement is DISABLED: every request passes without credentials")
	}

	e := api.NewRouter(api.Dependencies{
		Auth:        service.NewAuthService(store, hasher, tokens, logger.For("auth")),
		Accounts:    service.NewAccountService(store, hasher, logger.For("accounts")),
		Tokens:      tokens,
		Enforcement: toggle,
		Readiness:   readiness,
		Log:         logger.For("http"),
	})

	srvErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", cfg.Store.Driver).
			Str("settings", cfg.Settings.Backend).
			Msg("authgate listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func newUserStore(cfg *config.Config, hasher ports.CredentialHasher) ports.UserStore {
	if cfg.Store.Driver == config.StoreMongo {
		return mongostore.NewUserStore(mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Store.OpTimeout,
		}, hasher, cfg.Store.OpTimeout, logger.For("store"))
	}
	return sqlitestore.NewUserStore(sqlitestore.Config{
		Path:        cfg.SQLite.Path,
		BusyTimeout: cfg.SQLite.BusyTimeout,
		Timeout:     cfg.Store.OpTimeout,
	}, hasher, cfg.Store.OpTimeout, logger.For("store"))
}

// newSettingsRepository builds the configured enforcement setting backend
// and registers it for readiness checks when it has a connection to probe.
func newSettingsRepository(ctx context.Context, cfg *config.Config, readiness map[string]handler.Pinger) (ports.EnforcementRepository, func(), error) {
	if cfg.Settings.Backend != config.SettingsRedis {
		return settings.NewFileRepository(cfg.Settings.Path), func() {}, nil
	}

	client, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Store.OpTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect settings redis: %w", err)
	}
	repo := redisstore.NewEnforcementRepository(client, cfg.Redis.SettingsKey)
	readiness["settings_redis"] = repo
	return repo, func() { _ = client.Close() }, nil
}
