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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vendaseguro/chatsso/internal/auth"
	"github.com/vendaseguro/chatsso/internal/config"
	"github.com/vendaseguro/chatsso/internal/db"
	internalhttp "github.com/vendaseguro/chatsso/internal/http"
	"github.com/vendaseguro/chatsso/internal/hub"
	"github.com/vendaseguro/chatsso/internal/observability"
	"github.com/vendaseguro/chatsso/internal/provision"
	"github.com/vendaseguro/chatsso/internal/repo"
	"github.com/vendaseguro/chatsso/internal/service"
	"github.com/vendaseguro/chatsso/internal/sso"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if cfg.LogLevel != "" {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
		zerolog.SetGlobalLevel(level)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool, "up"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	metrics := observability.NewMetrics()
	repository := repo.New(pool)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	sessions := service.NewSessionService(redisClient, jwtManager, repository, service.SessionConfig{
		CookieTTL:  cfg.SSO.CookieTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})

	hubClient, err := hub.New(hub.Config{
		BaseURL:      cfg.Hub.BaseURL,
		ValidatePath: cfg.Hub.ValidatePath,
		Timeout:      cfg.Hub.Timeout,
	})
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}

	var issuer sso.Issuer
	switch cfg.SSO.SessionMode {
	case sso.ModeToken:
		issuer = &sso.TokenIssuer{Sessions: sessions, Landing: cfg.SSO.LandingPath}
	default:
		issuer = &sso.CookieIssuer{
			Sessions:   sessions,
			CookieName: cfg.SSO.CookieName,
			TTL:        cfg.SSO.CookieTTL,
			Secure:     cfg.SSO.CookieSecure,
			Landing:    cfg.SSO.LandingPath,
		}
	}

	provisioner := provision.New(repository, metrics, log.Logger)
	orchestrator, err := sso.NewOrchestrator(cfg.SSO.DecryptKey, hubClient, provisioner, issuer, metrics, log.Logger)
	if err != nil {
		return fmt.Errorf("sso: %w", err)
	}

	handler := internalhttp.NewRouter(cfg, internalhttp.Deps{
		Orchestrator: orchestrator,
		Sessions:     sessions,
		DB:           repository,
		Metrics:      metrics,
		Logger:       log.Logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("mode", cfg.SSO.SessionMode).Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
