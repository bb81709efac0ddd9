// Package main запускает HTTP-сервер кассы детского книжного магазина.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storybook-pos/internal/config"
	"github.com/mmeshcher/storybook-pos/internal/handler"
	"github.com/mmeshcher/storybook-pos/internal/metrics"
	"github.com/mmeshcher/storybook-pos/internal/middleware"
	"github.com/mmeshcher/storybook-pos/internal/repository"
	"github.com/mmeshcher/storybook-pos/internal/service"
	"github.com/mmeshcher/storybook-pos/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var (
		sessions session.Store
		locker   service.Locker
	)
	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			sugar.Fatalw("redis connection error", "error", err.Error())
		}
		sessions = session.NewRedisStore(client, cfg.SessionTTL)
		locker = session.NewRedisLocker(client, 30*time.Second)
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	}

	feeRate := cfg.CardFeeRate()
	svc := service.NewService(repo, sessions, service.Options{
		CardFeeRate: &feeRate,
		DemoMode:    cfg.DemoMode,
		Metrics:     metrics.New("storypos", nil),
		Locker:      locker,
	})
	defer svc.Close()

	if cfg.DemoMode {
		sugar.Warn("demo mode: sales are not recorded and stock is not decremented")
	}

	sessionMiddleware := middleware.NewSessionMiddleware(cfg.SessionSecret, cfg.SessionTTL)
	h := handler.NewHandler(svc, logger, sessionMiddleware)

	r := h.SetupRouter(handler.RouterOptions{AllowedOrigins: cfg.AllowedOrigins()})

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting storypos server", "addr", cfg.RunAddress, "demo", cfg.DemoMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
