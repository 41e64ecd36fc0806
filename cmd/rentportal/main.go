// Package main запускает HTTP-сервер портала аренды.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/rentportal/internal/apiclient"
	"github.com/mmeshcher/rentportal/internal/config"
	"github.com/mmeshcher/rentportal/internal/handler"
	"github.com/mmeshcher/rentportal/internal/middleware"
	"github.com/mmeshcher/rentportal/internal/repository"
	"github.com/mmeshcher/rentportal/internal/service"
	"github.com/mmeshcher/rentportal/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var journal service.Journal
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		journal = repo
	} else {
		sugar.Info("DATABASE_URI not set, payment attempt journal disabled")
	}

	api := apiclient.NewClient(cfg.APIURL, cfg.APIRetryMax, logger.Named("api"))
	sessions := session.NewManager(api, logger.Named("session"))

	svc := service.NewService(api, journal, sessions, service.Options{
		Logger:       logger.Named("payment"),
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
	})
	defer svc.Close()

	sessionMiddleware := middleware.NewSessionMiddleware(cfg.SessionSecret, sessions)
	h := handler.NewHandler(svc, logger, sessionMiddleware, cfg.MaxPolls)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Удаление простаивающих сессий и остановка их опросов
	g.Go(func() error {
		svc.StartSessionSweeper(ctx, cfg.SessionIdleTTL)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting rental portal", "addr", cfg.RunAddress, "api", api.BaseURL())
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
		// Fatalw не выполняет отложенные вызовы.
		_ = svc.Close()
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
