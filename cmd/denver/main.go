// Package main запускает HTTP-сервер сервиса денвер.
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

	"github.com/mmeshcher/denver-lending-system/internal/command"
	"github.com/mmeshcher/denver-lending-system/internal/config"
	"github.com/mmeshcher/denver-lending-system/internal/handler"
	"github.com/mmeshcher/denver-lending-system/internal/ledger"
	"github.com/mmeshcher/denver-lending-system/internal/middleware"
	"github.com/mmeshcher/denver-lending-system/internal/reconcile"
	"github.com/mmeshcher/denver-lending-system/internal/workflow"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	if cfg.LedgerAddress == "" {
		sugar.Fatalw("ledger address is required", "flag", "-l", "env", "LEDGER_ADDRESS")
	}

	ledgerClient := ledger.NewClient(cfg.LedgerAddress, cfg.LedgerToken)

	reconciler := reconcile.New(ledgerClient, logger, cfg.PollInterval)

	issuer := command.NewIssuer("denver")
	svc := workflow.NewService(ledgerClient, reconciler, issuer, reconciler, cfg.PrepareWindow, cfg.SettleWindow)

	partyMiddleware := middleware.NewPartyMiddleware(cfg.PartySecret)
	h := handler.NewHandler(svc, reconciler, logger, partyMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки с системой учёта
	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting denver server", "addr", cfg.RunAddress, "ledger", cfg.LedgerAddress)
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
