package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"docorder-service/internal/metrics"
	"docorder-service/internal/server"
	"docorder-service/internal/service"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the cron poller and webhook queue consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	metrics.Register()

	cfg := a.cfg
	srv := server.NewServer(cfg, &server.Services{
		Webhook: service.NewWebhookService(service.WebhookConfig{
			Token:         cfg.Webhook.Token,
			AllowUnsigned: cfg.Webhook.AllowUnsigned,
			QueueEnabled:  cfg.Webhook.QueueEnabled,
		}, a.reconciler, a.eventRepo, a.auditRepo),
		Orders:  service.NewOrderService(a.db, a.orderRepo, a.auditRepo, a.gateway, cfg.Gateway.Timeout),
		Sync:    service.NewSyncService(a.orderRepo, a.gateway, a.reconciler, cfg.Sync.Timeout),
		Admin:   service.NewAdminService(a.db, a.orderRepo, a.historyRepo, a.auditRepo),
		Sweeper: a.poller,
	})

	g, gctx := errgroup.WithContext(ctx)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	g.Go(func() error {
		logger.WithField("addr", serverAddr).Info("starting HTTP server")
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Cron.Enabled {
		a.poller.Start(gctx)
	}

	if cfg.Webhook.QueueEnabled {
		consumer := service.NewQueueConsumer(service.QueueConfig{
			PollInterval: cfg.Webhook.QueuePollInterval,
			BatchSize:    cfg.Webhook.QueueBatchSize,
			MaxAttempts:  cfg.Webhook.QueueMaxAttempts,
		}, a.eventRepo, a.auditRepo, a.reconciler)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("signal received, starting graceful shutdown")

		a.poller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
