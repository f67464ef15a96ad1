package main

import (
	"context"
	"fmt"

	"docorder-service/internal/client"
	"docorder-service/internal/config"
	"docorder-service/internal/logging"
	"docorder-service/internal/repository"
	"docorder-service/internal/service"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const sweepLockName = "docorder-cron-sweep"

// app holds everything both subcommands share.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	gateway client.GatewayClient
	locker  *client.PgAdvisoryLocker

	orderRepo   repository.OrderRepository
	historyRepo repository.OrderHistoryRepository
	auditRepo   repository.AuditLogRepository
	eventRepo   repository.WebhookEventRepository

	reconciler service.Reconciler
	poller     *service.Poller
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Configure(cfg.Log)

	db, err := client.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		db:          db,
		gateway:     newGateway(cfg),
		orderRepo:   repository.NewOrderRepository(db),
		historyRepo: repository.NewOrderHistoryRepository(db),
		auditRepo:   repository.NewAuditLogRepository(db),
		eventRepo:   repository.NewWebhookEventRepository(db),
	}
	a.reconciler = service.NewReconciler(db, a.orderRepo, a.historyRepo, a.auditRepo)

	var locker service.Locker
	if cfg.Cron.LockDatabaseURL != "" {
		a.locker, err = client.NewPgAdvisoryLocker(ctx, cfg.Cron.LockDatabaseURL, sweepLockName)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init sweep lock: %w", err)
		}
		locker = a.locker
	}

	a.poller = service.NewPoller(service.PollerConfig{
		Interval:    cfg.Cron.Interval,
		Window:      cfg.Cron.Window,
		Delay:       cfg.Cron.Delay,
		CallTimeout: cfg.Gateway.Timeout,
	}, a.orderRepo, a.gateway, a.reconciler, locker)

	return a, nil
}

func newGateway(cfg *config.Config) client.GatewayClient {
	if cfg.Gateway.Provider == config.GatewayProviderBraintree {
		logger.Info("using braintree gateway")
		return client.NewBraintreeGatewayClient(&cfg.BrainTree)
	}
	return client.NewRestGatewayClient(&cfg.Gateway)
}

func (a *app) close() {
	if a.locker != nil {
		a.locker.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.WithError(err).Warn("close database")
		}
	}
}
