package service

import (
	"context"
	"errors"
	"time"

	"docorder-service/internal/metrics"
	"docorder-service/internal/model"
	"docorder-service/internal/repository"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// events left PROCESSING longer than this belonged to a consumer that died
const staleClaimAge = 5 * time.Minute

type QueueConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// QueueConsumer drains queued webhook events into the reconciler.
type QueueConsumer struct {
	cfg        QueueConfig
	eventRepo  repository.WebhookEventRepository
	auditRepo  repository.AuditLogRepository
	reconciler Reconciler
}

func NewQueueConsumer(
	cfg QueueConfig,
	eventRepo repository.WebhookEventRepository,
	auditRepo repository.AuditLogRepository,
	reconciler Reconciler,
) *QueueConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &QueueConsumer{
		cfg:        cfg,
		eventRepo:  eventRepo,
		auditRepo:  auditRepo,
		reconciler: reconciler,
	}
}

// Run polls until ctx is canceled.
func (c *QueueConsumer) Run(ctx context.Context) error {
	logger.WithField("interval", c.cfg.PollInterval).Info("webhook queue consumer started")

	if n, err := c.eventRepo.RequeueStale(ctx, nil, time.Now().Add(-staleClaimAge)); err != nil {
		logger.WithError(err).Error("requeue stale webhook events")
	} else if n > 0 {
		logger.WithField("count", n).Warn("requeued stale webhook events")
	}

	for {
		if _, err := c.Drain(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("drain webhook queue")
		}
		if err := waitOrCancel(ctx, c.cfg.PollInterval); err != nil {
			logger.Info("webhook queue consumer stopped")
			return nil
		}
	}
}

// Drain processes one batch of pending events and returns how many it
// claimed.
func (c *QueueConsumer) Drain(ctx context.Context) (int, error) {
	events, err := c.eventRepo.ListPending(ctx, nil, c.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	metrics.WebhookQueueDepth.Set(float64(len(events)))

	claimed := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return claimed, ctx.Err()
		}
		ok, err := c.eventRepo.Claim(ctx, nil, event.EventKey)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		claimed++
		// once claimed, an event is finished even if the consumer is stopping
		c.process(context.WithoutCancel(ctx), event)
	}
	return claimed, nil
}

func (c *QueueConsumer) process(ctx context.Context, event *model.WebhookEvent) {
	log := logger.WithFields(logger.Fields{
		"event_key":  event.EventKey,
		"payment_id": event.ProviderPaymentID,
		"attempt":    event.Attempts + 1,
	})

	_, err := c.reconciler.Reconcile(ctx, ByPaymentID(event.ProviderPaymentID), event.ProviderStatus, model.SourceWebhook, event.Payload)
	if err == nil {
		if err := c.eventRepo.MarkProcessed(ctx, nil, event.EventKey); err != nil {
			log.WithError(err).Error("mark webhook event processed")
		}
		return
	}

	attempts := event.Attempts + 1
	if retryable(err) && attempts < c.cfg.MaxAttempts {
		log.WithError(err).Warn("webhook event will be retried")
		if err := c.eventRepo.MarkRetry(ctx, nil, event.EventKey, err.Error()); err != nil {
			log.WithError(err).Error("mark webhook event for retry")
		}
		return
	}

	log.WithError(err).Error("webhook event failed")
	if err := c.eventRepo.MarkFailed(ctx, nil, event.EventKey, err.Error()); err != nil {
		log.WithError(err).Error("mark webhook event failed")
	}
	if err := c.auditRepo.Create(ctx, nil, &model.AuditLog{
		Action:     model.AuditWebhookProcessingFailed,
		EntityType: "payment",
		EntityID:   event.ProviderPaymentID,
		Details: datatypes.JSONMap{
			"eventKey":       event.EventKey,
			"providerStatus": string(event.ProviderStatus),
			"attempts":       attempts,
			"error":          err.Error(),
			"kind":           errorKind(err),
		},
	}); err != nil {
		log.WithError(err).Error("write audit log")
	}
}

// retryable errors may succeed on a later poll; an unknown order usually
// means the webhook beat the payment creation commit.
func retryable(err error) bool {
	return !errors.Is(err, ErrUnmappedProviderStatus) && !errors.Is(err, model.ErrInvalidTransition)
}
