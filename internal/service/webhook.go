package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docorder-service/internal/metrics"
	"docorder-service/internal/model"
	"docorder-service/internal/repository"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type WebhookMode string

const (
	WebhookModeQueued WebhookMode = "queued"
	WebhookModeDirect WebhookMode = "direct"
)

// WebhookAck is what the receiver tells the provider once an event was
// accepted. Processed is false when direct processing failed; the failure
// is in the audit log, not in the response.
type WebhookAck struct {
	Mode      WebhookMode `json:"mode"`
	PaymentID string      `json:"paymentId"`
	Duplicate bool        `json:"duplicate,omitempty"`
	Processed bool        `json:"processed"`
}

type WebhookService interface {
	VerifySignature(ctx context.Context, signature, ip string) error
	Accept(ctx context.Context, body []byte, ip string) (*WebhookAck, error)
	RecordRateLimited(ctx context.Context, ip, path string)
}

type WebhookConfig struct {
	Token string
	// AllowUnsigned skips verification when Token is empty. Without it an
	// empty Token rejects every delivery.
	AllowUnsigned bool
	QueueEnabled  bool
}

type webhookServiceImpl struct {
	cfg        WebhookConfig
	reconciler Reconciler
	eventRepo  repository.WebhookEventRepository
	auditRepo  repository.AuditLogRepository
}

func NewWebhookService(
	cfg WebhookConfig,
	reconciler Reconciler,
	eventRepo repository.WebhookEventRepository,
	auditRepo repository.AuditLogRepository,
) WebhookService {
	if cfg.Token == "" {
		if cfg.AllowUnsigned {
			logger.Warn("webhook token is empty, accepting unsigned webhooks")
		} else {
			logger.Error("webhook token is empty, every webhook will be rejected")
		}
	}
	return &webhookServiceImpl{
		cfg:        cfg,
		reconciler: reconciler,
		eventRepo:  eventRepo,
		auditRepo:  auditRepo,
	}
}

// VerifySignature compares the shared-secret header in constant time. A
// failure writes one security audit row.
func (s *webhookServiceImpl) VerifySignature(ctx context.Context, signature, ip string) error {
	if s.cfg.Token == "" && s.cfg.AllowUnsigned {
		return nil
	}

	reason := ""
	switch {
	case s.cfg.Token == "":
		reason = "token_not_configured"
	case signature == "":
		reason = "missing"
	case subtle.ConstantTimeCompare([]byte(signature), []byte(s.cfg.Token)) != 1:
		reason = "mismatch"
	default:
		return nil
	}

	metrics.WebhookRequestsTotal.WithLabelValues("unauthorized").Inc()
	logger.WithFields(logger.Fields{"ip": ip, "reason": reason}).Warn("webhook signature rejected")
	s.audit(ctx, &model.AuditLog{
		Action:     model.AuditWebhookSignatureInvalid,
		EntityType: "webhook",
		IPAddress:  ip,
		Details: datatypes.JSONMap{
			"reason":    reason,
			"signature": truncateSignature(signature),
		},
	})
	return ErrInvalidSignature
}

// Accept decodes the event and hands it to the queue, or to the reconciler
// when no queue is configured or the queue write fails.
func (s *webhookServiceImpl) Accept(ctx context.Context, body []byte, ip string) (*WebhookAck, error) {
	var event model.PaymentWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Payment.ID == "" {
		metrics.WebhookRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: missing payment id", ErrMalformedEvent)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	log := logger.WithFields(logger.Fields{
		"payment_id":      event.Payment.ID,
		"event":           event.Event,
		"provider_status": event.Payment.Status,
	})

	if s.cfg.QueueEnabled {
		inserted, err := s.eventRepo.Enqueue(ctx, nil, &model.WebhookEvent{
			EventKey:          EventKey(&event),
			EventType:         event.Event,
			ProviderPaymentID: event.Payment.ID,
			ProviderStatus:    event.Payment.Status,
			Payload:           datatypes.JSONMap(raw),
		})
		if err == nil {
			metrics.WebhookRequestsTotal.WithLabelValues("queued").Inc()
			log.WithField("duplicate", !inserted).Info("webhook event queued")
			return &WebhookAck{Mode: WebhookModeQueued, PaymentID: event.Payment.ID, Duplicate: !inserted}, nil
		}
		log.WithError(err).Error("enqueue webhook event, falling back to direct processing")
	}

	ack := &WebhookAck{Mode: WebhookModeDirect, PaymentID: event.Payment.ID}
	_, err := s.reconciler.Reconcile(ctx, ByPaymentID(event.Payment.ID), event.Payment.Status, model.SourceWebhook, raw)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("webhook processing failed")
		s.audit(ctx, &model.AuditLog{
			Action:     model.AuditWebhookProcessingFailed,
			EntityType: "payment",
			EntityID:   event.Payment.ID,
			IPAddress:  ip,
			Details: datatypes.JSONMap{
				"event":          event.Event,
				"providerStatus": string(event.Payment.Status),
				"error":          err.Error(),
				"kind":           errorKind(err),
			},
		})
		return ack, nil
	}

	metrics.WebhookRequestsTotal.WithLabelValues("processed").Inc()
	ack.Processed = true
	return ack, nil
}

func (s *webhookServiceImpl) RecordRateLimited(ctx context.Context, ip, path string) {
	metrics.WebhookRequestsTotal.WithLabelValues("rate_limited").Inc()
	logger.WithFields(logger.Fields{"ip": ip, "path": path}).Warn("rate limit exceeded")
	s.audit(ctx, &model.AuditLog{
		Action:     model.AuditRateLimitExceeded,
		EntityType: "webhook",
		IPAddress:  ip,
		Details:    datatypes.JSONMap{"path": path},
	})
}

func (s *webhookServiceImpl) audit(ctx context.Context, entry *model.AuditLog) {
	if err := s.auditRepo.Create(ctx, nil, entry); err != nil {
		logger.WithError(err).WithField("action", entry.Action).Error("write audit log")
	}
}

// EventKey identifies a delivery: "<payment id>:<event timestamp>". Events
// without a timestamp fall back to event name and status so identical
// redeliveries still collapse.
func EventKey(event *model.PaymentWebhookEvent) string {
	ts := event.DateCreated
	if ts == "" {
		ts = event.Event + "/" + string(event.Payment.Status)
	}
	return event.Payment.ID + ":" + ts
}

// truncateSignature keeps at most the first 4 characters.
func truncateSignature(signature string) string {
	if len(signature) < 8 {
		return strings.Repeat("*", len(signature))
	}
	return signature[:4] + "..."
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrUnmappedProviderStatus):
		return "unmapped_status"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, repository.ErrStaleOrder):
		return "conflict"
	}
	return "internal"
}
