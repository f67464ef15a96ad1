package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docorder-service/internal/metrics"
	"docorder-service/internal/model"
	"docorder-service/internal/repository"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxReconcileAttempts = 3

// OrderRef finds an order either by the provider payment id or by its own id.
type OrderRef struct {
	PaymentID string
	OrderID   string
}

func ByPaymentID(id string) OrderRef { return OrderRef{PaymentID: id} }

func ByOrderID(id string) OrderRef { return OrderRef{OrderID: id} }

func (r OrderRef) String() string {
	if r.PaymentID != "" {
		return "payment " + r.PaymentID
	}
	return "order " + r.OrderID
}

type ReconcileResult struct {
	Applied bool
	Order   *model.Order
	// Anomaly marks an event that targeted a terminal order.
	Anomaly bool
}

type Reconciler interface {
	Reconcile(ctx context.Context, ref OrderRef, status model.ProviderStatus, source model.Source, raw map[string]interface{}) (*ReconcileResult, error)
}

type reconcilerImpl struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	historyRepo repository.OrderHistoryRepository
	auditRepo   repository.AuditLogRepository
	now         func() time.Time
}

func NewReconciler(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	historyRepo repository.OrderHistoryRepository,
	auditRepo repository.AuditLogRepository,
) Reconciler {
	return &reconcilerImpl{
		db:          db,
		orderRepo:   orderRepo,
		historyRepo: historyRepo,
		auditRepo:   auditRepo,
		now:         time.Now,
	}
}

// Reconcile applies the provider status to the order. Replaying the same
// status is a no-op. A write that loses an optimistic-lock race is
// recomputed against the fresh order.
func (s *reconcilerImpl) Reconcile(
	ctx context.Context,
	ref OrderRef,
	status model.ProviderStatus,
	source model.Source,
	raw map[string]interface{},
) (*ReconcileResult, error) {
	log := logger.WithFields(logger.Fields{
		"order_ref":       ref.String(),
		"source":          source,
		"provider_status": status,
	})

	for attempt := 1; attempt <= maxReconcileAttempts; attempt++ {
		result, outcome, err := s.reconcileOnce(ctx, log, ref, status, source, raw)
		if errors.Is(err, repository.ErrStaleOrder) {
			log.WithField("attempt", attempt).Debug("order changed concurrently, retrying")
			continue
		}
		metrics.ReconcileTotal.WithLabelValues(string(source), outcome).Inc()
		return result, err
	}

	metrics.ReconcileTotal.WithLabelValues(string(source), "conflict").Inc()
	return nil, fmt.Errorf("reconcile %s: %w", ref, repository.ErrStaleOrder)
}

func (s *reconcilerImpl) reconcileOnce(
	ctx context.Context,
	log *logger.Entry,
	ref OrderRef,
	status model.ProviderStatus,
	source model.Source,
	raw map[string]interface{},
) (*ReconcileResult, string, error) {
	order, err := s.find(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("order not found for provider event")
		return nil, "not_found", fmt.Errorf("%w: %s", ErrOrderNotFound, ref)
	}
	if err != nil {
		return nil, "error", fmt.Errorf("find order: %w", err)
	}
	log = log.WithField("order_id", order.ID)

	mapping, mapped := MapProviderStatus(status)

	if order.Status.IsTerminal() {
		if mapped && impliesChange(order, mapping) {
			log.WithField("order_status", order.Status).Warn("provider event for terminal order ignored")
			s.audit(ctx, &model.AuditLog{
				Action:     model.AuditReconcileAnomaly,
				EntityType: "order",
				EntityID:   order.ID,
				Details: datatypes.JSONMap{
					"source":         string(source),
					"providerStatus": string(status),
					"orderStatus":    string(order.Status),
					"paymentStatus":  string(order.PaymentStatus),
				},
			})
			return &ReconcileResult{Order: order, Anomaly: true}, "terminal", nil
		}
		return &ReconcileResult{Order: order}, "noop", nil
	}

	if !mapped {
		log.Warn("unmapped provider status, skipping")
		return &ReconcileResult{Order: order}, "unmapped", fmt.Errorf("%w: %q", ErrUnmappedProviderStatus, status)
	}

	orderChange := mapping.OrderStatus != "" && !order.Status.Reached(mapping.OrderStatus)
	paymentChange := mapping.PaymentStatus != order.PaymentStatus && order.PaymentStatus.CanAdvanceTo(mapping.PaymentStatus)

	if mapping.PaymentStatus != order.PaymentStatus && !paymentChange {
		log.WithField("payment_status", order.PaymentStatus).Debug("stale provider status would regress payment, ignored")
	}
	if !orderChange && !paymentChange {
		return &ReconcileResult{Order: order}, "noop", nil
	}

	newStatus := order.Status
	if orderChange {
		if err := model.ValidateTransition(order.Status, mapping.OrderStatus); err != nil {
			log.WithError(err).Warn("reconciliation rejected")
			s.audit(ctx, &model.AuditLog{
				Action:     model.AuditReconcileRejected,
				EntityType: "order",
				EntityID:   order.ID,
				Details: datatypes.JSONMap{
					"source":         string(source),
					"providerStatus": string(status),
					"from":           string(order.Status),
					"to":             string(mapping.OrderStatus),
				},
			})
			return &ReconcileResult{Order: order}, "rejected", err
		}
		newStatus = mapping.OrderStatus
	}

	newPayment := order.PaymentStatus
	if paymentChange {
		newPayment = mapping.PaymentStatus
	}

	now := s.now()
	paidAt := order.PaidAt
	if newPayment.IsPaid() && paidAt == nil {
		paidAt = &now
	}

	trace := map[string]interface{}{
		"providerStatus": string(status),
		"processedAt":    now.UTC().Format(time.RFC3339),
	}
	if raw != nil {
		trace["payload"] = raw
	}
	metadata := datatypes.JSONMap(model.MergeMetadata(order.Metadata, map[string]interface{}{
		string(source): trace,
	}))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.ApplyChange(ctx, tx, &model.OrderChange{
			OrderID:         order.ID,
			ExpectedVersion: order.Version,
			Status:          newStatus,
			PaymentStatus:   newPayment,
			PaidAt:          paidAt,
			Metadata:        metadata,
		}); err != nil {
			return err
		}

		if err := s.historyRepo.Create(ctx, tx, &model.OrderHistory{
			OrderID:        order.ID,
			PreviousStatus: order.Status,
			NewStatus:      newStatus,
			ChangedByID:    model.SystemActor.Ref(),
			Notes:          fmt.Sprintf("provider status %s via %s", status, source),
			Metadata: datatypes.JSONMap{
				"source":                string(source),
				"providerStatus":        string(status),
				"previousPaymentStatus": string(order.PaymentStatus),
				"paymentStatus":         string(newPayment),
			},
			ChangedAt: now,
		}); err != nil {
			return fmt.Errorf("append order history: %w", err)
		}

		if err := s.auditRepo.Create(ctx, tx, &model.AuditLog{
			Action:     model.AuditOrderStatusReconciled,
			EntityType: "order",
			EntityID:   order.ID,
			Details: datatypes.JSONMap{
				"source":                string(source),
				"providerStatus":        string(status),
				"previousStatus":        string(order.Status),
				"newStatus":             string(newStatus),
				"previousPaymentStatus": string(order.PaymentStatus),
				"paymentStatus":         string(newPayment),
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append audit log: %w", err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrStaleOrder) {
		return nil, "conflict", err
	}
	if err != nil {
		return nil, "error", fmt.Errorf("apply reconciliation: %w", err)
	}

	log.WithFields(logger.Fields{
		"from":           order.Status,
		"to":             newStatus,
		"payment_status": newPayment,
	}).Info("order reconciled")

	order.Status = newStatus
	order.PaymentStatus = newPayment
	order.PaidAt = paidAt
	order.Metadata = metadata
	order.Version++

	return &ReconcileResult{Applied: true, Order: order}, "applied", nil
}

func (s *reconcilerImpl) find(ctx context.Context, ref OrderRef) (*model.Order, error) {
	if ref.PaymentID != "" {
		return s.orderRepo.FindByProviderPaymentID(ctx, nil, ref.PaymentID)
	}
	return s.orderRepo.FindByID(ctx, nil, ref.OrderID)
}

// audit writes an audit row outside any order transaction. A failure is
// logged and swallowed so the caller's outcome stands.
func (s *reconcilerImpl) audit(ctx context.Context, entry *model.AuditLog) {
	if err := s.auditRepo.Create(ctx, nil, entry); err != nil {
		logger.WithError(err).WithField("action", entry.Action).Error("write audit log")
	}
}

// impliesChange reports whether mapping disagrees with where the order is.
func impliesChange(order *model.Order, mapping Mapping) bool {
	if mapping.OrderStatus != "" && !order.Status.Reached(mapping.OrderStatus) {
		return true
	}
	return mapping.PaymentStatus != order.PaymentStatus
}
