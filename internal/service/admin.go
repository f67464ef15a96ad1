package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docorder-service/internal/model"
	"docorder-service/internal/repository"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransitionRequest struct {
	OrderID string
	Status  model.OrderStatus
	// PaymentStatus is an explicit human override, e.g. marking a manual
	// refund. Empty leaves the payment status to reconciliation.
	PaymentStatus model.PaymentStatus
	Notes         string
	Admin         model.Actor
	IPAddress     string
}

type AdminService interface {
	Transition(ctx context.Context, req *TransitionRequest) (*model.Order, error)
	History(ctx context.Context, orderID string) ([]*model.OrderHistory, error)
}

type adminServiceImpl struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	historyRepo repository.OrderHistoryRepository
	auditRepo   repository.AuditLogRepository
	now         func() time.Time
}

func NewAdminService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	historyRepo repository.OrderHistoryRepository,
	auditRepo repository.AuditLogRepository,
) AdminService {
	return &adminServiceImpl{
		db:          db,
		orderRepo:   orderRepo,
		historyRepo: historyRepo,
		auditRepo:   auditRepo,
		now:         time.Now,
	}
}

func (s *adminServiceImpl) Transition(ctx context.Context, req *TransitionRequest) (*model.Order, error) {
	if req.PaymentStatus != "" && !req.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidOrder, req.PaymentStatus)
	}

	for attempt := 1; attempt <= maxReconcileAttempts; attempt++ {
		order, err := s.transitionOnce(ctx, req)
		if errors.Is(err, repository.ErrStaleOrder) {
			continue
		}
		return order, err
	}
	return nil, fmt.Errorf("transition order %s: %w", req.OrderID, repository.ErrStaleOrder)
}

func (s *adminServiceImpl) transitionOnce(ctx context.Context, req *TransitionRequest) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, nil, req.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, req.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	if err := model.ValidateTransition(order.Status, req.Status); err != nil {
		return nil, err
	}

	now := s.now()
	newPayment := order.PaymentStatus
	override := req.PaymentStatus != "" && req.PaymentStatus != order.PaymentStatus
	if override {
		newPayment = req.PaymentStatus
	}
	paidAt := order.PaidAt
	if newPayment.IsPaid() && paidAt == nil {
		paidAt = &now
	}

	source := model.SourceAdmin
	if override {
		source = model.SourceAdminOverride
	}
	adminID, _ := req.Admin.UserID()
	metadata := datatypes.JSONMap(model.MergeMetadata(order.Metadata, map[string]interface{}{
		string(source): map[string]interface{}{
			"adminId":     adminID,
			"status":      string(req.Status),
			"processedAt": now.UTC().Format(time.RFC3339),
		},
	}))

	historyMeta := datatypes.JSONMap{"source": string(source)}
	if override {
		historyMeta["previousPaymentStatus"] = string(order.PaymentStatus)
		historyMeta["paymentStatus"] = string(newPayment)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.ApplyChange(ctx, tx, &model.OrderChange{
			OrderID:         order.ID,
			ExpectedVersion: order.Version,
			Status:          req.Status,
			PaymentStatus:   newPayment,
			PaidAt:          paidAt,
			Metadata:        metadata,
		}); err != nil {
			return err
		}

		if err := s.historyRepo.Create(ctx, tx, &model.OrderHistory{
			OrderID:        order.ID,
			PreviousStatus: order.Status,
			NewStatus:      req.Status,
			ChangedByID:    req.Admin.Ref(),
			Notes:          req.Notes,
			Metadata:       historyMeta,
			ChangedAt:      now,
		}); err != nil {
			return fmt.Errorf("append order history: %w", err)
		}

		if err := s.auditRepo.Create(ctx, tx, &model.AuditLog{
			Action:     model.AuditOrderStatusChangedByAdmin,
			EntityType: "order",
			EntityID:   order.ID,
			ActorID:    req.Admin.Ref(),
			IPAddress:  req.IPAddress,
			Details: datatypes.JSONMap{
				"previousStatus": string(order.Status),
				"newStatus":      string(req.Status),
				"notes":          req.Notes,
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append audit log: %w", err)
		}

		if !override {
			return nil
		}
		if err := s.auditRepo.Create(ctx, tx, &model.AuditLog{
			Action:     model.AuditPaymentStatusOverridden,
			EntityType: "order",
			EntityID:   order.ID,
			ActorID:    req.Admin.Ref(),
			IPAddress:  req.IPAddress,
			Details: datatypes.JSONMap{
				"previousPaymentStatus": string(order.PaymentStatus),
				"paymentStatus":         string(newPayment),
				"notes":                 req.Notes,
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"order_id": order.ID,
		"admin_id": adminID,
		"from":     order.Status,
		"to":       req.Status,
		"override": override,
	}).Info("order status changed by admin")

	order.Status = req.Status
	order.PaymentStatus = newPayment
	order.PaidAt = paidAt
	order.Metadata = metadata
	order.Version++
	return order, nil
}

func (s *adminServiceImpl) History(ctx context.Context, orderID string) ([]*model.OrderHistory, error) {
	if _, err := s.orderRepo.FindByID(ctx, nil, orderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, err
	}
	return s.historyRepo.ListByOrder(ctx, nil, orderID)
}
