package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"docorder-service/internal/client"
	"docorder-service/internal/metrics"
	"docorder-service/internal/model"
	"docorder-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentDueDays = 3

var digitsOnly = regexp.MustCompile(`^\d+$`)

type CreateOrderInput struct {
	UserID         string
	ServiceType    model.ServiceType
	DocumentNumber string
	DocumentType   model.DocumentType
	Amount         decimal.Decimal
	PaymentMethod  model.PaymentMethod
}

type CreatePaymentInput struct {
	OrderID string
	UserID  string
	// CustomerID is the gateway customer owned by the user.
	CustomerID string
	IPAddress  string
}

type OrderService interface {
	CreateOrder(ctx context.Context, in *CreateOrderInput) (*model.Order, error)
	CreatePayment(ctx context.Context, in *CreatePaymentInput) (*model.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]*model.Order, error)
}

type orderServiceImpl struct {
	db             *gorm.DB
	orderRepo      repository.OrderRepository
	auditRepo      repository.AuditLogRepository
	gateway        client.GatewayClient
	gatewayTimeout time.Duration
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	auditRepo repository.AuditLogRepository,
	gateway client.GatewayClient,
	gatewayTimeout time.Duration,
) OrderService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &orderServiceImpl{
		db:             db,
		orderRepo:      orderRepo,
		auditRepo:      auditRepo,
		gateway:        gateway,
		gatewayTimeout: gatewayTimeout,
	}
}

func (s *orderServiceImpl) CreateOrder(ctx context.Context, in *CreateOrderInput) (*model.Order, error) {
	if err := validateOrderInput(in); err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		ServiceType:    in.ServiceType,
		DocumentNumber: in.DocumentNumber,
		DocumentType:   in.DocumentType,
		Amount:         in.Amount.Round(2),
		PaymentMethod:  in.PaymentMethod,
		Status:         model.OrderStatusAwaitingPayment,
		PaymentStatus:  model.PaymentStatusPending,
		Metadata:       datatypes.JSONMap{},
	}

	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	logger.WithFields(logger.Fields{"order_id": order.ID, "order_number": order.OrderNumber}).Info("order created")
	return order, nil
}

// CreatePayment registers the payment with the gateway and links it to the
// order. The gateway call happens before the write, so a webhook may reach
// us before the link commits; the queue consumer retries that case.
func (s *orderServiceImpl) CreatePayment(ctx context.Context, in *CreatePaymentInput) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, nil, in.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, in.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order.UserID != in.UserID {
		return nil, ErrNotOrderOwner
	}
	if order.ProviderPaymentID != nil {
		return nil, ErrPaymentExists
	}
	if order.Status != model.OrderStatusAwaitingPayment {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidOrder, order.Status)
	}
	if in.CustomerID == "" {
		return nil, fmt.Errorf("%w: user has no gateway customer", ErrInvalidOrder)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	started := time.Now()
	payment, err := s.gateway.CreatePayment(callCtx, &client.CreatePaymentRequest{
		CustomerID:        in.CustomerID,
		BillingType:       order.PaymentMethod,
		Value:             order.Amount,
		DueDate:           time.Now().AddDate(0, 0, paymentDueDays),
		Description:       fmt.Sprintf("%s %s", order.ServiceType, order.OrderNumber),
		ExternalReference: order.ID,
	})
	cancel()
	metrics.GatewayRequestDuration.WithLabelValues("create_payment").Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("create gateway payment: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.AttachPayment(ctx, tx, order.ID, payment.ID); err != nil {
			return err
		}
		return s.auditRepo.Create(ctx, tx, &model.AuditLog{
			Action:     model.AuditPaymentCreated,
			EntityType: "order",
			EntityID:   order.ID,
			ActorID:    model.UserActor(in.UserID).Ref(),
			IPAddress:  in.IPAddress,
			Details: datatypes.JSONMap{
				"paymentId":      payment.ID,
				"providerStatus": string(payment.Status),
				"billingType":    string(order.PaymentMethod),
				"value":          order.Amount.StringFixed(2),
			},
		})
	})
	if errors.Is(err, repository.ErrPaymentAlreadyAttached) {
		s.recordOrphanedPayment(ctx, order, in, payment, "order already had a payment attached")
		return nil, ErrPaymentExists
	}
	if err != nil {
		s.recordOrphanedPayment(ctx, order, in, payment, err.Error())
		return nil, fmt.Errorf("attach payment: %w", err)
	}

	logger.WithFields(logger.Fields{"order_id": order.ID, "payment_id": payment.ID}).Info("payment created")

	id := payment.ID
	order.ProviderPaymentID = &id
	order.Version++
	return order, nil
}

// recordOrphanedPayment leaves a trail for a gateway payment that exists at the
// provider but is referenced by no order, so it can be cancelled by hand.
func (s *orderServiceImpl) recordOrphanedPayment(ctx context.Context, order *model.Order, in *CreatePaymentInput, payment *client.Payment, reason string) {
	log := logger.WithFields(logger.Fields{"order_id": order.ID, "payment_id": payment.ID})
	log.WithField("reason", reason).Warn("gateway payment not attached to order")

	err := s.auditRepo.Create(context.WithoutCancel(ctx), nil, &model.AuditLog{
		Action:     model.AuditPaymentOrphaned,
		EntityType: "order",
		EntityID:   order.ID,
		ActorID:    model.UserActor(in.UserID).Ref(),
		IPAddress:  in.IPAddress,
		Details: datatypes.JSONMap{
			"paymentId":      payment.ID,
			"providerStatus": string(payment.Status),
			"reason":         reason,
		},
	})
	if err != nil {
		log.WithError(err).Error("write audit log")
	}
}

func (s *orderServiceImpl) ListUserOrders(ctx context.Context, userID string) ([]*model.Order, error) {
	return s.orderRepo.ListByUser(ctx, nil, userID)
}

func validateOrderInput(in *CreateOrderInput) error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: missing user", ErrInvalidOrder)
	case !in.ServiceType.Valid():
		return fmt.Errorf("%w: unknown service type %q", ErrInvalidOrder, in.ServiceType)
	case !in.DocumentType.Valid():
		return fmt.Errorf("%w: unknown document type %q", ErrInvalidOrder, in.DocumentType)
	case !in.PaymentMethod.Valid():
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, in.PaymentMethod)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	case !digitsOnly.MatchString(in.DocumentNumber):
		return fmt.Errorf("%w: document number must be digits", ErrInvalidOrder)
	case in.DocumentType == model.DocumentTypeCPF && len(in.DocumentNumber) != 11:
		return fmt.Errorf("%w: CPF has 11 digits", ErrInvalidOrder)
	case in.DocumentType == model.DocumentTypeCNPJ && len(in.DocumentNumber) != 14:
		return fmt.Errorf("%w: CNPJ has 14 digits", ErrInvalidOrder)
	}
	return nil
}
