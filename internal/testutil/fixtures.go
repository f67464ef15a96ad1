package testutil

import (
	"testing"
	"time"

	"docorder-service/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type OrderOption func(o *model.Order)

func WithPaymentID(id string) OrderOption {
	return func(o *model.Order) { o.ProviderPaymentID = &id }
}

func WithStatus(s model.OrderStatus, p model.PaymentStatus) OrderOption {
	return func(o *model.Order) {
		o.Status = s
		o.PaymentStatus = p
	}
}

func WithUser(userID string) OrderOption {
	return func(o *model.Order) { o.UserID = userID }
}

func WithNumber(number string) OrderOption {
	return func(o *model.Order) { o.OrderNumber = number }
}

func WithCreatedAt(at time.Time) OrderOption {
	return func(o *model.Order) { o.CreatedAt = at }
}

// SeedOrder stores an AWAITING_PAYMENT/PENDING order for 89.90.
func SeedOrder(t testing.TB, db *gorm.DB, opts ...OrderOption) *model.Order {
	t.Helper()

	order := &model.Order{
		ID:             uuid.NewString(),
		OrderNumber:    "ORD-20250101-" + uuid.NewString()[:4],
		UserID:         "user-1",
		ServiceType:    model.ServiceTypeProtestQuery,
		DocumentNumber: "12345678909",
		DocumentType:   model.DocumentTypeCPF,
		Amount:         decimal.RequireFromString("89.90"),
		PaymentMethod:  model.PaymentMethodPix,
		Status:         model.OrderStatusAwaitingPayment,
		PaymentStatus:  model.PaymentStatusPending,
		Version:        1,
	}
	for _, opt := range opts {
		opt(order)
	}

	require.NoError(t, db.Create(order).Error)
	return order
}

func ReloadOrder(t testing.TB, db *gorm.DB, id string) *model.Order {
	t.Helper()

	var order model.Order
	require.NoError(t, db.First(&order, "id = ?", id).Error)
	return &order
}

func CountHistory(t testing.TB, db *gorm.DB, orderID string) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&model.OrderHistory{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

func CountAudit(t testing.TB, db *gorm.DB, action model.AuditAction) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}
