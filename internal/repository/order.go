package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"docorder-service/internal/model"

	"gorm.io/gorm"
)

const orderNumberAttempts = 5

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error)
	FindByProviderPaymentID(ctx context.Context, tx *gorm.DB, paymentID string) (*model.Order, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*model.Order, error)
	ListPendingByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*model.Order, error)
	ListSettling(ctx context.Context, tx *gorm.DB, since time.Time) ([]*model.Order, error)
	AttachPayment(ctx context.Context, tx *gorm.DB, orderID, paymentID string) error
	ApplyChange(ctx context.Context, tx *gorm.DB, change *model.OrderChange) error
}

type orderRepoImpl struct {
	db          *gorm.DB
	orderNumber func(now time.Time) string
}

type OrderRepositoryOption func(r *orderRepoImpl)

// WithOrderNumberGenerator replaces the random ORD-YYYYMMDD-NNNN generator.
func WithOrderNumberGenerator(fn func(now time.Time) string) OrderRepositoryOption {
	return func(r *orderRepoImpl) { r.orderNumber = fn }
}

func NewOrderRepository(db *gorm.DB, opts ...OrderRepositoryOption) OrderRepository {
	r := &orderRepoImpl{
		db:          db,
		orderNumber: RandomOrderNumber,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func RandomOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), rand.Intn(10000))
}

func (r *orderRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create assigns an order number and inserts the order. Each attempt runs
// in its own savepoint so a number collision does not poison tx.
func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}

	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = r.orderNumber(time.Now())

		err := r.conn(tx).WithContext(ctx).Transaction(func(sp *gorm.DB) error {
			return sp.Create(order).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}

	return ErrDuplicateOrderNumber
}

func (r *orderRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	return r.first(ctx, tx, "id = ?", id)
}

func (r *orderRepoImpl) FindByProviderPaymentID(ctx context.Context, tx *gorm.DB, paymentID string) (*model.Order, error) {
	return r.first(ctx, tx, "provider_payment_id = ?", paymentID)
}

func (r *orderRepoImpl) first(ctx context.Context, tx *gorm.DB, query string, arg interface{}) (*model.Order, error) {
	var order model.Order
	err := r.conn(tx).WithContext(ctx).
		Where(query, arg).
		First(&order).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error

	return orders, err
}

func (r *orderRepoImpl) ListPendingByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Where("provider_payment_id IS NOT NULL").
		Where("payment_status IN ?", model.SettlingPaymentStatuses).
		Order("created_at ASC").
		Find(&orders).Error

	return orders, err
}

func (r *orderRepoImpl) ListSettling(ctx context.Context, tx *gorm.DB, since time.Time) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.conn(tx).WithContext(ctx).
		Where("provider_payment_id IS NOT NULL").
		Where("payment_status IN ?", model.SettlingPaymentStatuses).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&orders).Error

	return orders, err
}

func (r *orderRepoImpl) AttachPayment(ctx context.Context, tx *gorm.DB, orderID, paymentID string) error {
	result := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND provider_payment_id IS NULL", orderID).
		Updates(map[string]interface{}{
			"provider_payment_id": paymentID,
			"version":             gorm.Expr("version + 1"),
			"updated_at":          time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentAlreadyAttached
	}
	return nil
}

// ApplyChange writes status, payment status, paidAt and metadata only if the
// order is still at change.ExpectedVersion, and bumps the version.
func (r *orderRepoImpl) ApplyChange(ctx context.Context, tx *gorm.DB, change *model.OrderChange) error {
	result := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND version = ?", change.OrderID, change.ExpectedVersion).
		Updates(map[string]interface{}{
			"status":         change.Status,
			"payment_status": change.PaymentStatus,
			"paid_at":        change.PaidAt,
			"metadata":       change.Metadata,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleOrder
	}
	return nil
}
