package repository

import (
	"context"
	"time"

	"docorder-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderHistoryRepository interface {
	Create(ctx context.Context, tx *gorm.DB, entry *model.OrderHistory) error
	ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderHistory, error)
}

type orderHistoryRepoImpl struct {
	db *gorm.DB
}

func NewOrderHistoryRepository(db *gorm.DB) OrderHistoryRepository {
	return &orderHistoryRepoImpl{db: db}
}

func (r *orderHistoryRepoImpl) Create(ctx context.Context, tx *gorm.DB, entry *model.OrderHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now()
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *orderHistoryRepoImpl) ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderHistory, error) {
	if tx == nil {
		tx = r.db
	}

	var entries []*model.OrderHistory
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("changed_at ASC").
		Find(&entries).Error

	return entries, err
}
