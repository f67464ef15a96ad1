package repository

import (
	"context"
	"time"

	"docorder-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	// Enqueue stores the event unless its key is already known; inserted is
	// false for a redelivery.
	Enqueue(ctx context.Context, tx *gorm.DB, event *model.WebhookEvent) (inserted bool, err error)
	ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]*model.WebhookEvent, error)
	Claim(ctx context.Context, tx *gorm.DB, eventKey string) (bool, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, eventKey string) error
	MarkRetry(ctx context.Context, tx *gorm.DB, eventKey, lastError string) error
	MarkFailed(ctx context.Context, tx *gorm.DB, eventKey, lastError string) error
	RequeueStale(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error)
}

type webhookEventRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db}
}

func (r *webhookEventRepositoryImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *webhookEventRepositoryImpl) Enqueue(ctx context.Context, tx *gorm.DB, event *model.WebhookEvent) (bool, error) {
	if event.Status == "" {
		event.Status = model.WebhookEventPending
	}

	result := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)

	return result.RowsAffected > 0, result.Error
}

func (r *webhookEventRepositoryImpl) ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent
	err := r.conn(tx).WithContext(ctx).
		Where("status = ?", model.WebhookEventPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error

	return events, err
}

// Claim moves a PENDING event to PROCESSING. Only one consumer wins.
func (r *webhookEventRepositoryImpl) Claim(ctx context.Context, tx *gorm.DB, eventKey string) (bool, error) {
	result := r.conn(tx).WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_key = ? AND status = ?", eventKey, model.WebhookEventPending).
		Updates(map[string]interface{}{
			"status":     model.WebhookEventProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *webhookEventRepositoryImpl) MarkProcessed(ctx context.Context, tx *gorm.DB, eventKey string) error {
	now := time.Now()
	return r.setStatus(ctx, tx, eventKey, map[string]interface{}{
		"status":       model.WebhookEventProcessed,
		"last_error":   "",
		"processed_at": &now,
		"updated_at":   now,
	})
}

func (r *webhookEventRepositoryImpl) MarkRetry(ctx context.Context, tx *gorm.DB, eventKey, lastError string) error {
	return r.setStatus(ctx, tx, eventKey, map[string]interface{}{
		"status":     model.WebhookEventPending,
		"last_error": lastError,
		"updated_at": time.Now(),
	})
}

func (r *webhookEventRepositoryImpl) MarkFailed(ctx context.Context, tx *gorm.DB, eventKey, lastError string) error {
	now := time.Now()
	return r.setStatus(ctx, tx, eventKey, map[string]interface{}{
		"status":       model.WebhookEventFailed,
		"last_error":   lastError,
		"processed_at": &now,
		"updated_at":   now,
	})
}

// RequeueStale returns events left PROCESSING by a crashed consumer.
func (r *webhookEventRepositoryImpl) RequeueStale(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error) {
	result := r.conn(tx).WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("status = ? AND updated_at < ?", model.WebhookEventProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":     model.WebhookEventPending,
			"updated_at": time.Now(),
		})

	return result.RowsAffected, result.Error
}

func (r *webhookEventRepositoryImpl) setStatus(ctx context.Context, tx *gorm.DB, eventKey string, values map[string]interface{}) error {
	result := r.conn(tx).WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_key = ?", eventKey).
		Updates(values)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
