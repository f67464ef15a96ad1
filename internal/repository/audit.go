package repository

import (
	"context"
	"time"

	"docorder-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditFilter struct {
	Action   model.AuditAction
	EntityID string
	Limit    int
}

type AuditLogRepository interface {
	// Create writes inside tx, or standalone when tx is nil.
	Create(ctx context.Context, tx *gorm.DB, entry *model.AuditLog) error
	List(ctx context.Context, tx *gorm.DB, filter AuditFilter) ([]*model.AuditLog, error)
}

type auditLogRepoImpl struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepoImpl{db: db}
}

func (r *auditLogRepoImpl) Create(ctx context.Context, tx *gorm.DB, entry *model.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepoImpl) List(ctx context.Context, tx *gorm.DB, filter AuditFilter) ([]*model.AuditLog, error) {
	if tx == nil {
		tx = r.db
	}

	q := tx.WithContext(ctx).Order("created_at ASC")
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var entries []*model.AuditLog
	err := q.Find(&entries).Error
	return entries, err
}
