package model

import (
	"time"

	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditWebhookSignatureInvalid   AuditAction = "WEBHOOK_SIGNATURE_INVALID"
	AuditRateLimitExceeded         AuditAction = "RATE_LIMIT_EXCEEDED"
	AuditWebhookProcessingFailed   AuditAction = "WEBHOOK_PROCESSING_FAILED"
	AuditOrderStatusReconciled     AuditAction = "ORDER_STATUS_RECONCILED"
	AuditReconcileAnomaly          AuditAction = "RECONCILE_ANOMALY"
	AuditReconcileRejected         AuditAction = "RECONCILE_REJECTED"
	AuditOrderStatusChangedByAdmin AuditAction = "ORDER_STATUS_CHANGED_BY_ADMIN"
	AuditPaymentStatusOverridden   AuditAction = "PAYMENT_STATUS_OVERRIDDEN"
	AuditPaymentCreated            AuditAction = "PAYMENT_CREATED"
	AuditPaymentOrphaned           AuditAction = "PAYMENT_ORPHANED"
)

// AuditLog is the cross-cutting security and operations trail. It is not
// tied to orders: rate-limit and signature failures land here too.
type AuditLog struct {
	ID         string            `gorm:"primaryKey;size:36;not null" json:"id"`
	Action     AuditAction       `gorm:"size:64;index;not null" json:"action"`
	EntityType string            `gorm:"size:32;index" json:"entityType"`
	EntityID   string            `gorm:"size:64;index" json:"entityId"`
	ActorID    *string           `gorm:"size:64" json:"actorId"`
	IPAddress  string            `gorm:"size:64" json:"ipAddress"`
	Details    datatypes.JSONMap `json:"details"`
	CreatedAt  time.Time         `gorm:"index" json:"createdAt"`
}

type WebhookEventStatus string

const (
	WebhookEventPending    WebhookEventStatus = "PENDING"
	WebhookEventProcessing WebhookEventStatus = "PROCESSING"
	WebhookEventProcessed  WebhookEventStatus = "PROCESSED"
	WebhookEventFailed     WebhookEventStatus = "FAILED"
)

// WebhookEvent is a queued provider notification waiting for the consumer.
// EventKey is "<payment id>:<event timestamp>" so redeliveries collapse.
type WebhookEvent struct {
	EventKey          string         `gorm:"primaryKey;size:160;not null"`
	EventType         string         `gorm:"size:64;index"`
	ProviderPaymentID string         `gorm:"size:64;index;not null"`
	ProviderStatus    ProviderStatus `gorm:"size:32;not null"`
	Payload           datatypes.JSONMap
	Status            WebhookEventStatus `gorm:"size:16;index;not null"`
	Attempts          int                `gorm:"not null;default:0"`
	LastError         string             `gorm:"type:text"`
	ProcessedAt       *time.Time
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
}

// All lists every table for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Order{},
		&OrderHistory{},
		&AuditLog{},
		&WebhookEvent{},
	}
}
