package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ServiceType string

const (
	ServiceTypeProtestQuery       ServiceType = "PROTEST_QUERY"
	ServiceTypeCertificateRequest ServiceType = "CERTIFICATE_REQUEST"
)

func (t ServiceType) Valid() bool {
	return t == ServiceTypeProtestQuery || t == ServiceTypeCertificateRequest
}

type DocumentType string

const (
	DocumentTypeCPF  DocumentType = "CPF"
	DocumentTypeCNPJ DocumentType = "CNPJ"
)

func (t DocumentType) Valid() bool {
	return t == DocumentTypeCPF || t == DocumentTypeCNPJ
}

type PaymentMethod string

const (
	PaymentMethodPix        PaymentMethod = "PIX"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodBoleto     PaymentMethod = "BOLETO"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPix, PaymentMethodCreditCard, PaymentMethodBoleto:
		return true
	}
	return false
}

// Order is one purchase attempt. It is mutated only by the reconciliation
// writer and the admin transition service, both through
// repository.OrderRepository.ApplyChange.
type Order struct {
	ID             string          `gorm:"primaryKey;size:36;not null" json:"id"`
	OrderNumber    string          `gorm:"size:32;uniqueIndex;not null" json:"orderNumber"` // ORD-YYYYMMDD-NNNN
	UserID         string          `gorm:"size:64;index;not null" json:"userId"`
	ServiceType    ServiceType     `gorm:"size:32;not null" json:"serviceType"`
	DocumentNumber string          `gorm:"size:32;not null" json:"documentNumber"`
	DocumentType   DocumentType    `gorm:"size:8;not null" json:"documentType"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentMethod  PaymentMethod   `gorm:"size:16;not null" json:"paymentMethod"`

	// nil until a payment is created with the gateway
	ProviderPaymentID *string `gorm:"size:64;uniqueIndex" json:"providerPaymentId"`

	Status        OrderStatus       `gorm:"size:32;index;not null" json:"status"`
	PaymentStatus PaymentStatus     `gorm:"size:32;index;not null" json:"paymentStatus"`
	PaidAt        *time.Time        `json:"paidAt"`
	Metadata      datatypes.JSONMap `json:"metadata"`

	// optimistic concurrency token, bumped on every write
	Version int64 `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o *Order) PaymentID() string {
	if o.ProviderPaymentID == nil {
		return ""
	}
	return *o.ProviderPaymentID
}

// OrderHistory is append-only: one row per accepted status change.
type OrderHistory struct {
	ID             string            `gorm:"primaryKey;size:36;not null" json:"id"`
	OrderID        string            `gorm:"size:36;index;not null" json:"orderId"`
	PreviousStatus OrderStatus       `gorm:"size:32;not null" json:"previousStatus"`
	NewStatus      OrderStatus       `gorm:"size:32;not null" json:"newStatus"`
	ChangedByID    *string           `gorm:"size:64;index" json:"changedById"` // nil = system
	Notes          string            `gorm:"type:text" json:"notes"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	ChangedAt      time.Time         `gorm:"index;not null" json:"changedAt"`
}

func (OrderHistory) TableName() string { return "order_history" }

// OrderChange describes one atomic write to an order. ExpectedVersion is the
// version the change was computed against.
type OrderChange struct {
	OrderID         string
	ExpectedVersion int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaidAt          *time.Time
	Metadata        datatypes.JSONMap
}
