package dto

import (
	"docorder-service/internal/model"

	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	ServiceType    model.ServiceType   `json:"serviceType"`
	DocumentNumber string              `json:"documentNumber"`
	DocumentType   model.DocumentType  `json:"documentType"`
	Amount         decimal.Decimal     `json:"amount"`
	PaymentMethod  model.PaymentMethod `json:"paymentMethod"`
}

type TransitionRequest struct {
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus,omitempty"`
	Notes         string              `json:"notes"`
}

type SyncResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

type OrdersResponse struct {
	Orders []*model.Order `json:"orders"`
	Sync   *SyncResult    `json:"sync,omitempty"`
}

type HistoryResponse struct {
	OrderID string                `json:"orderId"`
	History []*model.OrderHistory `json:"history"`
}
