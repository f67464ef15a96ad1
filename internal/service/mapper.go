package service

import (
	"strings"

	"docorder-service/internal/model"
)

// Mapping is what a provider status means for an order. An empty
// OrderStatus leaves the order status unchanged.
type Mapping struct {
	PaymentStatus model.PaymentStatus
	OrderStatus   model.OrderStatus
}

var providerStatusMappings = map[model.ProviderStatus]Mapping{
	model.ProviderStatusReceived:  {PaymentStatus: model.PaymentStatusCompleted, OrderStatus: model.OrderStatusPaymentConfirmed},
	model.ProviderStatusConfirmed: {PaymentStatus: model.PaymentStatusCompleted, OrderStatus: model.OrderStatusPaymentConfirmed},
	model.ProviderStatusPending:   {PaymentStatus: model.PaymentStatusPending},
	model.ProviderStatusOverdue:   {PaymentStatus: model.PaymentStatusFailed, OrderStatus: model.OrderStatusPaymentRefused},
	model.ProviderStatusRefunded:  {PaymentStatus: model.PaymentStatusRefunded, OrderStatus: model.OrderStatusCancelled},
}

// MapProviderStatus is the only provider-to-internal status table. Webhook,
// queue consumer, cron and dashboard sync all go through it.
func MapProviderStatus(status model.ProviderStatus) (Mapping, bool) {
	m, ok := providerStatusMappings[model.ProviderStatus(strings.ToUpper(strings.TrimSpace(string(status))))]
	return m, ok
}
