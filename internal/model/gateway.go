package model

import "github.com/shopspring/decimal"

// PaymentWebhookEvent is the body the gateway POSTs to the webhook endpoint.
type PaymentWebhookEvent struct {
	Event       string         `json:"event"`
	DateCreated string         `json:"dateCreated,omitempty"`
	Payment     WebhookPayment `json:"payment"`
}

type WebhookPayment struct {
	ID                string          `json:"id"`
	Status            ProviderStatus  `json:"status"`
	Value             decimal.Decimal `json:"value"`
	BillingType       string          `json:"billingType,omitempty"`
	Customer          string          `json:"customer,omitempty"`
	ExternalReference string          `json:"externalReference,omitempty"`
	PaymentDate       string          `json:"paymentDate,omitempty"`
}
