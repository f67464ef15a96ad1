package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"docorder-service/internal/config"
	"docorder-service/internal/model"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

type braintreeGatewayClientImpl struct {
	gateway *braintree.Braintree
}

// NewBraintreeGatewayClient serves card payments through Braintree
// transactions. A transaction id plays the role of the provider payment id.
func NewBraintreeGatewayClient(cfg *config.Braintree) GatewayClient {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	gateway := braintree.New(
		env,
		cfg.MerchantID,
		cfg.PublicKey,
		cfg.PrivateKey,
	)

	return &braintreeGatewayClientImpl{
		gateway: gateway,
	}
}

func (c *braintreeGatewayClientImpl) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	tx, err := c.gateway.Transaction().Find(ctx, paymentID)
	if err != nil {
		return nil, classifyBraintreeError(err)
	}

	return paymentFromTransaction(tx), nil
}

func (c *braintreeGatewayClientImpl) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	if req.BillingType != model.PaymentMethodCreditCard {
		return nil, fmt.Errorf("braintree supports only %s, got %s", model.PaymentMethodCreditCard, req.BillingType)
	}

	// Braintree expects NewDecimal(unscaled, scale): "89.90" -> NewDecimal(8990, 2)
	cents := req.Value.Mul(decimal.NewFromInt(100)).IntPart()

	tx, err := c.gateway.Transaction().Create(ctx, &braintree.TransactionRequest{
		Type:       "sale",
		Amount:     braintree.NewDecimal(cents, 2),
		CustomerID: req.CustomerID,
		OrderId:    req.ExternalReference,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true,
		},
	})
	if err != nil {
		return nil, classifyBraintreeError(err)
	}

	return paymentFromTransaction(tx), nil
}

func paymentFromTransaction(tx *braintree.Transaction) *Payment {
	var value decimal.Decimal
	if tx.Amount != nil {
		value = decimal.New(tx.Amount.Unscaled, -int32(tx.Amount.Scale))
	}

	status := braintreeProviderStatus(string(tx.Status))
	return &Payment{
		ID:          tx.Id,
		Status:      status,
		Value:       value,
		BillingType: string(model.PaymentMethodCreditCard),
		Raw: map[string]interface{}{
			"id":                    tx.Id,
			"status":                string(tx.Status),
			"type":                  tx.Type,
			"orderId":               tx.OrderId,
			"processorResponseText": tx.ProcessorResponseText,
		},
	}
}

// braintreeProviderStatus folds Braintree transaction states into the
// provider statuses the reconciler understands. Unknown states pass through
// unchanged so the reconciler can log and skip them.
func braintreeProviderStatus(status string) model.ProviderStatus {
	switch status {
	case "authorizing", "authorized", "submitted_for_settlement", "settlement_pending":
		return model.ProviderStatusPending
	case "settling", "settled", "settlement_confirmed":
		return model.ProviderStatusConfirmed
	case "processor_declined", "gateway_rejected", "failed", "settlement_declined", "authorization_expired", "voided":
		return model.ProviderStatusOverdue
	}
	return model.ProviderStatus(status)
}

func classifyBraintreeError(err error) error {
	var apiErr braintree.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode() == http.StatusNotFound {
		return ErrPaymentNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("braintree transaction: %w", err)
}
