package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"docorder-service/internal/config"
	"docorder-service/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var (
	ErrGatewayTimeout  = errors.New("payment gateway timeout")
	ErrPaymentNotFound = errors.New("payment not found at gateway")
)

// GatewayError is a non-2xx answer from the payment gateway.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Body)
}

type GatewayClient interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error)
}

type Payment struct {
	ID          string
	Status      model.ProviderStatus
	Value       decimal.Decimal
	BillingType string
	// Raw is the provider payload as received, kept for order metadata.
	Raw map[string]interface{}
}

type CreatePaymentRequest struct {
	CustomerID        string
	BillingType       model.PaymentMethod
	Value             decimal.Decimal
	DueDate           time.Time
	Description       string
	ExternalReference string
}

type restPayment struct {
	ID          string               `json:"id"`
	Status      model.ProviderStatus `json:"status"`
	Value       decimal.Decimal      `json:"value"`
	BillingType string               `json:"billingType"`
}

type restCreatePayment struct {
	Customer          string          `json:"customer"`
	BillingType       string          `json:"billingType"`
	Value             decimal.Decimal `json:"value"`
	DueDate           string          `json:"dueDate"`
	Description       string          `json:"description,omitempty"`
	ExternalReference string          `json:"externalReference,omitempty"`
}

type restGatewayClientImpl struct {
	http *resty.Client
}

// NewRestGatewayClient talks to the gateway REST API. Requests are never
// retried here; the cron sweep's next run is the retry.
func NewRestGatewayClient(cfg *config.Gateway) GatewayClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseApiURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("access_token", cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &restGatewayClientImpl{http: httpClient}
}

func (c *restGatewayClientImpl) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		Get("/payments/{id}")
	if err != nil {
		return nil, classifyTransportError(err)
	}

	return decodePayment(resp)
}

func (c *restGatewayClientImpl) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&restCreatePayment{
			Customer:          req.CustomerID,
			BillingType:       string(req.BillingType),
			Value:             req.Value,
			DueDate:           req.DueDate.Format("2006-01-02"),
			Description:       req.Description,
			ExternalReference: req.ExternalReference,
		}).
		Post("/payments")
	if err != nil {
		return nil, classifyTransportError(err)
	}

	return decodePayment(resp)
}

func decodePayment(resp *resty.Response) (*Payment, error) {
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrPaymentNotFound
	case resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300:
		return nil, &GatewayError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}

	var p restPayment
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return nil, fmt.Errorf("decode gateway payment: %w", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode gateway payment: %w", err)
	}

	return &Payment{
		ID:          p.ID,
		Status:      p.Status,
		Value:       p.Value,
		BillingType: p.BillingType,
		Raw:         raw,
	}, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("payment gateway request: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
