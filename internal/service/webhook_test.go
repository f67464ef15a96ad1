package service

import (
	"context"
	"errors"
	"testing"

	"docorder-service/internal/model"
	"docorder-service/internal/repository"
	"docorder-service/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const receivedBody = `{"event":"payment.received","payment":{"id":"pay_123","status":"RECEIVED","value":89.90}}`

func newTestWebhookService(db *gorm.DB, queue bool) WebhookService {
	return NewWebhookService(
		WebhookConfig{Token: "s3cret-token", QueueEnabled: queue},
		newTestReconciler(db),
		repository.NewWebhookEventRepository(db),
		repository.NewAuditLogRepository(db),
	)
}

func TestVerifySignature(t *testing.T) {
	testCases := []struct {
		name      string
		signature string
		wantErr   bool
	}{
		{name: "valid", signature: "s3cret-token"},
		{name: "missing", signature: "", wantErr: true},
		{name: "mismatch", signature: "s3cret-tokex", wantErr: true},
		{name: "prefix", signature: "s3cret", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := testutil.NewDB(t)
			svc := newTestWebhookService(db, false)

			err := svc.VerifySignature(context.Background(), tc.signature, "203.0.113.7")
			if !tc.wantErr {
				assert.NoError(t, err)
				assert.Equal(t, int64(0), testutil.CountAudit(t, db, model.AuditWebhookSignatureInvalid))
				return
			}
			assert.ErrorIs(t, err, ErrInvalidSignature)

			entries, err := repository.NewAuditLogRepository(db).List(context.Background(), nil,
				repository.AuditFilter{Action: model.AuditWebhookSignatureInvalid})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "203.0.113.7", entries[0].IPAddress)
			assert.NotContains(t, entries[0].Details["signature"], "token")
		})
	}
}

func TestVerifySignatureWithoutConfiguredToken(t *testing.T) {
	testCases := []struct {
		name          string
		allowUnsigned bool
		wantErr       bool
	}{
		{name: "rejected by default", wantErr: true},
		{name: "explicitly allowed", allowUnsigned: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := testutil.NewDB(t)
			svc := NewWebhookService(
				WebhookConfig{AllowUnsigned: tc.allowUnsigned},
				newTestReconciler(db),
				repository.NewWebhookEventRepository(db),
				repository.NewAuditLogRepository(db),
			)

			err := svc.VerifySignature(context.Background(), "", "203.0.113.7")
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidSignature)

			entries, err := repository.NewAuditLogRepository(db).List(context.Background(), nil,
				repository.AuditFilter{Action: model.AuditWebhookSignatureInvalid})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "token_not_configured", entries[0].Details["reason"])
		})
	}
}

func TestAcceptDirect(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTestWebhookService(db, false)
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_123"))

	ack, err := svc.Accept(context.Background(), []byte(receivedBody), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, WebhookModeDirect, ack.Mode)
	assert.True(t, ack.Processed)

	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, got.Status)
	assert.Equal(t, "payment.received", got.Metadata["webhook"].(map[string]interface{})["payload"].(map[string]interface{})["event"])
}

func TestAcceptDirectFailureIsAcknowledged(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTestWebhookService(db, false)

	ack, err := svc.Accept(context.Background(), []byte(receivedBody), "203.0.113.7")
	require.NoError(t, err, "the provider must not see internal failures")
	assert.False(t, ack.Processed)

	entries, err := repository.NewAuditLogRepository(db).List(context.Background(), nil,
		repository.AuditFilter{Action: model.AuditWebhookProcessingFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "order_not_found", entries[0].Details["kind"])
}

func TestAcceptMalformed(t *testing.T) {
	testCases := map[string]string{
		"not json":           `{"event":`,
		"missing payment id": `{"event":"payment.received","payment":{"status":"RECEIVED"}}`,
		"missing payment":    `{"event":"payment.received"}`,
	}

	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			db := testutil.NewDB(t)
			svc := newTestWebhookService(db, false)

			_, err := svc.Accept(context.Background(), []byte(body), "203.0.113.7")
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestAcceptQueued(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTestWebhookService(db, true)
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_123"))

	ack, err := svc.Accept(context.Background(), []byte(receivedBody), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, WebhookModeQueued, ack.Mode)
	assert.False(t, ack.Duplicate)

	ack, err = svc.Accept(context.Background(), []byte(receivedBody), "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)

	// nothing is applied until the consumer runs
	assert.Equal(t, model.OrderStatusAwaitingPayment, testutil.ReloadOrder(t, db, order.ID).Status)

	var events []model.WebhookEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "pay_123:payment.received/RECEIVED", events[0].EventKey)
}

type failingEventRepo struct {
	repository.WebhookEventRepository
}

func (failingEventRepo) Enqueue(context.Context, *gorm.DB, *model.WebhookEvent) (bool, error) {
	return false, errors.New("queue unavailable")
}

func TestAcceptFallsBackToDirectWhenQueueFails(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewWebhookService(
		WebhookConfig{Token: "s3cret-token", QueueEnabled: true},
		newTestReconciler(db),
		failingEventRepo{repository.NewWebhookEventRepository(db)},
		repository.NewAuditLogRepository(db),
	)
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_123"))

	ack, err := svc.Accept(context.Background(), []byte(receivedBody), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, WebhookModeDirect, ack.Mode)
	assert.True(t, ack.Processed)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, testutil.ReloadOrder(t, db, order.ID).Status)
}

func TestEventKey(t *testing.T) {
	e := &model.PaymentWebhookEvent{Event: "PAYMENT_RECEIVED", DateCreated: "2025-01-01 10:00:00",
		Payment: model.WebhookPayment{ID: "pay_1", Status: model.ProviderStatusReceived}}
	assert.Equal(t, "pay_1:2025-01-01 10:00:00", EventKey(e))

	e.DateCreated = ""
	assert.Equal(t, "pay_1:PAYMENT_RECEIVED/RECEIVED", EventKey(e))
}

func TestRecordRateLimited(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTestWebhookService(db, false)

	svc.RecordRateLimited(context.Background(), "198.51.100.1", "/api/webhooks/payments")
	assert.Equal(t, int64(1), testutil.CountAudit(t, db, model.AuditRateLimitExceeded))
}
