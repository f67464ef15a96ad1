package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"docorder-service/internal/model"
	"docorder-service/internal/repository"
	"docorder-service/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestReconciler(db *gorm.DB) *reconcilerImpl {
	return NewReconciler(
		db,
		repository.NewOrderRepository(db),
		repository.NewOrderHistoryRepository(db),
		repository.NewAuditLogRepository(db),
	).(*reconcilerImpl)
}

func receivedEvent() map[string]interface{} {
	return map[string]interface{}{
		"event":   "payment.received",
		"payment": map[string]interface{}{"id": "pay_123", "status": "RECEIVED"},
	}
}

func TestReconcileScenario(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()

	order := testutil.SeedOrder(t, db, testutil.WithNumber("ORD-20250101-0001"), testutil.WithPaymentID("pay_123"))

	res, err := r.Reconcile(ctx, ByPaymentID("pay_123"), model.ProviderStatusReceived, model.SourceWebhook, receivedEvent())
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, model.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, got.Status)
	assert.NotNil(t, got.PaidAt)

	rows, err := repository.NewOrderHistoryRepository(db).ListByOrder(ctx, nil, order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "webhook", rows[0].Metadata["source"])
	assert.Equal(t, model.OrderStatusAwaitingPayment, rows[0].PreviousStatus)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, rows[0].NewStatus)
	assert.Nil(t, rows[0].ChangedByID)
	assert.Equal(t, int64(1), testutil.CountAudit(t, db, model.AuditOrderStatusReconciled))

	res, err = r.Reconcile(ctx, ByPaymentID("pay_123"), model.ProviderStatusReceived, model.SourceWebhook, receivedEvent())
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, int64(1), testutil.CountHistory(t, db, order.ID))
}

func TestReconcileIdempotentReplay(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_123"))

	var first *model.Order
	for i := 0; i < 5; i++ {
		_, err := r.Reconcile(ctx, ByPaymentID("pay_123"), model.ProviderStatusConfirmed, model.SourceWebhook, nil)
		require.NoError(t, err)
		got := testutil.ReloadOrder(t, db, order.ID)
		if first == nil {
			first = got
			continue
		}
		assert.Equal(t, first.Status, got.Status)
		assert.Equal(t, first.PaymentStatus, got.PaymentStatus)
		assert.Equal(t, first.Version, got.Version)
		assert.True(t, first.PaidAt.Equal(*got.PaidAt))
	}

	assert.Equal(t, int64(1), testutil.CountHistory(t, db, order.ID))
	assert.Equal(t, int64(1), testutil.CountAudit(t, db, model.AuditOrderStatusReconciled))
}

func TestReconcileTerminalOrdersAreImmutable(t *testing.T) {
	terminal := []struct {
		status  model.OrderStatus
		payment model.PaymentStatus
	}{
		{model.OrderStatusCompleted, model.PaymentStatusCompleted},
		{model.OrderStatusCancelled, model.PaymentStatusRefunded},
		{model.OrderStatusCancelled, model.PaymentStatusPending},
	}
	providerStatuses := []model.ProviderStatus{"PENDING", "RECEIVED", "CONFIRMED", "OVERDUE", "REFUNDED", "UNKNOWN"}
	sources := []model.Source{model.SourceWebhook, model.SourceCron, model.SourceDashboardSync}

	for _, tc := range terminal {
		t.Run(string(tc.status)+"/"+string(tc.payment), func(t *testing.T) {
			db := testutil.NewDB(t)
			r := newTestReconciler(db)
			ctx := context.Background()
			order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_t"), testutil.WithStatus(tc.status, tc.payment))

			for _, ps := range providerStatuses {
				for _, src := range sources {
					res, err := r.Reconcile(ctx, ByPaymentID("pay_t"), ps, src, nil)
					require.NoError(t, err)
					assert.False(t, res.Applied)
				}
			}

			got := testutil.ReloadOrder(t, db, order.ID)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.payment, got.PaymentStatus)
			assert.Equal(t, order.Version, got.Version)
			assert.Equal(t, int64(0), testutil.CountHistory(t, db, order.ID))
			assert.Positive(t, testutil.CountAudit(t, db, model.AuditReconcileAnomaly))
		})
	}
}

func TestReconcileTerminalAnomalyOnlyWhenChangeImplied(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_done"),
		testutil.WithStatus(model.OrderStatusCompleted, model.PaymentStatusCompleted))

	res, err := r.Reconcile(ctx, ByPaymentID("pay_done"), model.ProviderStatusConfirmed, model.SourceCron, nil)
	require.NoError(t, err)
	assert.False(t, res.Anomaly)
	assert.Equal(t, int64(0), testutil.CountAudit(t, db, model.AuditReconcileAnomaly))

	res, err = r.Reconcile(ctx, ByPaymentID("pay_done"), model.ProviderStatusRefunded, model.SourceWebhook, nil)
	require.NoError(t, err)
	assert.True(t, res.Anomaly)
	assert.Equal(t, int64(1), testutil.CountAudit(t, db, model.AuditReconcileAnomaly))
}

func TestReconcileConvergesAcrossSources(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_123"))

	res, err := r.Reconcile(ctx, ByPaymentID("pay_123"), model.ProviderStatusReceived, model.SourceCron, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = r.Reconcile(ctx, ByPaymentID("pay_123"), model.ProviderStatusConfirmed, model.SourceWebhook, nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	// a stale read that still says PENDING must not regress the order
	res, err = r.Reconcile(ctx, ByOrderID(order.ID), model.ProviderStatusPending, model.SourceDashboardSync, nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, got.Status)
	assert.Equal(t, model.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, int64(1), testutil.CountHistory(t, db, order.ID))
}

func TestReconcileLatePaymentForAdvancedOrder(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"),
		testutil.WithStatus(model.OrderStatusProcessing, model.PaymentStatusCompleted))

	res, err := r.Reconcile(context.Background(), ByPaymentID("pay_1"), model.ProviderStatusReceived, model.SourceWebhook, nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.OrderStatusProcessing, testutil.ReloadOrder(t, db, order.ID).Status)
}

func TestReconcileRejectsInvalidTransition(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"),
		testutil.WithStatus(model.OrderStatusPaymentConfirmed, model.PaymentStatusCompleted))

	_, err := r.Reconcile(context.Background(), ByPaymentID("pay_1"), model.ProviderStatusOverdue, model.SourceCron, nil)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, got.Status)
	assert.Equal(t, model.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, order.Version, got.Version)
	assert.Equal(t, int64(0), testutil.CountHistory(t, db, order.ID))
	assert.Equal(t, int64(1), testutil.CountAudit(t, db, model.AuditReconcileRejected))
}

func TestReconcileSetsPaidAtOnce(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))

	paidAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return paidAt }
	_, err := r.Reconcile(ctx, ByPaymentID("pay_1"), model.ProviderStatusReceived, model.SourceWebhook, nil)
	require.NoError(t, err)

	// move on to fulfilment, then the payment gets refunded
	require.NoError(t, db.Model(&model.Order{}).Where("id = ?", order.ID).
		Update("status", model.OrderStatusProcessing).Error)

	r.now = func() time.Time { return paidAt.Add(48 * time.Hour) }
	res, err := r.Reconcile(ctx, ByPaymentID("pay_1"), model.ProviderStatusRefunded, model.SourceCron, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)
	require.NotNil(t, got.PaidAt)
	assert.True(t, paidAt.Equal(got.PaidAt.UTC()))
}

func TestReconcileRefundAfterOverdue(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))

	res, err := r.Reconcile(ctx, ByPaymentID("pay_1"), model.ProviderStatusOverdue, model.SourceWebhook, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, model.OrderStatusPaymentRefused, got.Status)
	assert.Equal(t, model.PaymentStatusFailed, got.PaymentStatus)

	res, err = r.Reconcile(ctx, ByPaymentID("pay_1"), model.ProviderStatusRefunded, model.SourceWebhook, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got = testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)
	assert.Equal(t, int64(2), testutil.CountHistory(t, db, order.ID))
	assert.Equal(t, int64(0), testutil.CountAudit(t, db, model.AuditReconcileRejected))
}

func TestReconcileMergesMetadata(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))
	require.NoError(t, db.Model(&model.Order{}).Where("id = ?", order.ID).
		Update("metadata", datatypes.JSONMap{"checkout": map[string]interface{}{"ip": "10.0.0.1"}}).Error)

	_, err := r.Reconcile(ctx, ByPaymentID("pay_1"), model.ProviderStatusOverdue, model.SourceCron, map[string]interface{}{"id": "pay_1"})
	require.NoError(t, err)

	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Contains(t, got.Metadata, "checkout")
	require.Contains(t, got.Metadata, "cron")
	cron := got.Metadata["cron"].(map[string]interface{})
	assert.Equal(t, "OVERDUE", cron["providerStatus"])
	assert.NotNil(t, cron["payload"])
}

func TestReconcileMissingAndUnmapped(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))

	_, err := r.Reconcile(ctx, ByPaymentID("pay_unknown"), model.ProviderStatusReceived, model.SourceWebhook, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = r.Reconcile(ctx, ByPaymentID("pay_1"), "CHARGEBACK_REQUESTED", model.SourceWebhook, nil)
	assert.ErrorIs(t, err, ErrUnmappedProviderStatus)

	got := testutil.ReloadOrder(t, db, order.ID)
	assert.Equal(t, order.Version, got.Version)
	assert.Equal(t, int64(0), testutil.CountHistory(t, db, order.ID))
}

func TestReconcileConcurrentTriggersWriteOnce(t *testing.T) {
	db := testutil.NewDB(t)
	r := newTestReconciler(db)
	ctx := context.Background()
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_123"))

	sources := []model.Source{model.SourceWebhook, model.SourceCron, model.SourceDashboardSync}
	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func(src model.Source) {
			defer wg.Done()
			_, err := r.Reconcile(ctx, ByPaymentID("pay_123"), model.ProviderStatusReceived, src, nil)
			assert.NoError(t, err)
		}(sources[i%len(sources)])
	}
	wg.Wait()

	assert.Equal(t, int64(1), testutil.CountHistory(t, db, order.ID))
	assert.Equal(t, model.OrderStatusPaymentConfirmed, testutil.ReloadOrder(t, db, order.ID).Status)
}

// racingOrderRepo lets another writer bump the order version between the
// reconciler's read and its compare-and-swap.
type racingOrderRepo struct {
	repository.OrderRepository
	db    *gorm.DB
	races int
}

func (r *racingOrderRepo) ApplyChange(ctx context.Context, tx *gorm.DB, change *model.OrderChange) error {
	if r.races > 0 {
		r.races--
		if err := tx.Model(&model.Order{}).Where("id = ?", change.OrderID).
			Update("version", gorm.Expr("version + 1")).Error; err != nil {
			return err
		}
	}
	return r.OrderRepository.ApplyChange(ctx, tx, change)
}

func TestReconcileRetriesStaleWrite(t *testing.T) {
	db := testutil.NewDB(t)
	orders := &racingOrderRepo{OrderRepository: repository.NewOrderRepository(db), db: db, races: 1}
	r := NewReconciler(db, orders, repository.NewOrderHistoryRepository(db), repository.NewAuditLogRepository(db))
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))

	res, err := r.Reconcile(context.Background(), ByPaymentID("pay_1"), model.ProviderStatusReceived, model.SourceWebhook, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(1), testutil.CountHistory(t, db, order.ID))
}

func TestReconcileGivesUpAfterRepeatedConflicts(t *testing.T) {
	db := testutil.NewDB(t)
	orders := &racingOrderRepo{OrderRepository: repository.NewOrderRepository(db), db: db, races: maxReconcileAttempts}
	r := NewReconciler(db, orders, repository.NewOrderHistoryRepository(db), repository.NewAuditLogRepository(db))
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))

	_, err := r.Reconcile(context.Background(), ByPaymentID("pay_1"), model.ProviderStatusReceived, model.SourceWebhook, nil)
	assert.ErrorIs(t, err, repository.ErrStaleOrder)
	assert.Equal(t, int64(0), testutil.CountHistory(t, db, order.ID))
	assert.Equal(t, model.OrderStatusAwaitingPayment, testutil.ReloadOrder(t, db, order.ID).Status)
}
