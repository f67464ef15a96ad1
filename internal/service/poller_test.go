package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"docorder-service/internal/client"
	"docorder-service/internal/client/mocks"
	"docorder-service/internal/model"
	"docorder-service/internal/repository"
	"docorder-service/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestPoller(db *gorm.DB, gw client.GatewayClient, locker Locker) *Poller {
	return NewPoller(
		PollerConfig{Interval: 20 * time.Millisecond, Window: 7 * 24 * time.Hour, Delay: time.Millisecond, CallTimeout: time.Second},
		repository.NewOrderRepository(db),
		gw,
		newTestReconciler(db),
		locker,
	)
}

func payment(id string, status model.ProviderStatus) *client.Payment {
	return &client.Payment{ID: id, Status: status, Raw: map[string]interface{}{"id": id, "status": string(status)}}
}

func TestSweepCountsAndContinuesAfterErrors(t *testing.T) {
	db := testutil.NewDB(t)
	gw := mocks.NewGatewayClient(t)
	p := newTestPoller(db, gw, nil)

	paid := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_paid"), testutil.WithCreatedAt(time.Now().Add(-3*time.Hour)))
	testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_timeout"), testutil.WithCreatedAt(time.Now().Add(-2*time.Hour)))
	still := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_pending"), testutil.WithCreatedAt(time.Now().Add(-time.Hour)))
	testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_old"), testutil.WithCreatedAt(time.Now().Add(-8*24*time.Hour)))

	gw.EXPECT().GetPayment(mock.Anything, "pay_paid").Return(payment("pay_paid", model.ProviderStatusReceived), nil).Once()
	gw.EXPECT().GetPayment(mock.Anything, "pay_timeout").Return(nil, client.ErrGatewayTimeout).Once()
	gw.EXPECT().GetPayment(mock.Anything, "pay_pending").Return(payment("pay_pending", model.ProviderStatusPending), nil).Once()

	summary, err := p.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Errors)
	require.Len(t, summary.Details, 3)
	assert.Equal(t, SweepResultUpdated, summary.Details[0].Result)
	assert.Equal(t, SweepResultError, summary.Details[1].Result)
	assert.Equal(t, SweepResultUnchanged, summary.Details[2].Result)

	rows, err := repository.NewOrderHistoryRepository(db).ListByOrder(context.Background(), nil, paid.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cron", rows[0].Metadata["source"])
	assert.Equal(t, model.PaymentStatusPending, testutil.ReloadOrder(t, db, still.ID).PaymentStatus)
}

func TestSweepSkipsUnknownPaymentsAndStatuses(t *testing.T) {
	db := testutil.NewDB(t)
	gw := mocks.NewGatewayClient(t)
	p := newTestPoller(db, gw, nil)

	testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_gone"), testutil.WithCreatedAt(time.Now().Add(-2*time.Hour)))
	testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_weird"), testutil.WithCreatedAt(time.Now().Add(-time.Hour)))

	gw.EXPECT().GetPayment(mock.Anything, "pay_gone").Return(nil, client.ErrPaymentNotFound).Once()
	gw.EXPECT().GetPayment(mock.Anything, "pay_weird").Return(payment("pay_weird", "DUNNING_REQUESTED"), nil).Once()

	summary, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Errors)
}

func TestSweepGatewayCallIsNotCancelledWithSweep(t *testing.T) {
	db := testutil.NewDB(t)
	gw := mocks.NewGatewayClient(t)
	p := newTestPoller(db, gw, nil)
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))

	ctx, cancel := context.WithCancel(context.Background())
	gw.EXPECT().GetPayment(mock.Anything, "pay_1").
		RunAndReturn(func(callCtx context.Context, id string) (*client.Payment, error) {
			cancel()
			// the per-order context survives the sweep being cancelled
			assert.NoError(t, callCtx.Err())
			return payment(id, model.ProviderStatusConfirmed), nil
		}).Once()

	summary, err := p.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, model.PaymentStatusCompleted, testutil.ReloadOrder(t, db, order.ID).PaymentStatus)
}

func TestSweepStopsBetweenOrdersOnCancel(t *testing.T) {
	db := testutil.NewDB(t)
	gw := mocks.NewGatewayClient(t)
	p := newTestPoller(db, gw, nil)
	p.cfg.Delay = time.Second

	testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"), testutil.WithCreatedAt(time.Now().Add(-2*time.Hour)))
	testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_2"), testutil.WithCreatedAt(time.Now().Add(-time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	gw.EXPECT().GetPayment(mock.Anything, "pay_1").
		RunAndReturn(func(context.Context, string) (*client.Payment, error) {
			cancel()
			return payment("pay_1", model.ProviderStatusPending), nil
		}).Once()

	summary, err := p.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Checked)
}

type fakeLocker struct {
	held     atomic.Bool
	released atomic.Int32
	err      error
}

func (l *fakeLocker) TryLock(context.Context) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if !l.held.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() {
		l.released.Add(1)
		l.held.Store(false)
	}, true, nil
}

func TestSweepRespectsLocker(t *testing.T) {
	db := testutil.NewDB(t)
	gw := mocks.NewGatewayClient(t)

	locker := &fakeLocker{}
	locker.held.Store(true)
	p := newTestPoller(db, gw, locker)

	_, err := p.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	locker.held.Store(false)
	summary, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
	assert.Equal(t, int32(1), locker.released.Load())

	locker.err = errors.New("lock db down")
	_, err = p.Sweep(context.Background())
	assert.Error(t, err)
}

func TestPollerStartStopIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	gw := mocks.NewGatewayClient(t)
	p := newTestPoller(db, gw, nil)
	order := testutil.SeedOrder(t, db, testutil.WithPaymentID("pay_1"))

	gw.EXPECT().GetPayment(mock.Anything, "pay_1").Return(payment("pay_1", model.ProviderStatusReceived), nil).Maybe()

	assert.False(t, p.Stop(), "stop before start is a no-op")
	assert.True(t, p.Start(context.Background()))
	assert.False(t, p.Start(context.Background()), "second start is a no-op")
	assert.True(t, p.Running())

	assert.Eventually(t, func() bool {
		var o model.Order
		if err := db.First(&o, "id = ?", order.ID).Error; err != nil {
			return false
		}
		return o.Status == model.OrderStatusPaymentConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, p.Stop())
	assert.False(t, p.Stop())
	assert.False(t, p.Running())

	assert.True(t, p.Start(context.Background()), "restart after stop")
	assert.True(t, p.Stop())
}

func TestPollerRestartsAfterParentCancel(t *testing.T) {
	p := newTestPoller(testutil.NewDB(t), mocks.NewGatewayClient(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, p.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !p.Running() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, p.Stop(), "nothing left to stop")

	assert.True(t, p.Start(context.Background()), "start after the parent context ended")
	assert.True(t, p.Running())
	assert.True(t, p.Stop())
}
