package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docorder-service/internal/client"
	"docorder-service/internal/metrics"
	"docorder-service/internal/model"
	"docorder-service/internal/repository"

	logger "github.com/sirupsen/logrus"
)

var ErrSweepInProgress = errors.New("reconciliation sweep already running")

// Locker elects one sweeper across replicas. TryLock never waits.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

type PollerConfig struct {
	Interval    time.Duration
	Window      time.Duration
	Delay       time.Duration
	CallTimeout time.Duration
}

type SweepResult string

const (
	SweepResultUpdated   SweepResult = "updated"
	SweepResultUnchanged SweepResult = "unchanged"
	SweepResultSkipped   SweepResult = "skipped"
	SweepResultError     SweepResult = "error"
)

type SweepDetail struct {
	OrderID        string               `json:"orderId"`
	OrderNumber    string               `json:"orderNumber"`
	PaymentID      string               `json:"paymentId"`
	ProviderStatus model.ProviderStatus `json:"providerStatus,omitempty"`
	Result         SweepResult          `json:"result"`
	Error          string               `json:"error,omitempty"`
}

type SweepSummary struct {
	Checked    int           `json:"checked"`
	Updated    int           `json:"updated"`
	Errors     int           `json:"errors"`
	Skipped    int           `json:"skipped"`
	Details    []SweepDetail `json:"details"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Poller sweeps orders whose payment is still settling and reconciles them
// against the gateway.
type Poller struct {
	cfg        PollerConfig
	orderRepo  repository.OrderRepository
	gateway    client.GatewayClient
	reconciler Reconciler
	locker     Locker

	sweeping sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// NewPoller builds a poller. locker may be nil for a single replica.
func NewPoller(
	cfg PollerConfig,
	orderRepo repository.OrderRepository,
	gateway client.GatewayClient,
	reconciler Reconciler,
	locker Locker,
) *Poller {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Poller{
		cfg:        cfg,
		orderRepo:  orderRepo,
		gateway:    gateway,
		reconciler: reconciler,
		locker:     locker,
		now:        time.Now,
	}
}

// Sweep runs one pass. A failure on one order is recorded in the summary
// and the sweep moves on. Cancelling ctx stops the sweep between orders,
// never in the middle of one.
func (p *Poller) Sweep(ctx context.Context) (*SweepSummary, error) {
	if !p.sweeping.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer p.sweeping.Unlock()

	if p.locker != nil {
		release, ok, err := p.locker.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w on another replica", ErrSweepInProgress)
		}
		defer release()
	}

	summary := &SweepSummary{StartedAt: p.now(), Details: []SweepDetail{}}
	defer func() {
		summary.FinishedAt = p.now()
		metrics.SweepDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}()

	orders, err := p.orderRepo.ListSettling(ctx, nil, p.now().Add(-p.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("list settling orders: %w", err)
	}

	logger.WithField("orders", len(orders)).Info("reconciliation sweep started")

	for i, order := range orders {
		if i > 0 {
			if err := waitOrCancel(ctx, p.cfg.Delay); err != nil {
				logger.WithField("remaining", len(orders)-i).Warn("reconciliation sweep interrupted")
				return summary, err
			}
		}

		detail := p.checkOrder(context.WithoutCancel(ctx), order)
		summary.Checked++
		switch detail.Result {
		case SweepResultUpdated:
			summary.Updated++
		case SweepResultSkipped:
			summary.Skipped++
		case SweepResultError:
			summary.Errors++
		}
		metrics.SweepOrdersTotal.WithLabelValues(string(detail.Result)).Inc()
		summary.Details = append(summary.Details, detail)
	}

	logger.WithFields(logger.Fields{
		"checked": summary.Checked,
		"updated": summary.Updated,
		"errors":  summary.Errors,
		"skipped": summary.Skipped,
	}).Info("reconciliation sweep finished")

	return summary, nil
}

func (p *Poller) checkOrder(ctx context.Context, order *model.Order) SweepDetail {
	detail := SweepDetail{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PaymentID:   order.PaymentID(),
	}
	log := logger.WithFields(logger.Fields{"order_id": order.ID, "payment_id": order.PaymentID(), "source": model.SourceCron})

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	started := time.Now()
	payment, err := p.gateway.GetPayment(callCtx, order.PaymentID())
	cancel()
	metrics.GatewayRequestDuration.WithLabelValues("get_payment").Observe(time.Since(started).Seconds())

	if errors.Is(err, client.ErrPaymentNotFound) {
		log.Warn("payment unknown to gateway")
		detail.Result = SweepResultSkipped
		detail.Error = err.Error()
		return detail
	}
	if err != nil {
		log.WithError(err).Error("fetch payment from gateway")
		detail.Result = SweepResultError
		detail.Error = err.Error()
		return detail
	}
	detail.ProviderStatus = payment.Status

	res, err := p.reconciler.Reconcile(ctx, ByPaymentID(order.PaymentID()), payment.Status, model.SourceCron, payment.Raw)
	switch {
	case errors.Is(err, ErrUnmappedProviderStatus), errors.Is(err, ErrOrderNotFound):
		detail.Result = SweepResultSkipped
		detail.Error = err.Error()
	case err != nil:
		detail.Result = SweepResultError
		detail.Error = err.Error()
	case res.Applied:
		detail.Result = SweepResultUpdated
	default:
		detail.Result = SweepResultUnchanged
	}
	return detail
}

// Start launches the interval loop if it is not already running and
// reports whether it did.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	logger.WithField("interval", p.cfg.Interval).Info("reconciliation poller started")
	return true
}

// Stop ends the interval loop if it is running, waits for an in-flight
// order to finish and reports whether it stopped anything.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return false
	}
	p.cancel()
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	<-done
	logger.Info("reconciliation poller stopped")
	return true
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// a cancelled parent context ends the loop without Stop; clear the
		// handle so Start can launch a new one
		p.mu.Lock()
		if p.done == done {
			p.cancel()
			p.cancel = nil
			p.done = nil
		}
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("scheduled reconciliation sweep")
			}
		}
	}
}
