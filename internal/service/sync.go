package service

import (
	"context"
	"errors"
	"time"

	"docorder-service/internal/client"
	"docorder-service/internal/model"
	"docorder-service/internal/repository"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const syncConcurrency = 4

type SyncSummary struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// SyncService refreshes a user's pending orders from the gateway while
// they look at them.
type SyncService interface {
	SyncUserOrders(ctx context.Context, userID string) *SyncSummary
}

type syncServiceImpl struct {
	orderRepo  repository.OrderRepository
	gateway    client.GatewayClient
	reconciler Reconciler
	timeout    time.Duration
	inflight   singleflight.Group
}

func NewSyncService(
	orderRepo repository.OrderRepository,
	gateway client.GatewayClient,
	reconciler Reconciler,
	timeout time.Duration,
) SyncService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &syncServiceImpl{
		orderRepo:  orderRepo,
		gateway:    gateway,
		reconciler: reconciler,
		timeout:    timeout,
	}
}

// SyncUserOrders never fails the read that triggered it: every problem is
// logged and counted.
func (s *syncServiceImpl) SyncUserOrders(ctx context.Context, userID string) *SyncSummary {
	summary := &SyncSummary{}
	log := logger.WithFields(logger.Fields{"user_id": userID, "source": model.SourceDashboardSync})

	orders, err := s.orderRepo.ListPendingByUser(ctx, nil, userID)
	if err != nil {
		log.WithError(err).Error("list pending orders")
		summary.Errors++
		return summary
	}

	results := make([]error, len(orders))
	applied := make([]bool, len(orders))

	g := new(errgroup.Group)
	g.SetLimit(syncConcurrency)
	for i, order := range orders {
		i, order := i, order
		g.Go(func() error {
			// concurrent dashboard loads for the same order share one gateway call
			v, err, _ := s.inflight.Do(order.ID, func() (interface{}, error) {
				return s.syncOrder(ctx, order)
			})
			results[i] = err
			if err == nil {
				applied[i] = v.(bool)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		summary.Checked++
		switch {
		case err != nil:
			summary.Errors++
			log.WithError(err).WithField("order_id", orders[i].ID).Warn("dashboard sync failed")
		case applied[i]:
			summary.Updated++
		}
	}
	return summary
}

func (s *syncServiceImpl) syncOrder(ctx context.Context, order *model.Order) (bool, error) {
	// shared between callers, so it must not die with the first one
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	payment, err := s.gateway.GetPayment(ctx, order.PaymentID())
	if err != nil {
		return false, err
	}

	res, err := s.reconciler.Reconcile(ctx, ByOrderID(order.ID), payment.Status, model.SourceDashboardSync, payment.Raw)
	if errors.Is(err, ErrUnmappedProviderStatus) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.Applied, nil
}
