package model

import (
	"errors"
	"fmt"
)

type OrderStatus string

const (
	OrderStatusAwaitingPayment   OrderStatus = "AWAITING_PAYMENT"
	OrderStatusPaymentConfirmed  OrderStatus = "PAYMENT_CONFIRMED"
	OrderStatusPaymentRefused    OrderStatus = "PAYMENT_REFUSED"
	OrderStatusOrderConfirmed    OrderStatus = "ORDER_CONFIRMED"
	OrderStatusAwaitingQuote     OrderStatus = "AWAITING_QUOTE"
	OrderStatusDocumentRequested OrderStatus = "DOCUMENT_REQUESTED"
	OrderStatusProcessing        OrderStatus = "PROCESSING"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusAwaitingPayment:   {OrderStatusPaymentConfirmed, OrderStatusPaymentRefused, OrderStatusCancelled},
	OrderStatusPaymentConfirmed:  {OrderStatusOrderConfirmed, OrderStatusCancelled},
	OrderStatusPaymentRefused:    {OrderStatusAwaitingPayment, OrderStatusCancelled},
	OrderStatusOrderConfirmed:    {OrderStatusAwaitingQuote, OrderStatusDocumentRequested, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusAwaitingQuote:     {OrderStatusOrderConfirmed, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusDocumentRequested: {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:        {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:         {},
	OrderStatusCancelled:         {},
}

// edges of the transition table that move an order back in its lifecycle
var backEdges = map[[2]OrderStatus]bool{
	{OrderStatusPaymentRefused, OrderStatusAwaitingPayment}: true,
	{OrderStatusAwaitingQuote, OrderStatusOrderConfirmed}:   true,
}

var ErrInvalidTransition = errors.New("invalid order status transition")

type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s OrderStatus) AllowedTargets() []OrderStatus {
	targets := transitions[s]
	out := make([]OrderStatus, len(targets))
	copy(out, targets)
	return out
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when from -> to is not in the
// transition table. Unknown statuses are never valid.
func ValidateTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Reached reports whether the order already is at target or has moved past it
// along forward, non-cancelling transitions. A late "payment confirmed" for an
// order already in PROCESSING is therefore already reached.
func (s OrderStatus) Reached(target OrderStatus) bool {
	if s == target {
		return true
	}
	seen := map[OrderStatus]bool{target: true}
	queue := []OrderStatus{target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if next == OrderStatusCancelled || backEdges[[2]OrderStatus{cur, next}] || seen[next] {
				continue
			}
			if next == s {
				return true
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

var paymentProgression = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusRefunded},
	PaymentStatusRefunded:   {},
}

// SettlingPaymentStatuses are still moving at the provider; the cron sweep
// and dashboard sync only look at orders in these.
var SettlingPaymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentProgression[s]
	return ok
}

func (s PaymentStatus) IsPaid() bool {
	return s == PaymentStatusCompleted
}

func (s PaymentStatus) IsSettling() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// CanAdvanceTo is false for regressions such as COMPLETED -> PENDING, which
// only a stale provider read can produce.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	for _, p := range paymentProgression[s] {
		if p == next {
			return true
		}
	}
	return false
}

// ProviderStatus is the payment status as reported by the gateway.
type ProviderStatus string

const (
	ProviderStatusPending   ProviderStatus = "PENDING"
	ProviderStatusReceived  ProviderStatus = "RECEIVED"
	ProviderStatusConfirmed ProviderStatus = "CONFIRMED"
	ProviderStatusOverdue   ProviderStatus = "OVERDUE"
	ProviderStatusRefunded  ProviderStatus = "REFUNDED"
)

// Source tags which trigger produced a change.
type Source string

const (
	SourceWebhook       Source = "webhook"
	SourceCron          Source = "cron"
	SourceDashboardSync Source = "dashboard-sync"
	SourceAdmin         Source = "admin"
	SourceAdminOverride Source = "admin-override"
)
