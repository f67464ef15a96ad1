package service

import "errors"

var (
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrMalformedEvent         = errors.New("malformed webhook event")
	ErrOrderNotFound          = errors.New("order not found")
	ErrUnmappedProviderStatus = errors.New("unmapped provider status")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrPaymentExists          = errors.New("order already has a payment")
	ErrNotOrderOwner          = errors.New("order belongs to another user")
)
