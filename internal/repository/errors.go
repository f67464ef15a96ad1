package repository

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleOrder means the order changed between read and write.
	ErrStaleOrder             = errors.New("order was modified concurrently")
	ErrPaymentAlreadyAttached = errors.New("order already has a provider payment")
	ErrDuplicateOrderNumber   = errors.New("could not generate a unique order number")
)
