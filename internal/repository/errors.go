// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the order service to distinguish between different
// failure scenarios. For example, ErrForbidden indicates that the
// current user is not authorized to act on a resource owned by
// someone else, while ErrStateConflict signals that a state
// transition cannot proceed (e.g. confirming an order that is no
// longer PENDING).
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrStateConflict is returned when a conditional status update
// matches no row because the order has already left the expected
// state, such as a second confirmation of a PAID order or a cancel
// of a CANCELED order. Handlers should translate this into an
// HTTP 409 response.
var ErrStateConflict = errors.New("state conflict")

// ErrOrderNotFound is returned when no order exists for the given
// identifier.
var ErrOrderNotFound = errors.New("order not found")

// ErrRoomTypeNotFound is returned when a referenced room type does
// not exist.
var ErrRoomTypeNotFound = errors.New("room type not found")

// ErrPaymentNotFound is returned when an order has no recorded
// payment, e.g. when trying to refund an order that was never PAID.
var ErrPaymentNotFound = errors.New("payment not found")
