// Package inventory is the typed gateway to the remote inventory service and
// its three-phase reservation protocol: reserve, then confirm or cancel.
// Reservations not confirmed or cancelled expire server-side, which is the
// crash-safety backstop for a checkout that dies mid-saga.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Status codes carried in the inventory service's response envelope.
const (
	StatusOK              = "OK"
	StatusInvalidArgument = "INVALID_ARGUMENT"
	StatusNotFound        = "NOT_FOUND"
	StatusError           = "ERROR"
)

// ErrUnavailable indicates the inventory service could not be reached within
// the retry budget. It is the retriable half of the gateway's error split;
// callers surface it as a service-unavailable failure.
var ErrUnavailable = errors.New("inventory service unavailable")

// RejectedError indicates the inventory service answered and refused the
// request (for example insufficient stock or a malformed argument). It is
// never retried: the service already made a decision.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("inventory request rejected: %s: %s", e.Code, e.Message)
}

// Item is a product/quantity pair in a reservation or availability check.
type Item struct {
	ProductID string
	Quantity  int
}

// Availability is the per-product result of CheckBatch.
type Availability struct {
	ProductID         string
	Available         bool
	AvailableQuantity int
	Status            string
}

// Reservation is the outcome of Reserve. AllReserved=false means only part of
// the requested quantities could be held; the caller must treat that as a
// failure and cancel.
type Reservation struct {
	ReservationID string
	AllReserved   bool
}

// Client is the reservation protocol as seen by the checkout orchestrator.
//
// Reserve generates its reservation id client-side before the first network
// attempt, so a retried call is idempotent: the inventory service
// deduplicates on the id. That deduplication is a documented contract of the
// collaborating service, not something this client can enforce.
type Client interface {
	// CheckBatch is a read-only availability probe used before committing to
	// a reservation.
	CheckBatch(ctx context.Context, items []Item) ([]Availability, error)

	// Reserve places a time-bounded hold on the given quantities for userID.
	Reserve(ctx context.Context, userID string, items []Item) (*Reservation, error)

	// Confirm permanently binds a reservation to an order. It is attempted
	// exactly once: after the order row exists, an ambiguous confirm failure
	// must be reconciled, not retried or compensated.
	Confirm(ctx context.Context, reservationID, orderID string) error

	// Cancel releases a reservation back to available stock. Cancelling an
	// already-cancelled or expired reservation is not an error.
	Cancel(ctx context.Context, reservationID, reason string) error
}
