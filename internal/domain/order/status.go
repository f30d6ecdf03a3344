package order

import "fmt"

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus is the parallel, narrower payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// validNext is the central transition table. delivered and cancelled are
// terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

// validPaymentNext mirrors validNext for payment states. refunded is
// terminal.
var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:  {PaymentPaid: true, PaymentFailed: true},
	PaymentPaid:     {PaymentRefunded: true},
	PaymentFailed:   {},
	PaymentRefunded: {},
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// CanTransitionTo reports whether the order status may move from s to target.
func (s Status) CanTransitionTo(target Status) bool {
	return validNext[s][target]
}

// CanTransitionTo reports whether the payment status may move from s to
// target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	return validPaymentNext[s][target]
}

// InvalidTransitionError is returned when an update names a target status not
// reachable from the current one.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// ValidateTransition returns a typed error when from cannot move to target.
func ValidateTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return &InvalidTransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// ValidatePaymentTransition returns a typed error when from cannot move to
// target.
func ValidatePaymentTransition(from, to PaymentStatus) error {
	if !from.CanTransitionTo(to) {
		return &InvalidTransitionError{From: string(from), To: string(to)}
	}
	return nil
}
