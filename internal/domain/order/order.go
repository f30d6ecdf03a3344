// Package order holds the order model, the status state machines, and the
// checkout orchestration that turns a cart into a durable order.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Address is the structured shipping address embedded in an order.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Empty reports whether no address was supplied.
func (a Address) Empty() bool {
	return a == Address{}
}

// Order is the durable record of a placed order. Its items are immutable
// snapshots: later catalog price changes never retroactively alter a placed
// order.
type Order struct {
	ID              string
	UserID          string
	Status          Status
	TotalAmount     decimal.Decimal
	Currency        string
	ShippingAddress Address
	Items           []Item
	PaymentMethod   string
	PaymentStatus   PaymentStatus
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a single order line with product snapshot fields frozen at
// creation time.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	ImageURL    string
	Price       decimal.Decimal
	Quantity    int
	TotalPrice  decimal.Decimal
}

// ListFilter selects and pages orders for administrative listing.
type ListFilter struct {
	// Status filters by order status when non-empty.
	Status Status
	// Page is 1-based.
	Page  int
	Limit int
}

// Page is one page of an administrative order listing.
type Page struct {
	Orders      []Order
	Total       int
	TotalPages  int
	CurrentPage int
}

// Stats aggregates the last 30 days of orders.
type Stats struct {
	Total             int
	Pending           int
	Confirmed         int
	Shipped           int
	Delivered         int
	Cancelled         int
	TotalRevenue      decimal.Decimal
	AverageOrderValue decimal.Decimal
}

// Repository defines persistence operations for orders. It exclusively owns
// the order tables: status changes reach it only through the state-machine
// validated paths in Service.
type Repository interface {
	// Create persists an order and its items in one transaction.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	List(ctx context.Context, filter ListFilter) (*Page, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus) error
	Stats(ctx context.Context) (*Stats, error)
}

// ReservationMismatch records the one non-compensable saga failure: the order
// row exists but the reservation was never durably bound to it. It is the
// operator-facing reconciliation signal.
type ReservationMismatch struct {
	OrderID       string
	ReservationID string
	Reason        string
	OccurredAt    time.Time
}

// MismatchRecorder journals reservation mismatches for operator follow-up.
type MismatchRecorder interface {
	Record(ctx context.Context, m ReservationMismatch) error
}
