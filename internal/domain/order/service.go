package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vietcart/checkout-service/internal/domain/pricing"
	"github.com/vietcart/checkout-service/internal/inventory"
)

// Sentinel errors for checkout validation. These carry no side effects: they
// are raised before anything is reserved or written.
var (
	ErrEmptyItems             = errors.New("items required")
	ErrMissingShippingAddress = errors.New("shipping address required")
	ErrMissingPaymentMethod   = errors.New("payment method required")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrForbidden              = errors.New("unauthorized")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// UnavailableItemError indicates a product failed the pre-reservation
// availability check.
type UnavailableItemError struct {
	ProductID string
	Requested int
	Available int
}

func (e *UnavailableItemError) Error() string {
	return fmt.Sprintf("product %s unavailable: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// CartReader is the external cart collaborator as seen by checkout.
type CartReader interface {
	// Items returns the user's cart as priced line-item snapshots, or an
	// empty slice when the cart is empty.
	Items(ctx context.Context, userID string) ([]pricing.LineItem, error)
	// Clear empties the user's cart. Called after a successful cart
	// checkout; failures are logged and dropped.
	Clear(ctx context.Context, userID, reason string) error
}

// EventPublisher emits order lifecycle notifications. Delivery is
// fire-and-forget: implementations must never block or fail the caller.
type EventPublisher interface {
	OrderCreated(ctx context.Context, o *Order, userEmail string)
	OrderStatusUpdated(ctx context.Context, o *Order, oldStatus Status, updatedBy string)
	OrderCancelled(ctx context.Context, o *Order, reason, userEmail string)
}

// CheckoutRequest holds the input for placing an order: either the user's
// cart (UseCart) or an explicit list of line-item snapshots.
type CheckoutRequest struct {
	UseCart         bool
	Items           []pricing.LineItem
	ShippingAddress Address
	PaymentMethod   string
	Notes           string
}

// Service is the checkout orchestrator. It owns the step ordering of
// reserve, price, persist, confirm, and the single compensating action
// (cancelling the reservation), which is valid only until the order row
// is committed.
type Service struct {
	orders     Repository
	inventory  inventory.Client
	cart       CartReader
	pricing    *pricing.Calculator
	events     EventPublisher
	mismatches MismatchRecorder
}

// NewService creates a checkout Service with the required collaborators.
func NewService(
	orders Repository,
	inv inventory.Client,
	cart CartReader,
	calc *pricing.Calculator,
	events EventPublisher,
	mismatches MismatchRecorder,
) *Service {
	return &Service{
		orders:     orders,
		inventory:  inv,
		cart:       cart,
		pricing:    calc,
		events:     events,
		mismatches: mismatches,
	}
}

// Checkout turns a cart or explicit item list into a durable order:
//
//  1. Resolve line items.
//  2. Pre-check availability (no side effects yet).
//  3. Reserve inventory, the only compensable side effect.
//  4. Compute and validate pricing.
//  5. Persist order and items in one transaction.
//  6. Confirm the reservation. This is the point of no return: a failure
//     here is journaled for reconciliation, never compensated, because
//     releasing stock under a placed order would oversell it.
//  7. Capture payment and publish the created event.
//
// Any failure between steps 3 and 5 cancels the reservation exactly once.
func (s *Service) Checkout(ctx context.Context, userID, userEmail string, req CheckoutRequest) (*Order, error) {
	lg := zctx.From(ctx)

	if req.ShippingAddress.Empty() {
		return nil, ErrMissingShippingAddress
	}
	if req.PaymentMethod == "" {
		return nil, ErrMissingPaymentMethod
	}

	items := req.Items
	if req.UseCart {
		cartItems, err := s.cart.Items(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "fetch cart")
		}
		items = cartItems
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	reserveItems := toInventoryItems(items)

	// Pre-flight availability check so a doomed request never consumes a
	// reservation slot.
	availability, err := s.inventory.CheckBatch(ctx, reserveItems)
	if err != nil {
		return nil, errors.Wrap(err, "check availability")
	}
	requested := make(map[string]int, len(reserveItems))
	for _, it := range reserveItems {
		requested[it.ProductID] += it.Quantity
	}
	seen := make(map[string]bool, len(availability))
	for _, a := range availability {
		seen[a.ProductID] = true
		if !a.Available {
			return nil, &UnavailableItemError{
				ProductID: a.ProductID,
				Requested: requested[a.ProductID],
				Available: a.AvailableQuantity,
			}
		}
	}
	// A product missing from the response is unknown to inventory and must
	// not pass by omission.
	for _, it := range reserveItems {
		if !seen[it.ProductID] {
			return nil, &UnavailableItemError{
				ProductID: it.ProductID,
				Requested: requested[it.ProductID],
			}
		}
	}

	// Reserve. On failure there is nothing to compensate yet.
	reservation, err := s.inventory.Reserve(ctx, userID, reserveItems)
	if err != nil {
		return nil, errors.Wrap(err, "reserve inventory")
	}
	if !reservation.AllReserved {
		s.cancelReservation(ctx, reservation.ReservationID, "partial reservation")
		return nil, ErrInsufficientStock
	}

	cartPricing := s.pricing.Calculate(items)
	if err := s.pricing.Validate(cartPricing); err != nil {
		s.cancelReservation(ctx, reservation.ReservationID, "pricing validation failed")
		return nil, err
	}

	// Persist. The reservation is the only side effect so far, so cancelling
	// it restores the pre-checkout state entirely.
	o := s.buildOrder(userID, req, items, cartPricing)
	if err := s.orders.Create(ctx, o); err != nil {
		s.cancelReservation(ctx, reservation.ReservationID, "order creation failed")
		return nil, errors.Wrap(err, "create order")
	}

	// Confirm. Past the point of no return.
	if err := s.inventory.Confirm(ctx, reservation.ReservationID, o.ID); err != nil {
		s.recordMismatch(ctx, o, reservation.ReservationID, err)
		s.events.OrderCreated(ctx, o, userEmail)
		return o, nil
	}

	// Payment capture and notifications must not fail checkout.
	s.capturePayment(ctx, o)
	s.events.OrderCreated(ctx, o, userEmail)
	if req.UseCart {
		if err := s.cart.Clear(ctx, userID, "order created"); err != nil {
			lg.Warn("Clear cart after checkout",
				zap.String("order_id", o.ID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	lg.Info("Checkout completed",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.String("total", o.TotalAmount.String()))
	return o, nil
}

// GetOrder returns an order visible to the requester: its owner or an admin.
func (s *Service) GetOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && o.UserID != requesterID {
		return nil, ErrForbidden
	}
	return o, nil
}

// UserOrders lists the most recent orders of one user.
func (s *Service) UserOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.orders.ListByUser(ctx, userID, limit)
}

// ListOrders returns one page of orders for administrative listing.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) (*Page, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.orders.List(ctx, filter)
}

// OrderStats returns aggregate order statistics over the last 30 days.
func (s *Service) OrderStats(ctx context.Context) (*Stats, error) {
	return s.orders.Stats(ctx)
}

// CancelOrder cancels the requester's own order, subject to the status state
// machine, and emits the cancellation event.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID, userEmail, reason string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	if err := ValidateTransition(o.Status, StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, StatusCancelled); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	o.Status = StatusCancelled
	s.refundIfPaid(ctx, o)

	if reason == "" {
		reason = "cancelled by customer"
	}
	s.events.OrderCancelled(ctx, o, reason, userEmail)
	return o, nil
}

// UpdateOrderStatus applies an administrative status change through the state
// machine and emits the status-updated event.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, target Status, updatedBy string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(o.Status, target); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, target); err != nil {
		return nil, errors.Wrap(err, "update status")
	}

	oldStatus := o.Status
	o.Status = target
	if target == StatusCancelled {
		s.refundIfPaid(ctx, o)
	}

	s.events.OrderStatusUpdated(ctx, o, oldStatus, updatedBy)
	return o, nil
}

// buildOrder assembles the order record with snapshot items. The sum of item
// totals reconciles with the pricing subtotal by construction: both are the
// same rounded line totals summed.
func (s *Service) buildOrder(userID string, req CheckoutRequest, items []pricing.LineItem, p pricing.CartPricing) *Order {
	orderID := uuid.New().String()

	orderItems := make([]Item, len(items))
	for i, it := range items {
		orderItems[i] = Item{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			ImageURL:    it.ImageURL,
			Price:       it.UnitPrice,
			Quantity:    it.Quantity,
			TotalPrice:  s.pricing.LineTotal(it),
		}
	}

	return &Order{
		ID:              orderID,
		UserID:          userID,
		Status:          StatusPending,
		TotalAmount:     p.Total,
		Currency:        p.Currency,
		ShippingAddress: req.ShippingAddress,
		Items:           orderItems,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Notes:           req.Notes,
	}
}

// cancelReservation is the compensating action. It runs on a context detached
// from request cancellation: compensation must complete even when the caller
// has gone away.
func (s *Service) cancelReservation(ctx context.Context, reservationID, reason string) {
	detached := context.WithoutCancel(ctx)
	if err := s.inventory.Cancel(detached, reservationID, reason); err != nil {
		zctx.From(ctx).Error("Cancel reservation",
			zap.String("reservation_id", reservationID),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// recordMismatch journals a confirm failure after the order row is committed.
// The reservation stays held: operators resolve the divergence from the
// journal instead of the saga releasing stock under a placed order.
func (s *Service) recordMismatch(ctx context.Context, o *Order, reservationID string, cause error) {
	lg := zctx.From(ctx)
	lg.Error("Reservation confirm failed after order commit",
		zap.String("order_id", o.ID),
		zap.String("reservation_id", reservationID),
		zap.Error(cause))

	m := ReservationMismatch{
		OrderID:       o.ID,
		ReservationID: reservationID,
		Reason:        cause.Error(),
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.mismatches.Record(context.WithoutCancel(ctx), m); err != nil {
		lg.Error("Record reservation mismatch",
			zap.String("order_id", o.ID),
			zap.Error(err))
	}
}

// capturePayment runs the payment step. The gateway integration is a stub
// that always authorizes; on success the order advances to confirmed and
// paid through the state machine. A failure downgrades to a warning and
// leaves the order pending.
func (s *Service) capturePayment(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)

	if err := ValidatePaymentTransition(o.PaymentStatus, PaymentPaid); err != nil {
		lg.Warn("Payment capture skipped", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	if err := s.orders.UpdatePaymentStatus(ctx, o.ID, PaymentPaid); err != nil {
		lg.Warn("Update payment status", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	o.PaymentStatus = PaymentPaid

	if err := ValidateTransition(o.Status, StatusConfirmed); err != nil {
		return
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, StatusConfirmed); err != nil {
		lg.Warn("Update order status", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	o.Status = StatusConfirmed
}

// refundIfPaid moves a paid order to refunded when it gets cancelled.
func (s *Service) refundIfPaid(ctx context.Context, o *Order) {
	if o.PaymentStatus != PaymentPaid {
		return
	}
	if err := s.orders.UpdatePaymentStatus(ctx, o.ID, PaymentRefunded); err != nil {
		zctx.From(ctx).Warn("Refund payment status",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	o.PaymentStatus = PaymentRefunded
}

func toInventoryItems(items []pricing.LineItem) []inventory.Item {
	out := make([]inventory.Item, len(items))
	for i, it := range items {
		out[i] = inventory.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}
