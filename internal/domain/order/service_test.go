package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietcart/checkout-service/internal/domain/pricing"
	"github.com/vietcart/checkout-service/internal/inventory"
)

// --- Mock implementations ---

type mockInventory struct {
	availability []inventory.Availability
	checkErr     error

	reservation *inventory.Reservation
	reserveErr  error

	confirmErr   error
	confirmCalls int

	cancelErr   error
	cancelCalls int
	cancelledID string
}

func (m *mockInventory) CheckBatch(_ context.Context, items []inventory.Item) ([]inventory.Availability, error) {
	if m.checkErr != nil {
		return nil, m.checkErr
	}
	if m.availability != nil {
		return m.availability, nil
	}
	out := make([]inventory.Availability, len(items))
	for i, it := range items {
		out[i] = inventory.Availability{
			ProductID:         it.ProductID,
			Available:         true,
			AvailableQuantity: it.Quantity,
			Status:            "in_stock",
		}
	}
	return out, nil
}

func (m *mockInventory) Reserve(_ context.Context, _ string, _ []inventory.Item) (*inventory.Reservation, error) {
	if m.reserveErr != nil {
		return nil, m.reserveErr
	}
	if m.reservation != nil {
		return m.reservation, nil
	}
	return &inventory.Reservation{ReservationID: "res-1", AllReserved: true}, nil
}

func (m *mockInventory) Confirm(_ context.Context, _, _ string) error {
	m.confirmCalls++
	return m.confirmErr
}

func (m *mockInventory) Cancel(_ context.Context, reservationID, _ string) error {
	m.cancelCalls++
	m.cancelledID = reservationID
	return m.cancelErr
}

type mockOrderRepo struct {
	created   *Order
	createErr error

	byID   map[string]*Order
	getErr error

	statusUpdates  []Status
	updateErr      error
	paymentUpdates []PaymentStatus
	paymentErr     error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, _ string, _ int) ([]Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) List(_ context.Context, _ ListFilter) (*Page, error) {
	return &Page{}, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, _ string, s Status) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.statusUpdates = append(m.statusUpdates, s)
	return nil
}

func (m *mockOrderRepo) UpdatePaymentStatus(_ context.Context, _ string, s PaymentStatus) error {
	if m.paymentErr != nil {
		return m.paymentErr
	}
	m.paymentUpdates = append(m.paymentUpdates, s)
	return nil
}

func (m *mockOrderRepo) Stats(_ context.Context) (*Stats, error) {
	return &Stats{}, nil
}

type mockCart struct {
	items      []pricing.LineItem
	itemsErr   error
	clearErr   error
	clearCalls int
}

func (m *mockCart) Items(_ context.Context, _ string) ([]pricing.LineItem, error) {
	return m.items, m.itemsErr
}

func (m *mockCart) Clear(_ context.Context, _, _ string) error {
	m.clearCalls++
	return m.clearErr
}

type mockEvents struct {
	created   int
	updated   int
	cancelled int
}

func (m *mockEvents) OrderCreated(_ context.Context, _ *Order, _ string) { m.created++ }

func (m *mockEvents) OrderStatusUpdated(_ context.Context, _ *Order, _ Status, _ string) {
	m.updated++
}

func (m *mockEvents) OrderCancelled(_ context.Context, _ *Order, _, _ string) { m.cancelled++ }

type mockMismatches struct {
	recorded []ReservationMismatch
	err      error
}

func (m *mockMismatches) Record(_ context.Context, mm ReservationMismatch) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, mm)
	return nil
}

// --- Helpers ---

type deps struct {
	repo       *mockOrderRepo
	inv        *mockInventory
	cart       *mockCart
	events     *mockEvents
	mismatches *mockMismatches
}

func newTestService(cfg pricing.Config) (*Service, *deps) {
	d := &deps{
		repo:       &mockOrderRepo{byID: make(map[string]*Order)},
		inv:        &mockInventory{},
		cart:       &mockCart{},
		events:     &mockEvents{},
		mismatches: &mockMismatches{},
	}
	svc := NewService(d.repo, d.inv, d.cart, pricing.NewCalculator(cfg), d.events, d.mismatches)
	return svc, d
}

func testAddress() Address {
	return Address{
		Street:  "12 Nguyen Hue",
		City:    "Ho Chi Minh City",
		State:   "HCM",
		ZipCode: "700000",
		Country: "VN",
	}
}

func testItem(id string, price int64, qty int) pricing.LineItem {
	return pricing.LineItem{
		ProductID:   id,
		ProductName: "Product " + id,
		UnitPrice:   decimal.NewFromInt(price),
		Quantity:    qty,
	}
}

func checkoutReq(items ...pricing.LineItem) CheckoutRequest {
	return CheckoutRequest{
		Items:           items,
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	}
}

// --- Checkout tests ---

func TestCheckout_Success(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())

	o, err := svc.Checkout(context.Background(), "u1", "u1@example.com",
		checkoutReq(testItem("p1", 100000, 2)))

	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "VND", o.Currency)

	// subtotal 200000 + tax 20000 + shipping 10000
	assert.True(t, decimal.NewFromInt(230000).Equal(o.TotalAmount))

	require.Len(t, o.Items, 1)
	assert.Equal(t, "p1", o.Items[0].ProductID)
	assert.True(t, decimal.NewFromInt(200000).Equal(o.Items[0].TotalPrice))

	assert.Equal(t, 1, d.inv.confirmCalls)
	assert.Equal(t, 0, d.inv.cancelCalls)
	assert.Equal(t, 1, d.events.created)
	assert.Empty(t, d.mismatches.recorded)
	assert.Equal(t, 0, d.cart.clearCalls)
}

func TestCheckout_FromCartClearsCart(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.cart.items = []pricing.LineItem{testItem("p1", 50000, 1)}

	o, err := svc.Checkout(context.Background(), "u1", "u1@example.com", CheckoutRequest{
		UseCart:         true,
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, d.cart.clearCalls)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "p1", o.Items[0].ProductID)
}

func TestCheckout_CartClearFailureDoesNotFailCheckout(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.cart.items = []pricing.LineItem{testItem("p1", 50000, 1)}
	d.cart.clearErr = errors.New("cart service down")

	_, err := svc.Checkout(context.Background(), "u1", "u1@example.com", CheckoutRequest{
		UseCart:         true,
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, d.cart.clearCalls)
}

func TestCheckout_EmptyItems(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())

	_, err := svc.Checkout(context.Background(), "u1", "", checkoutReq())
	require.ErrorIs(t, err, ErrEmptyItems)
	assert.Equal(t, 0, d.inv.cancelCalls)
}

func TestCheckout_MissingShippingAddress(t *testing.T) {
	svc, _ := newTestService(pricing.DefaultConfig())

	_, err := svc.Checkout(context.Background(), "u1", "", CheckoutRequest{
		Items:         []pricing.LineItem{testItem("p1", 1000, 1)},
		PaymentMethod: "cod",
	})
	require.ErrorIs(t, err, ErrMissingShippingAddress)
}

func TestCheckout_MissingPaymentMethod(t *testing.T) {
	svc, _ := newTestService(pricing.DefaultConfig())

	_, err := svc.Checkout(context.Background(), "u1", "", CheckoutRequest{
		Items:           []pricing.LineItem{testItem("p1", 1000, 1)},
		ShippingAddress: testAddress(),
	})
	require.ErrorIs(t, err, ErrMissingPaymentMethod)
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	svc, _ := newTestService(pricing.DefaultConfig())

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 1000, 0)))

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestCheckout_UnavailableItemStopsBeforeReserve(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.inv.availability = []inventory.Availability{
		{ProductID: "p1", Available: false, AvailableQuantity: 1, Status: "out_of_stock"},
	}

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 100000, 3)))

	var uaErr *UnavailableItemError
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, "p1", uaErr.ProductID)
	assert.Equal(t, 3, uaErr.Requested)
	assert.Equal(t, 1, uaErr.Available)

	assert.Equal(t, 0, d.inv.cancelCalls)
	assert.Equal(t, 0, d.inv.confirmCalls)
	assert.Nil(t, d.repo.created)
}

func TestCheckout_ProductMissingFromAvailabilityIsUnavailable(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	// Inventory answers only for p1; p2 is unknown to it and must not pass
	// the availability check by omission.
	d.inv.availability = []inventory.Availability{
		{ProductID: "p1", Available: true, AvailableQuantity: 5, Status: "in_stock"},
	}

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 100000, 1), testItem("p2", 50000, 2)))

	var uaErr *UnavailableItemError
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, "p2", uaErr.ProductID)
	assert.Equal(t, 2, uaErr.Requested)
	assert.Equal(t, 0, uaErr.Available)

	assert.Equal(t, 0, d.inv.cancelCalls)
	assert.Nil(t, d.repo.created)
}

func TestCheckout_ReserveFailureHasNothingToCompensate(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.inv.reserveErr = inventory.ErrUnavailable

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 100000, 1)))

	require.ErrorIs(t, err, inventory.ErrUnavailable)
	assert.Equal(t, 0, d.inv.cancelCalls)
	assert.Nil(t, d.repo.created)
}

func TestCheckout_PartialReservationCancelsOnce(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.inv.reservation = &inventory.Reservation{ReservationID: "res-7", AllReserved: false}

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 100000, 5)))

	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, d.inv.cancelCalls)
	assert.Equal(t, "res-7", d.inv.cancelledID)
	assert.Nil(t, d.repo.created)
	assert.Equal(t, 0, d.events.created)
}

func TestCheckout_PricingValidationFailureCancelsOnce(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.MinOrderAmount = decimal.NewFromInt(10_000_000)
	svc, d := newTestService(cfg)

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 1000, 1)))

	var peErr *pricing.InvalidPricingError
	require.ErrorAs(t, err, &peErr)
	assert.Equal(t, 1, d.inv.cancelCalls)
	assert.Nil(t, d.repo.created)
}

func TestCheckout_CreateFailureCancelsOnce(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.createErr = errors.New("db write failed")

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 100000, 1)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, 1, d.inv.cancelCalls)
	assert.Equal(t, "res-1", d.inv.cancelledID)
	assert.Equal(t, 0, d.inv.confirmCalls)
}

func TestCheckout_CancelFailureDoesNotMaskCause(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.createErr = errors.New("db write failed")
	d.inv.cancelErr = errors.New("inventory also down")

	_, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 100000, 1)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db write failed")
	assert.Equal(t, 1, d.inv.cancelCalls)
}

func TestCheckout_ConfirmFailureIsJournaledNotCompensated(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.inv.confirmErr = inventory.ErrUnavailable

	o, err := svc.Checkout(context.Background(), "u1", "u1@example.com",
		checkoutReq(testItem("p1", 100000, 1)))

	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)

	assert.Equal(t, 0, d.inv.cancelCalls)
	require.Len(t, d.mismatches.recorded, 1)
	assert.Equal(t, o.ID, d.mismatches.recorded[0].OrderID)
	assert.Equal(t, "res-1", d.mismatches.recorded[0].ReservationID)
	assert.Equal(t, 1, d.events.created)
}

func TestCheckout_PaymentFailureLeavesOrderPending(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.paymentErr = errors.New("gateway timeout")

	o, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(testItem("p1", 100000, 1)))

	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, 1, d.events.created)
}

func TestCheckout_ItemTotalsReconcileWithSubtotal(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())

	o, err := svc.Checkout(context.Background(), "u1", "",
		checkoutReq(
			testItem("p1", 33333, 3),
			testItem("p2", 12500, 2),
		))

	require.NoError(t, err)
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.TotalPrice)
	}
	calc := pricing.NewCalculator(pricing.DefaultConfig())
	p := calc.Calculate([]pricing.LineItem{
		testItem("p1", 33333, 3),
		testItem("p2", 12500, 2),
	})
	assert.True(t, p.Subtotal.Equal(sum))
	assert.NotNil(t, d.repo.created)
}

// --- Read and lifecycle tests ---

func TestGetOrder_OwnerAndAdmin(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusPending}

	o, err := svc.GetOrder(context.Background(), "o1", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)

	_, err = svc.GetOrder(context.Background(), "o1", "u2", false)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetOrder(context.Background(), "o1", "u2", true)
	require.NoError(t, err)
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, _ := newTestService(pricing.DefaultConfig())

	_, err := svc.GetOrder(context.Background(), "missing", "u1", false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOrder_PendingOrder(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusPending, PaymentStatus: PaymentPending}

	o, err := svc.CancelOrder(context.Background(), "o1", "u1", "u1@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, []Status{StatusCancelled}, d.repo.statusUpdates)
	assert.Empty(t, d.repo.paymentUpdates)
	assert.Equal(t, 1, d.events.cancelled)
}

func TestCancelOrder_PaidOrderIsRefunded(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusConfirmed, PaymentStatus: PaymentPaid}

	o, err := svc.CancelOrder(context.Background(), "o1", "u1", "", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, PaymentRefunded, o.PaymentStatus)
	assert.Equal(t, []PaymentStatus{PaymentRefunded}, d.repo.paymentUpdates)
}

func TestCancelOrder_NotOwner(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusPending}

	_, err := svc.CancelOrder(context.Background(), "o1", "u2", "", "")
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, d.repo.statusUpdates)
}

func TestCancelOrder_ShippedOrderRejected(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusShipped}

	_, err := svc.CancelOrder(context.Background(), "o1", "u1", "", "")

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, string(StatusShipped), itErr.From)
	assert.Empty(t, d.repo.statusUpdates)
	assert.Equal(t, 0, d.events.cancelled)
}

func TestUpdateOrderStatus_ValidTransition(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusConfirmed, PaymentStatus: PaymentPaid}

	o, err := svc.UpdateOrderStatus(context.Background(), "o1", StatusShipped, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, 1, d.events.updated)
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusPending}

	_, err := svc.UpdateOrderStatus(context.Background(), "o1", StatusShipped, "admin@example.com")

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Empty(t, d.repo.statusUpdates)
	assert.Equal(t, 0, d.events.updated)
}

func TestUpdateOrderStatus_AdminCancelRefundsPaidOrder(t *testing.T) {
	svc, d := newTestService(pricing.DefaultConfig())
	d.repo.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: StatusConfirmed, PaymentStatus: PaymentPaid}

	o, err := svc.UpdateOrderStatus(context.Background(), "o1", StatusCancelled, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, PaymentRefunded, o.PaymentStatus)
}
