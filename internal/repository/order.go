package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietcart/checkout-service/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, user_id, status, total_amount, currency, shipping_address, payment_method, payment_status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	createOrderItemSQL = `INSERT INTO order_items
		(id, order_id, product_id, product_name, image_url, price, quantity, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	orderColumns = `id, user_id, status, total_amount, currency, shipping_address,
		payment_method, payment_status, notes, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1::text = '' OR status = $1)`

	itemColumns = `id, order_id, product_id, product_name, image_url, price, quantity, total_price`

	getOrderItemsSQL = `SELECT ` + itemColumns + ` FROM order_items
		WHERE order_id = $1 ORDER BY id`

	getItemsForOrdersSQL = `SELECT ` + itemColumns + ` FROM order_items
		WHERE order_id = ANY($1) ORDER BY id`

	updateStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $2, updated_at = $3 WHERE id = $1`

	orderStatsSQL = `SELECT
		count(*),
		count(*) FILTER (WHERE status = 'pending'),
		count(*) FILTER (WHERE status = 'confirmed'),
		count(*) FILTER (WHERE status = 'shipped'),
		count(*) FILTER (WHERE status = 'delivered'),
		count(*) FILTER (WHERE status = 'cancelled'),
		COALESCE(sum(total_amount) FILTER (WHERE status <> 'cancelled'), 0),
		COALESCE(avg(total_amount) FILTER (WHERE status <> 'cancelled'), 0)
		FROM orders WHERE created_at >= $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists an order and its item snapshots in one transaction. The
// shipping address is serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	addrJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, string(o.Status), o.TotalAmount, o.Currency, addrJSON,
		o.PaymentMethod, string(o.PaymentStatus), o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(createOrderItemSQL,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.ImageURL,
			it.Price, it.Quantity, it.TotalPrice,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating order items for %q: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order items for %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("getting order items for %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's most recent orders with their items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listByUserSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// List returns one page of orders, optionally filtered by status.
func (r *OrderRepository) List(ctx context.Context, filter order.ListFilter) (*order.Page, error) {
	status := string(filter.Status)
	offset := (filter.Page - 1) * filter.Limit

	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, status).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, status, filter.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	totalPages := total / filter.Limit
	if total%filter.Limit != 0 {
		totalPages++
	}
	return &order.Page{
		Orders:      orders,
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: filter.Page,
	}, nil
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateStatusSQL, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdatePaymentStatus sets the order payment status.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, updatePaymentStatusSQL, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating payment status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Stats aggregates order counts and revenue over the last 30 days. Cancelled
// orders are excluded from revenue.
func (r *OrderRepository) Stats(ctx context.Context) (*order.Stats, error) {
	since := time.Now().UTC().AddDate(0, 0, -30)

	var s order.Stats
	err := r.pool.QueryRow(ctx, orderStatsSQL, since).Scan(
		&s.Total, &s.Pending, &s.Confirmed, &s.Shipped, &s.Delivered, &s.Cancelled,
		&s.TotalRevenue, &s.AverageOrderValue,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating order stats: %w", err)
	}
	return &s, nil
}

// attachItems loads item snapshots for the given orders in a single query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, getItemsForOrdersSQL, ids)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}

	for _, it := range items {
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		status   string
		payment  string
		addrJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status, &o.TotalAmount, &o.Currency, &addrJSON,
		&o.PaymentMethod, &payment, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payment)
	if err := json.Unmarshal(addrJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	return o, nil
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ImageURL,
		&it.Price, &it.Quantity, &it.TotalPrice,
	)
	return it, err
}
