package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietcart/checkout-service/internal/domain/order"
)

const recordMismatchSQL = `INSERT INTO reservation_mismatches
	(order_id, reservation_id, reason, occurred_at)
	VALUES ($1, $2, $3, $4)`

var _ order.MismatchRecorder = (*MismatchRepository)(nil)

// MismatchRepository journals reservation confirm failures for operator
// reconciliation.
type MismatchRepository struct {
	pool *pgxpool.Pool
}

// NewMismatchRepository returns a MismatchRepository that uses the given pool.
func NewMismatchRepository(pool *pgxpool.Pool) *MismatchRepository {
	return &MismatchRepository{pool: pool}
}

// Record appends one mismatch row.
func (r *MismatchRepository) Record(ctx context.Context, m order.ReservationMismatch) error {
	_, err := r.pool.Exec(ctx, recordMismatchSQL,
		m.OrderID, m.ReservationID, m.Reason, m.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("recording reservation mismatch for order %q: %w", m.OrderID, err)
	}
	return nil
}
