package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetBySagaID(ctx context.Context, sagaID string) (*domain.Order, error)
}

type PGOrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &PGOrderRepository{db: db}
}

// Create inserts the order once per saga; a second insert for the same saga is a no-op
// that loads the stored row into order.
func (r *PGOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	bookings, err := json.Marshal(order.Bookings)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, `INSERT INTO orders (id, user_id, organization_id, saga_id, payment_intent_id, total_cents, bookings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (saga_id) DO NOTHING
		RETURNING created_at`,
		order.ID, order.Owner.UserID, order.Owner.OrganizationID, order.SagaID, order.PaymentIntentID,
		order.Total.Shift(2).IntPart(), bookings).Scan(&order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetBySagaID(ctx, order.SagaID)
		if getErr != nil {
			return getErr
		}
		*order = *existing
		return nil
	}
	return err
}

func (r *PGOrderRepository) GetBySagaID(ctx context.Context, sagaID string) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_id, organization_id, saga_id, payment_intent_id, total_cents, bookings, created_at FROM orders WHERE saga_id=$1`, sagaID)
	var (
		o          domain.Order
		totalCents int64
		bookings   []byte
	)
	if err := row.Scan(&o.ID, &o.Owner.UserID, &o.Owner.OrganizationID, &o.SagaID, &o.PaymentIntentID, &totalCents, &bookings, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Total = decimal.New(totalCents, -2)
	if err := json.Unmarshal(bookings, &o.Bookings); err != nil {
		return nil, err
	}
	return &o, nil
}

var _ OrderRepository = (*PGOrderRepository)(nil)
