package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SagaRepository interface {
	Create(ctx context.Context, saga *domain.Saga) error
	// Save writes the saga only while the stored record is still in state from.
	Save(ctx context.Context, saga *domain.Saga, from domain.SagaState) error
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Saga, error)
}

type PGSagaRepository struct {
	db *pgxpool.Pool
}

func NewSagaRepository(db *pgxpool.Pool) SagaRepository {
	return &PGSagaRepository{db: db}
}

func encodeSagaLists(saga *domain.Saga) ([]byte, []byte, error) {
	itemIDs, err := json.Marshal(saga.ItemIDs)
	if err != nil {
		return nil, nil, err
	}
	bookings := saga.Bookings
	if bookings == nil {
		bookings = []domain.BookingResult{}
	}
	encoded, err := json.Marshal(bookings)
	if err != nil {
		return nil, nil, err
	}
	return itemIDs, encoded, nil
}

func (r *PGSagaRepository) Create(ctx context.Context, saga *domain.Saga) error {
	itemIDs, bookings, err := encodeSagaLists(saga)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO checkout_sagas (id, user_id, organization_id, email, flow, state, payment_intent_id, item_ids, bookings, order_id, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		saga.ID, saga.Owner.UserID, saga.Owner.OrganizationID, saga.Email, saga.Flow, saga.State, saga.PaymentIntentID,
		itemIDs, bookings, saga.OrderID, saga.Error, saga.CreatedAt, saga.UpdatedAt)
	return err
}

func (r *PGSagaRepository) Save(ctx context.Context, saga *domain.Saga, from domain.SagaState) error {
	itemIDs, bookings, err := encodeSagaLists(saga)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE checkout_sagas SET state=$1, payment_intent_id=$2, item_ids=$3, bookings=$4, order_id=$5, error=$6, updated_at=$7 WHERE id=$8 AND state=$9`,
		saga.State, saga.PaymentIntentID, itemIDs, bookings, saga.OrderID, saga.Error, saga.UpdatedAt, saga.ID, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSagaConflict
	}
	return nil
}

func (r *PGSagaRepository) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Saga, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, organization_id, email, flow, state, payment_intent_id, item_ids, bookings, order_id, error, created_at, updated_at
		FROM checkout_sagas
		WHERE state NOT IN ($1, $2, $3, $4) AND updated_at <= $5
		ORDER BY updated_at
		LIMIT $6`,
		domain.SagaInvalid, domain.SagaPaymentFailed, domain.SagaFailed, domain.SagaCompleted, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sagas []domain.Saga
	for rows.Next() {
		var (
			s        domain.Saga
			itemIDs  []byte
			bookings []byte
		)
		if err := rows.Scan(&s.ID, &s.Owner.UserID, &s.Owner.OrganizationID, &s.Email, &s.Flow, &s.State, &s.PaymentIntentID,
			&itemIDs, &bookings, &s.OrderID, &s.Error, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemIDs, &s.ItemIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(bookings, &s.Bookings); err != nil {
			return nil, err
		}
		sagas = append(sagas, s)
	}
	return sagas, rows.Err()
}

var _ SagaRepository = (*PGSagaRepository)(nil)
