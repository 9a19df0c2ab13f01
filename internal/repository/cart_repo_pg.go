package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CartRepository interface {
	GetCart(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error)
	AddItem(ctx context.Context, item *domain.CartItem) error
	UpdatePatient(ctx context.Context, owner domain.OwnerKey, itemID string, patient domain.PatientInfo) (*domain.CartItem, error)
	DeleteItem(ctx context.Context, owner domain.OwnerKey, itemID string) error
	DeleteItems(ctx context.Context, owner domain.OwnerKey, itemIDs []string) error
	SaveDiscounts(ctx context.Context, owner domain.OwnerKey, expectedVersion int64, couponCode string, items []domain.CartItem) (int64, error)
}

type PGCartRepository struct {
	db *pgxpool.Pool
}

func NewCartRepository(db *pgxpool.Pool) CartRepository {
	return &PGCartRepository{db: db}
}

const cartItemColumns = `id, user_id, organization_id, product_type_id, slot_date, slot_time, calendar_id, timezone, patient, price_cents, discount, status, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCartItem(row scanner) (*domain.CartItem, error) {
	var (
		item     domain.CartItem
		patient  []byte
		discount []byte
	)
	if err := row.Scan(&item.ID, &item.Owner.UserID, &item.Owner.OrganizationID, &item.Slot.ProductTypeID,
		&item.Slot.Date, &item.Slot.Time, &item.Slot.CalendarID, &item.Slot.Timezone, &patient,
		&item.PriceCents, &discount, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(patient, &item.Patient); err != nil {
		return nil, fmt.Errorf("decode patient of item %s: %w", item.ID, err)
	}
	if len(discount) > 0 {
		var snapshot domain.DiscountSnapshot
		if err := json.Unmarshal(discount, &snapshot); err != nil {
			return nil, fmt.Errorf("decode discount of item %s: %w", item.ID, err)
		}
		item.Discount = &snapshot
	}
	return &item, nil
}

func encodeDiscount(d *domain.DiscountSnapshot) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (r *PGCartRepository) GetCart(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	cart := &domain.Cart{Owner: owner, Items: make([]domain.CartItem, 0)}
	err := r.db.QueryRow(ctx, `SELECT coupon_code, version, updated_at FROM carts WHERE user_id=$1 AND organization_id=$2`,
		owner.UserID, owner.OrganizationID).Scan(&cart.CouponCode, &cart.Version, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart, nil
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE user_id=$1 AND organization_id=$2 ORDER BY created_at, id`,
		owner.UserID, owner.OrganizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, *item)
	}
	return cart, rows.Err()
}

// touchCart creates the owner's cart row on first use and bumps its version otherwise.
// The upsert also takes the row lock that serialises item-count checks.
func touchCart(ctx context.Context, tx pgx.Tx, owner domain.OwnerKey) error {
	_, err := tx.Exec(ctx, `INSERT INTO carts (user_id, organization_id) VALUES ($1, $2)
		ON CONFLICT (user_id, organization_id) DO UPDATE SET version = carts.version + 1, updated_at = now()`,
		owner.UserID, owner.OrganizationID)
	return err
}

func (r *PGCartRepository) AddItem(ctx context.Context, item *domain.CartItem) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := touchCart(ctx, tx, item.Owner); err != nil {
		return err
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM cart_items WHERE user_id=$1 AND organization_id=$2`,
		item.Owner.UserID, item.Owner.OrganizationID).Scan(&count); err != nil {
		return err
	}
	if count >= domain.MaxCartItems {
		return domain.ErrCartFull
	}

	patient, err := json.Marshal(item.Patient)
	if err != nil {
		return err
	}
	discount, err := encodeDiscount(item.Discount)
	if err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, `INSERT INTO cart_items (id, user_id, organization_id, product_type_id, slot_date, slot_time, calendar_id, timezone, patient, price_cents, discount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		item.ID, item.Owner.UserID, item.Owner.OrganizationID, item.Slot.ProductTypeID, item.Slot.Date, item.Slot.Time,
		item.Slot.CalendarID, item.Slot.Timezone, patient, item.PriceCents, discount, item.Status).
		Scan(&item.CreatedAt, &item.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGCartRepository) UpdatePatient(ctx context.Context, owner domain.OwnerKey, itemID string, patient domain.PatientInfo) (*domain.CartItem, error) {
	payload, err := json.Marshal(patient)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `UPDATE cart_items SET patient=$1, updated_at=now() WHERE id=$2 AND user_id=$3 AND organization_id=$4 RETURNING `+cartItemColumns,
		payload, itemID, owner.UserID, owner.OrganizationID)
	item, err := scanCartItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := touchCart(ctx, tx, owner); err != nil {
		return nil, err
	}
	return item, tx.Commit(ctx)
}

func (r *PGCartRepository) DeleteItem(ctx context.Context, owner domain.OwnerKey, itemID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id=$1 AND user_id=$2 AND organization_id=$3`,
		itemID, owner.UserID, owner.OrganizationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := touchCart(ctx, tx, owner); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGCartRepository) DeleteItems(ctx context.Context, owner domain.OwnerKey, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND organization_id=$2 AND id = ANY($3)`,
		owner.UserID, owner.OrganizationID, itemIDs); err != nil {
		return err
	}
	if err := touchCart(ctx, tx, owner); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGCartRepository) SaveDiscounts(ctx context.Context, owner domain.OwnerKey, expectedVersion int64, couponCode string, items []domain.CartItem) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var version int64
	err = tx.QueryRow(ctx, `UPDATE carts SET coupon_code=$1, version = version + 1, updated_at=now()
		WHERE user_id=$2 AND organization_id=$3 AND version=$4 RETURNING version`,
		couponCode, owner.UserID, owner.OrganizationID, expectedVersion).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrVersionConflict
		}
		return 0, err
	}

	for _, item := range items {
		discount, err := encodeDiscount(item.Discount)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, `UPDATE cart_items SET discount=$1, updated_at=now() WHERE id=$2 AND user_id=$3 AND organization_id=$4`,
			discount, item.ID, owner.UserID, owner.OrganizationID); err != nil {
			return 0, err
		}
	}

	return version, tx.Commit(ctx)
}

var _ CartRepository = (*PGCartRepository)(nil)
