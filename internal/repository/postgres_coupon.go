package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/TranThienNhat/shop/internal/domain"
)

// PostgresCoupons таблица coupons
type PostgresCoupons struct{ store *PostgresStore }

func NewPostgresCoupons(store *PostgresStore) *PostgresCoupons { return &PostgresCoupons{store: store} }

const couponColumns = `id, code, name, description, type, value, min_order_value, max_discount_value,
	quantity, used_count, start_date, end_date, status, created_at, updated_at`

func scanCoupon(row pgx.Row, c *domain.Coupon) error {
	var minOrder, maxDiscount decimal.NullDecimal
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Type, &c.Value, &minOrder, &maxDiscount,
		&c.Quantity, &c.UsedCount, &c.StartDate, &c.EndDate, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	c.MinOrderValue = fromNullDecimal(minOrder)
	c.MaxDiscountValue = fromNullDecimal(maxDiscount)
	return nil
}

func (pc *PostgresCoupons) Create(ctx context.Context, c *domain.Coupon) error {
	const query = `
		INSERT INTO coupons (code, name, description, type, value, min_order_value, max_discount_value,
			quantity, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, used_count, created_at, updated_at`
	err := pc.store.q(ctx).QueryRow(ctx, query, c.Code, c.Name, c.Description, string(c.Type), decArg(c.Value),
		decPtrArg(c.MinOrderValue), decPtrArg(c.MaxDiscountValue), c.Quantity, c.StartDate, c.EndDate, string(c.Status)).
		Scan(&c.ID, &c.UsedCount, &c.CreatedAt, &c.UpdatedAt)
	return mapPgError(err)
}

func (pc *PostgresCoupons) get(ctx context.Context, where string, arg any) (*domain.Coupon, error) {
	var c domain.Coupon
	row := pc.store.q(ctx).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE `+where, arg)
	if err := scanCoupon(row, &c); err != nil {
		return nil, mapPgError(err)
	}
	return &c, nil
}

func (pc *PostgresCoupons) GetByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	return pc.get(ctx, "id = $1", id)
}

func (pc *PostgresCoupons) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return pc.get(ctx, "code = $1", code)
}

// Update rewrites the editable fields; used_count is owned by IncrementUsage.
func (pc *PostgresCoupons) Update(ctx context.Context, c *domain.Coupon) error {
	const query = `
		UPDATE coupons
		SET code = $2, name = $3, description = $4, type = $5, value = $6, min_order_value = $7,
			max_discount_value = $8, quantity = $9, start_date = $10, end_date = $11, status = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING used_count, created_at, updated_at`
	err := pc.store.q(ctx).QueryRow(ctx, query, c.ID, c.Code, c.Name, c.Description, string(c.Type), decArg(c.Value),
		decPtrArg(c.MinOrderValue), decPtrArg(c.MaxDiscountValue), c.Quantity, c.StartDate, c.EndDate, string(c.Status)).
		Scan(&c.UsedCount, &c.CreatedAt, &c.UpdatedAt)
	return mapPgError(err)
}

func (pc *PostgresCoupons) Delete(ctx context.Context, id int64) error {
	tag, err := pc.store.q(ctx).Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (pc *PostgresCoupons) list(ctx context.Context, query string, args ...any) ([]domain.Coupon, error) {
	rows, err := pc.store.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	out := make([]domain.Coupon, 0)
	for rows.Next() {
		var c domain.Coupon
		if err := scanCoupon(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (pc *PostgresCoupons) List(ctx context.Context, f CouponFilter) ([]domain.Coupon, error) {
	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}
	return pc.list(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, f.Offset)
}

func (pc *PostgresCoupons) Count(ctx context.Context) (int64, error) {
	var n int64
	err := pc.store.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM coupons`).Scan(&n)
	return n, mapPgError(err)
}

func (pc *PostgresCoupons) Available(ctx context.Context, orderValue decimal.Decimal, now time.Time) ([]domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons
		WHERE status = 'active'
			AND (start_date IS NULL OR start_date <= $2)
			AND (end_date IS NULL OR end_date >= $2)
			AND (quantity IS NULL OR used_count < quantity)
			AND (min_order_value IS NULL OR min_order_value <= $1)
		ORDER BY value DESC, id`
	return pc.list(ctx, query, decArg(orderValue), now)
}

// IncrementUsage consumes one use only while uses remain.
func (pc *PostgresCoupons) IncrementUsage(ctx context.Context, id int64) error {
	const query = `
		UPDATE coupons SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1 AND (quantity IS NULL OR used_count < quantity)`
	tag, err := pc.store.q(ctx).Exec(ctx, query, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := pc.store.exists(ctx, "coupons", id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrUsageLimitReached
}

func (pc *PostgresCoupons) Referenced(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := pc.store.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE coupon_id = $1)`, id).Scan(&ok)
	return ok, mapPgError(err)
}
