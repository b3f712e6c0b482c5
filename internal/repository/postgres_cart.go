package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/TranThienNhat/shop/internal/domain"
)

// PostgresCarts таблицы carts и cart_items
type PostgresCarts struct{ store *PostgresStore }

func NewPostgresCarts(store *PostgresStore) *PostgresCarts { return &PostgresCarts{store: store} }

const cartColumns = `id, user_id, session_id, coupon_code, discount_amount, created_at, updated_at`

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var c domain.Cart
	if err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &c.CouponCode, &c.DiscountAmount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &c, nil
}

func (pc *PostgresCarts) Find(ctx context.Context, l CartLookup) (*domain.Cart, error) {
	q := pc.store.q(ctx)
	switch {
	case l.UserID != nil:
		return scanCart(q.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, *l.UserID))
	case l.SessionID != nil:
		return scanCart(q.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE session_id = $1`, *l.SessionID))
	}
	return nil, ErrNotFound
}

// Create inserts a cart. A duplicate owner yields ErrConflict without raising
// a unique violation, so a surrounding transaction stays usable for the re-read.
func (pc *PostgresCarts) Create(ctx context.Context, c *domain.Cart) error {
	const query = `
		INSERT INTO carts (user_id, session_id, coupon_code, discount_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at`
	err := pc.store.q(ctx).QueryRow(ctx, query, c.UserID, c.SessionID, c.CouponCode, decArg(c.DiscountAmount)).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConflict
	}
	return mapPgError(err)
}

func (pc *PostgresCarts) Delete(ctx context.Context, cartID int64) error {
	tag, err := pc.store.q(ctx).Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (pc *PostgresCarts) SetCoupon(ctx context.Context, cartID int64, code *string, discount decimal.Decimal) error {
	const query = `UPDATE carts SET coupon_code = $2, discount_amount = $3, updated_at = NOW() WHERE id = $1`
	tag, err := pc.store.q(ctx).Exec(ctx, query, cartID, code, decArg(discount))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (pc *PostgresCarts) Lines(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	query := `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ` + productColumns + `
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`
	rows, err := pc.store.q(ctx).Query(ctx, query, cartID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]domain.CartLine, 0)
	for rows.Next() {
		var (
			l    domain.CartLine
			sale decimal.NullDecimal
		)
		p := &l.Product
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity,
			&p.ID, &p.Name, &p.Slug, &p.Price, &sale, &p.StockQty, &p.SoldQty, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.SalePrice = fromNullDecimal(sale)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (pc *PostgresCarts) GetItem(ctx context.Context, cartID, productID int64) (*domain.CartItem, error) {
	var it domain.CartItem
	err := pc.store.q(ctx).QueryRow(ctx,
		`SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &it, nil
}

func (pc *PostgresCarts) SetItemQuantity(ctx context.Context, cartID, productID, qty int64) error {
	const query = `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`
	_, err := pc.store.q(ctx).Exec(ctx, query, cartID, productID, qty)
	return mapPgError(err)
}

func (pc *PostgresCarts) DeleteItem(ctx context.Context, cartID, productID int64) error {
	_, err := pc.store.q(ctx).Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	return mapPgError(err)
}

func (pc *PostgresCarts) ClearItems(ctx context.Context, cartID int64) error {
	_, err := pc.store.q(ctx).Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return mapPgError(err)
}
