package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/TranThienNhat/shop/internal/domain"
)

// PostgresOrders таблицы orders и order_details
type PostgresOrders struct{ store *PostgresStore }

func NewPostgresOrders(store *PostgresStore) *PostgresOrders { return &PostgresOrders{store: store} }

const orderColumns = `id, user_id, code, subtotal, discount_amount, total, payment_method, shipping_name,
	shipping_phone, shipping_address, shipping_email, coupon_id, coupon_code, status, created_at, updated_at`

func scanOrder(row pgx.Row, o *domain.Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.Code, &o.Subtotal, &o.DiscountAmount, &o.Total, &o.PaymentMethod,
		&o.ShippingName, &o.ShippingPhone, &o.ShippingAddress, &o.ShippingEmail, &o.CouponID, &o.CouponCode,
		&o.Status, &o.CreatedAt, &o.UpdatedAt)
}

// Create inserts the header, then all lines in one batch.
func (po *PostgresOrders) Create(ctx context.Context, o *domain.Order) error {
	q := po.store.q(ctx)
	const header = `
		INSERT INTO orders (user_id, code, subtotal, discount_amount, total, payment_method, shipping_name,
			shipping_phone, shipping_address, shipping_email, coupon_id, coupon_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`
	err := q.QueryRow(ctx, header, o.UserID, o.Code, decArg(o.Subtotal), decArg(o.DiscountAmount), decArg(o.Total),
		string(o.PaymentMethod), o.ShippingName, o.ShippingPhone, o.ShippingAddress, o.ShippingEmail,
		o.CouponID, o.CouponCode, string(o.Status)).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if len(o.Lines) == 0 {
		return nil
	}

	const line = `
		INSERT INTO order_details (order_id, product_id, product_name, price, quantity, total_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	batch := &pgx.Batch{}
	for _, l := range o.Lines {
		batch.Queue(line, o.ID, l.ProductID, l.ProductName, decArg(l.Price), l.Quantity, decArg(l.TotalPrice))
	}
	br := q.SendBatch(ctx, batch)
	for i := range o.Lines {
		o.Lines[i].OrderID = o.ID
		if err := br.QueryRow().Scan(&o.Lines[i].ID); err != nil {
			_ = br.Close()
			return mapPgError(err)
		}
	}
	return mapPgError(br.Close())
}

func (po *PostgresOrders) getOne(ctx context.Context, query string, id int64) (*domain.Order, error) {
	var o domain.Order
	if err := scanOrder(po.store.q(ctx).QueryRow(ctx, query, id), &o); err != nil {
		return nil, mapPgError(err)
	}
	lines, err := po.lines(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[o.ID]
	if o.Lines == nil {
		o.Lines = []domain.OrderLine{}
	}
	return &o, nil
}

func (po *PostgresOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return po.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (po *PostgresOrders) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return po.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (po *PostgresOrders) lines(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	rows, err := po.store.q(ctx).Query(ctx, `
		SELECT id, order_id, product_id, product_name, price, quantity, total_price
		FROM order_details WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	out := make(map[int64][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Price, &l.Quantity, &l.TotalPrice); err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

func (po *PostgresOrders) List(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.UserID != nil {
		where = append(where, "user_id = "+arg(*f.UserID))
	}
	if f.Status != nil {
		where = append(where, "status = "+arg(string(*f.Status)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := po.store.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	out := make([]domain.Order, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := po.lines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
		if out[i].Lines == nil {
			out[i].Lines = []domain.OrderLine{}
		}
	}
	return out, nil
}

func (po *PostgresOrders) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	tag, err := po.store.q(ctx).Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
