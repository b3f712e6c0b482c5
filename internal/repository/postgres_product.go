package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/TranThienNhat/shop/internal/domain"
)

const productColumns = `p.id, p.name, p.slug, p.price, p.sale_price, p.stock_qty, p.sold_qty, p.status, p.created_at, p.updated_at`

func scanProduct(row pgx.Row, p *domain.Product) error {
	var sale decimal.NullDecimal
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Price, &sale, &p.StockQty, &p.SoldQty, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.SalePrice = fromNullDecimal(sale)
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, p *domain.Product) error {
	const query = `
		INSERT INTO products (name, slug, price, sale_price, stock_qty, sold_qty, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err := s.q(ctx).QueryRow(ctx, query, p.Name, p.Slug, decArg(p.Price), decPtrArg(p.SalePrice),
		p.StockQty, p.SoldQty, string(p.Status)).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapPgError(err)
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	row := s.q(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id)
	if err := scanProduct(row, &p); err != nil {
		return nil, mapPgError(err)
	}
	return &p, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *domain.Product) error {
	const query = `
		UPDATE products
		SET name = $2, slug = $3, price = $4, sale_price = $5, stock_qty = $6, status = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING sold_qty, created_at, updated_at`
	err := s.q(ctx).QueryRow(ctx, query, p.ID, p.Name, p.Slug, decArg(p.Price), decPtrArg(p.SalePrice),
		p.StockQty, string(p.Status)).Scan(&p.SoldQty, &p.CreatedAt, &p.UpdatedAt)
	return mapPgError(err)
}

func (s *PostgresStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !f.IncludeHidden {
		where = append(where, "p.status <> "+arg(string(domain.ProductHidden)))
	}
	if f.Status != nil {
		where = append(where, "p.status = "+arg(string(*f.Status)))
	}
	if f.NameSubstring != "" {
		where = append(where, "p.name ILIKE "+arg("%"+escapeLike(f.NameSubstring)+"%"))
	}
	if f.MinPrice != nil {
		where = append(where, "p.price >= "+arg(decArg(*f.MinPrice)))
	}
	if f.MaxPrice != nil {
		where = append(where, "p.price <= "+arg(decArg(*f.MaxPrice)))
	}
	query := `SELECT ` + productColumns + ` FROM products p`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.id"

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	out := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecrementStock checks and takes stock in one statement so concurrent
// checkouts cannot oversell.
func (s *PostgresStore) DecrementStock(ctx context.Context, id, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	const query = `
		UPDATE products
		SET stock_qty = stock_qty - $2, sold_qty = sold_qty + $2, updated_at = NOW()
		WHERE id = $1 AND stock_qty >= $2`
	tag, err := s.q(ctx).Exec(ctx, query, id, qty)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := s.exists(ctx, "products", id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

func (s *PostgresStore) RestoreStock(ctx context.Context, id, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	const query = `
		UPDATE products
		SET stock_qty = stock_qty + $2, sold_qty = GREATEST(sold_qty - $2, 0), updated_at = NOW()
		WHERE id = $1`
	tag, err := s.q(ctx).Exec(ctx, query, id, qty)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
