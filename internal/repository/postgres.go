package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// NewPostgresPool opens a pool and checks the server is reachable.
func NewPostgresPool(ctx context.Context, connString string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	} else {
		config.MaxConns = 25
	}
	config.MinConns = min(5, config.MaxConns)
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type pgTxKey struct{}

func querierFrom(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// PostgresStore хранилище товаров; остальные таблицы работают через тот же пул.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore { return &PostgresStore{pool: pool} }

func (s *PostgresStore) q(ctx context.Context) querier { return querierFrom(ctx, s.pool) }

// Ping reports whether the database answers.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

var (
	_ ProductRepository = (*PostgresStore)(nil)
	_ CartRepository    = (*PostgresCarts)(nil)
	_ CouponRepository  = (*PostgresCoupons)(nil)
	_ OrderRepository   = (*PostgresOrders)(nil)
	_ TxManager         = (*PostgresTx)(nil)
)

// PostgresTx runs fn inside a READ COMMITTED transaction. Nested calls join
// the outer transaction.
type PostgresTx struct {
	pool *pgxpool.Pool
}

func NewPostgresTx(pool *pgxpool.Pool) *PostgresTx { return &PostgresTx{pool: pool} }

func (t *PostgresTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// no-op after a successful commit
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Migrate создаёт схему, если её ещё нет.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL UNIQUE,
			price NUMERIC(15,2) NOT NULL CHECK (price >= 0),
			sale_price NUMERIC(15,2) CHECK (sale_price >= 0),
			stock_qty BIGINT NOT NULL DEFAULT 0 CHECK (stock_qty >= 0),
			sold_qty BIGINT NOT NULL DEFAULT 0 CHECK (sold_qty >= 0),
			status VARCHAR(20) NOT NULL DEFAULT 'in_stock',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_status ON products(status)`,

		`CREATE TABLE IF NOT EXISTS carts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT,
			session_id VARCHAR(255),
			coupon_code VARCHAR(50),
			discount_amount NUMERIC(15,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			CHECK ((user_id IS NULL) <> (session_id IS NULL))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_user_id ON carts(user_id) WHERE user_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_session_id ON carts(session_id) WHERE session_id IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS cart_items (
			id BIGSERIAL PRIMARY KEY,
			cart_id BIGINT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
			product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			quantity BIGINT NOT NULL CHECK (quantity > 0),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (cart_id, product_id)
		)`,

		`CREATE TABLE IF NOT EXISTS coupons (
			id BIGSERIAL PRIMARY KEY,
			code VARCHAR(50) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			type VARCHAR(20) NOT NULL,
			value NUMERIC(15,2) NOT NULL CHECK (value > 0),
			min_order_value NUMERIC(15,2),
			max_discount_value NUMERIC(15,2),
			quantity BIGINT CHECK (quantity >= 0),
			used_count BIGINT NOT NULL DEFAULT 0 CHECK (used_count >= 0),
			start_date TIMESTAMP WITH TIME ZONE,
			end_date TIMESTAMP WITH TIME ZONE,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coupons_status ON coupons(status)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			code VARCHAR(64) NOT NULL UNIQUE,
			subtotal NUMERIC(15,2) NOT NULL,
			discount_amount NUMERIC(15,2) NOT NULL DEFAULT 0,
			total NUMERIC(15,2) NOT NULL CHECK (total >= 0),
			payment_method VARCHAR(20) NOT NULL,
			shipping_name VARCHAR(255) NOT NULL,
			shipping_phone VARCHAR(50) NOT NULL,
			shipping_address TEXT NOT NULL,
			shipping_email VARCHAR(255) NOT NULL DEFAULT '',
			coupon_id BIGINT REFERENCES coupons(id) ON DELETE RESTRICT,
			coupon_code VARCHAR(50),
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

		`CREATE TABLE IF NOT EXISTS order_details (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id BIGINT NOT NULL REFERENCES products(id),
			product_name VARCHAR(255) NOT NULL,
			price NUMERIC(15,2) NOT NULL,
			quantity BIGINT NOT NULL CHECK (quantity > 0),
			total_price NUMERIC(15,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_details_order_id ON order_details(order_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

// mapPgError translates driver errors into repository sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514":
			// unique, foreign key, check
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

// Decimals travel as text so the server parses them into NUMERIC exactly.
func decArg(d decimal.Decimal) string { return d.String() }

func decPtrArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func fromNullDecimal(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func (s *PostgresStore) exists(ctx context.Context, table string, id int64) (bool, error) {
	var ok bool
	err := s.q(ctx).QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&ok)
	return ok, err
}
