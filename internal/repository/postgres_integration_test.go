//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/TranThienNhat/shop/internal/domain"
)

func startPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "shop",
			"POSTGRES_PASSWORD": "shop",
			"POSTGRES_DB":       "shop",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	pool, err := NewPostgresPool(ctx, dsn, 10)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))
	return store
}

// StartPostgres hands the container fixture to tests in repository_test.
func StartPostgres(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	store := startPostgres(t)
	return store, store.pool
}

func TestPostgres_DuplicateCartKeepsTransactionUsable(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	carts := NewPostgresCarts(store)
	tx := NewPostgresTx(store.pool)

	uid := int64(5)
	first := domain.Cart{UserID: &uid}
	require.NoError(t, carts.Create(ctx, &first))

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		dup := domain.Cart{UserID: &uid}
		if err := carts.Create(ctx, &dup); !errors.Is(err, ErrConflict) {
			return fmt.Errorf("expected conflict, got %v", err)
		}
		// the transaction must still accept statements after the conflict
		got, err := carts.Find(ctx, CartLookup{UserID: &uid})
		if err != nil {
			return err
		}
		if got.ID != first.ID {
			return fmt.Errorf("found cart %d, want %d", got.ID, first.ID)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestPostgres_StockRejectsNonPositiveQuantity(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	p := domain.Product{Name: "Pen", Slug: "pen", Price: decimal.NewFromInt(1), StockQty: 2, Status: domain.ProductInStock}
	require.NoError(t, store.Create(ctx, &p))

	assert.ErrorIs(t, store.DecrementStock(ctx, p.ID, -5), ErrInvalidQuantity)
	assert.ErrorIs(t, store.RestoreStock(ctx, p.ID, 0), ErrInvalidQuantity)
	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.StockQty)
	assert.Equal(t, int64(0), got.SoldQty)
}

func TestPostgres_Roundtrip(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	carts := NewPostgresCarts(store)
	coupons := NewPostgresCoupons(store)
	orders := NewPostgresOrders(store)
	tx := NewPostgresTx(store.pool)

	sale := decimal.RequireFromString("80.50")
	p := domain.Product{Name: "Lamp", Slug: "lamp", Price: decimal.NewFromInt(100), SalePrice: &sale, StockQty: 5, Status: domain.ProductInStock}
	require.NoError(t, store.Create(ctx, &p))

	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SalePrice)
	assert.True(t, got.SalePrice.Equal(sale))

	uid := int64(42)
	cart := domain.Cart{UserID: &uid}
	require.NoError(t, carts.Create(ctx, &cart))
	require.NoError(t, carts.SetItemQuantity(ctx, cart.ID, p.ID, 2))
	require.NoError(t, carts.SetItemQuantity(ctx, cart.ID, p.ID, 3))
	lines, err := carts.Lines(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(3), lines[0].Quantity)
	assert.Equal(t, "Lamp", lines[0].Product.Name)

	limit := int64(1)
	c := domain.Coupon{Code: "ONE", Type: domain.DiscountFixedAmount, Value: decimal.NewFromInt(10), Quantity: &limit, Status: domain.CouponActive}
	require.NoError(t, coupons.Create(ctx, &c))
	dup := c
	assert.ErrorIs(t, coupons.Create(ctx, &dup), ErrConflict)

	err = tx.WithTransaction(ctx, func(ctx context.Context) error {
		o := domain.Order{UserID: uid, Code: "ORD-TEST", Subtotal: sale.Mul(decimal.NewFromInt(3)),
			DiscountAmount: decimal.NewFromInt(10), PaymentMethod: domain.PaymentCOD, ShippingName: "A",
			ShippingPhone: "1", ShippingAddress: "X", CouponID: &c.ID, Status: domain.OrderStatusPending,
			Lines: []domain.OrderLine{{ProductID: p.ID, ProductName: p.Name, Price: sale, Quantity: 3, TotalPrice: sale.Mul(decimal.NewFromInt(3))}}}
		o.Total = o.Subtotal.Sub(o.DiscountAmount)
		if err := orders.Create(ctx, &o); err != nil {
			return err
		}
		if err := store.DecrementStock(ctx, p.ID, 3); err != nil {
			return err
		}
		if err := coupons.IncrementUsage(ctx, c.ID); err != nil {
			return err
		}
		return carts.ClearItems(ctx, cart.ID)
	})
	require.NoError(t, err)

	list, err := orders.List(ctx, OrderFilter{UserID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Lines, 1)
	assert.True(t, list[0].Total.Equal(decimal.RequireFromString("231.50")), "total %s", list[0].Total)

	assert.ErrorIs(t, coupons.IncrementUsage(ctx, c.ID), ErrUsageLimitReached)
	ref, err := coupons.Referenced(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ref)
	assert.ErrorIs(t, coupons.Delete(ctx, c.ID), ErrConflict)
}

func TestPostgres_RollbackLeavesNoTrace(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	orders := NewPostgresOrders(store)
	tx := NewPostgresTx(store.pool)

	p := domain.Product{Name: "Mug", Slug: "mug", Price: decimal.NewFromInt(5), StockQty: 1, Status: domain.ProductInStock}
	require.NoError(t, store.Create(ctx, &p))

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		o := domain.Order{UserID: 1, Code: "ORD-RB", PaymentMethod: domain.PaymentCOD, ShippingName: "A",
			ShippingPhone: "1", ShippingAddress: "X", Status: domain.OrderStatusPending}
		if err := orders.Create(ctx, &o); err != nil {
			return err
		}
		return store.DecrementStock(ctx, p.ID, 2)
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	list, err := orders.List(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.StockQty)
}

func TestPostgres_ConcurrentDecrementNeverOversells(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	tx := NewPostgresTx(store.pool)

	p := domain.Product{Name: "Last", Slug: "last", Price: decimal.NewFromInt(5), StockQty: 1, Status: domain.ProductInStock}
	require.NoError(t, store.Create(ctx, &p))

	const buyers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.WithTransaction(ctx, func(ctx context.Context) error {
				return store.DecrementStock(ctx, p.ID, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrInsufficientStock):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, buyers-1, losses)
	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.StockQty)
	assert.Equal(t, int64(1), got.SoldQty)
}
