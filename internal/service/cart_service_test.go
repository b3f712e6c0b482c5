package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/TranThienNhat/shop/internal/domain"
)

func TestCart_ResolveWithoutCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.carts.ResolveCart(ctx, guest("s1"))
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = f.carts.ResolveCart(ctx, domain.Identity{})
	require.NoError(t, err)
	assert.Nil(t, c)

	pricing, err := f.carts.GetPricing(ctx, guest("s1"))
	require.NoError(t, err)
	assert.Empty(t, pricing.Items)
	assert.True(t, pricing.Total.IsZero())
}

func TestCart_AddItemIncrementsExistingLine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "Mug", 100_000, 5)
	id := guest("s1")

	require.NoError(t, f.carts.AddItem(ctx, id, p.ID, 2))
	require.NoError(t, f.carts.AddItem(ctx, id, p.ID, 1))

	pricing, err := f.carts.GetPricing(ctx, id)
	require.NoError(t, err)
	require.Len(t, pricing.Items, 1)
	assert.Equal(t, int64(3), pricing.Items[0].Quantity)
	assert.True(t, pricing.Subtotal.Equal(dec(300_000)))
	assert.Equal(t, 3, pricing.ItemCount)
}

func TestCart_AddItemFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	id := guest("s1")
	p := f.product(t, "Mug", 10, 2)

	hidden := f.product(t, "Secret", 10, 5)
	hidden.Status = domain.ProductHidden
	_, err := f.products.Update(ctx, *hidden)
	require.NoError(t, err)

	sold := f.product(t, "Gone", 10, 5)
	sold.Status = domain.ProductOutOfStock
	_, err = f.products.Update(ctx, *sold)
	require.NoError(t, err)

	tests := []struct {
		name      string
		id        domain.Identity
		productID int64
		qty       int64
		want      error
		kind      domain.Kind
	}{
		{"zero quantity", id, p.ID, 0, domain.ErrInvalidQuantity, domain.KindValidation},
		{"negative quantity", id, p.ID, -3, domain.ErrInvalidQuantity, domain.KindValidation},
		{"anonymous caller", domain.Identity{}, p.ID, 1, domain.ErrMissingSessionID, domain.KindValidation},
		{"missing product", id, 999, 1, domain.ErrProductNotFound, domain.KindNotFound},
		{"hidden product", id, hidden.ID, 1, domain.ErrProductUnavailable, domain.KindState},
		{"out of stock status", id, sold.ID, 1, domain.ErrOutOfStock, domain.KindConflict},
		{"more than stock", id, p.ID, 3, domain.ErrOutOfStock, domain.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.carts.AddItem(ctx, tt.id, tt.productID, tt.qty)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}

	// cumulative quantity is checked, not just the new delta
	require.NoError(t, f.carts.AddItem(ctx, id, p.ID, 2))
	assert.ErrorIs(t, f.carts.AddItem(ctx, id, p.ID, 1), domain.ErrOutOfStock)
}

func TestCart_UpdateQuantityChecksAbsoluteQuantity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "Mug", 10, 4)
	id := guest("s1")

	assert.ErrorIs(t, f.carts.UpdateQuantity(ctx, id, p.ID, 1), domain.ErrCartItemNotFound)

	require.NoError(t, f.carts.AddItem(ctx, id, p.ID, 3))
	require.NoError(t, f.carts.UpdateQuantity(ctx, id, p.ID, 4))
	assert.ErrorIs(t, f.carts.UpdateQuantity(ctx, id, p.ID, 5), domain.ErrOutOfStock)

	pricing, _ := f.carts.GetPricing(ctx, id)
	require.Len(t, pricing.Items, 1)
	assert.Equal(t, int64(4), pricing.Items[0].Quantity)
}

func TestCart_UpdateToZeroEqualsRemove(t *testing.T) {
	run := func(t *testing.T, mutate func(*fixture, domain.Identity, int64) error) *domain.Pricing {
		f := setup(t)
		ctx := context.Background()
		a := f.product(t, "A", 10, 5)
		b := f.product(t, "B", 20, 5)
		id := guest("s1")
		require.NoError(t, f.carts.AddItem(ctx, id, a.ID, 2))
		require.NoError(t, f.carts.AddItem(ctx, id, b.ID, 1))
		require.NoError(t, mutate(f, id, a.ID))
		pricing, err := f.carts.GetPricing(ctx, id)
		require.NoError(t, err)
		return pricing
	}
	ctx := context.Background()
	viaUpdate := run(t, func(f *fixture, id domain.Identity, pid int64) error { return f.carts.UpdateQuantity(ctx, id, pid, 0) })
	viaRemove := run(t, func(f *fixture, id domain.Identity, pid int64) error { return f.carts.RemoveItem(ctx, id, pid) })
	assert.Equal(t, viaRemove, viaUpdate)
	assert.Len(t, viaUpdate.Items, 1)

	// both are no-ops for an absent line
	f := setup(t)
	assert.NoError(t, f.carts.UpdateQuantity(ctx, guest("s1"), 42, 0))
	assert.NoError(t, f.carts.RemoveItem(ctx, guest("s1"), 42))
}

func TestCart_PricingUsesSalePriceAndSkipsHidden(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	id := guest("s1")
	a := f.product(t, "A", 100, 5)
	a.SalePrice = decPtr(80)
	_, err := f.products.Update(ctx, *a)
	require.NoError(t, err)
	b := f.product(t, "B", 50, 5)

	require.NoError(t, f.carts.AddItem(ctx, id, a.ID, 2))
	require.NoError(t, f.carts.AddItem(ctx, id, b.ID, 1))

	b.Status = domain.ProductHidden
	_, err = f.products.Update(ctx, *b)
	require.NoError(t, err)

	pricing, err := f.carts.GetPricing(ctx, id)
	require.NoError(t, err)
	require.Len(t, pricing.Items, 1)
	assert.True(t, pricing.Items[0].UnitPrice.Equal(dec(80)))
	assert.True(t, pricing.Subtotal.Equal(dec(160)))
	assert.True(t, pricing.Total.Equal(dec(160)))
}

func TestCart_UserIdentityWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "A", 10, 10)

	require.NoError(t, f.carts.AddItem(ctx, guest("s1"), p.ID, 1))
	both := user(7)
	both.SessionID = "s1"
	require.NoError(t, f.carts.AddItem(ctx, both, p.ID, 2))

	guestCart, _ := f.carts.GetPricing(ctx, guest("s1"))
	userCart, _ := f.carts.GetPricing(ctx, user(7))
	assert.Equal(t, int64(1), guestCart.Items[0].Quantity)
	assert.Equal(t, int64(2), userCart.Items[0].Quantity)
}

func TestCart_ClearKeepsCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "A", 200, 10)
	f.coupon(t, domain.Coupon{Code: "TEN", Type: domain.DiscountFixedAmount, Value: dec(10)})
	id := guest("s1")
	require.NoError(t, f.carts.AddItem(ctx, id, p.ID, 1))
	_, err := f.coupons.Apply(ctx, id, "ten")
	require.NoError(t, err)

	before, _ := f.carts.ResolveCart(ctx, id)
	require.NoError(t, f.carts.Clear(ctx, id))
	after, err := f.carts.ResolveCart(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.ID, after.ID)
	assert.Nil(t, after.CouponCode)

	pricing, _ := f.carts.GetPricing(ctx, id)
	assert.Empty(t, pricing.Items)
}

func TestCart_Merge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.product(t, "A", 10, 3)
	b := f.product(t, "B", 20, 10)

	require.NoError(t, f.carts.AddItem(ctx, guest("s1"), a.ID, 2))
	require.NoError(t, f.carts.AddItem(ctx, guest("s1"), b.ID, 1))
	require.NoError(t, f.carts.AddItem(ctx, user(7), a.ID, 2))

	_, err := f.carts.Merge(ctx, guest("s1"))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = f.carts.Merge(ctx, user(7))
	assert.ErrorIs(t, err, domain.ErrMissingSessionID)

	both := user(7)
	both.SessionID = "s1"
	pricing, err := f.carts.Merge(ctx, both)
	require.NoError(t, err)
	require.Len(t, pricing.Items, 2)
	assert.Equal(t, int64(3), pricing.Items[0].Quantity, "capped at stock")
	assert.Equal(t, int64(1), pricing.Items[1].Quantity)

	gone, err := f.carts.ResolveCart(ctx, guest("s1"))
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCart_QuantityNeverExceedsStock(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		ctx := context.Background()
		stock := rapid.Int64Range(0, 20).Draw(t, "stock")
		p, err := f.products.Create(ctx, domain.Product{Name: "P", Price: dec(1), StockQty: stock})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		id := guest("s")
		ops := rapid.SliceOfN(rapid.Int64Range(-2, 8), 1, 15).Draw(t, "ops")
		for i, q := range ops {
			if i%2 == 0 {
				_ = f.carts.AddItem(ctx, id, p.ID, q)
			} else {
				_ = f.carts.UpdateQuantity(ctx, id, p.ID, q)
			}
			pricing, err := f.carts.GetPricing(ctx, id)
			if err != nil {
				t.Fatalf("pricing: %v", err)
			}
			for _, it := range pricing.Items {
				if it.Quantity > stock {
					t.Fatalf("quantity %d exceeds stock %d", it.Quantity, stock)
				}
			}
		}
	})
}

func TestCart_HugeQuantityCannotWrap(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "Mug", 10, 5)
	id := guest("s1")

	require.NoError(t, f.carts.AddItem(ctx, id, p.ID, 1))
	err := f.carts.AddItem(ctx, id, p.ID, math.MaxInt64)
	require.ErrorIs(t, err, domain.ErrOutOfStock)

	pricing, err := f.carts.GetPricing(ctx, id)
	require.NoError(t, err)
	require.Len(t, pricing.Items, 1)
	assert.Equal(t, int64(1), pricing.Items[0].Quantity)
}

func TestCart_MergeHugeQuantitiesCapAtStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "Grain", 1, math.MaxInt64)

	require.NoError(t, f.carts.AddItem(ctx, guest("s1"), p.ID, math.MaxInt64-1))
	require.NoError(t, f.carts.AddItem(ctx, user(7), p.ID, 5))

	both := user(7)
	both.SessionID = "s1"
	pricing, err := f.carts.Merge(ctx, both)
	require.NoError(t, err)
	require.Len(t, pricing.Items, 1)
	assert.Equal(t, int64(math.MaxInt64), pricing.Items[0].Quantity)
}
