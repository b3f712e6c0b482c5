package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	store    *repository.MemoryStore
	products *ProductService
	carts    *CartService
	coupons  *CouponService
	orders   *OrderService
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) *fixture {
	t.Helper()
	return newFixture()
}

func newFixture() *fixture {
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	cartRepo := repository.NewMemoryCarts(store)
	couponRepo := repository.NewMemoryCoupons(store)
	orderRepo := repository.NewMemoryOrders(store)
	tx := repository.NewMemoryTx(store)
	clock := func() time.Time { return fixedNow }

	ps := NewProductService(store, log)
	cs := NewCartService(cartRepo, couponRepo, ps, tx, log).WithClock(clock)
	return &fixture{
		store:    store,
		products: ps,
		carts:    cs,
		coupons:  NewCouponService(couponRepo, cs, log).WithClock(clock),
		orders:   NewOrderService(store, orderRepo, couponRepo, cs, tx, log),
	}
}

func (f *fixture) product(t *testing.T, name string, price, stock int64) *domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), domain.Product{Name: name, Price: decimal.NewFromInt(price), StockQty: stock})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func (f *fixture) coupon(t *testing.T, c domain.Coupon) *domain.Coupon {
	t.Helper()
	created, err := f.coupons.Create(context.Background(), c)
	if err != nil {
		t.Fatalf("create coupon %s: %v", c.Code, err)
	}
	return created
}

func user(id int64) domain.Identity { return domain.Identity{UserID: &id, Email: "u@example.com"} }

func admin(id int64) domain.Identity {
	return domain.Identity{UserID: &id, Email: "admin@example.com", Role: domain.RoleAdmin}
}

func guest(session string) domain.Identity { return domain.Identity{SessionID: session} }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func int64Ptr(v int64) *int64 { return &v }

var shipping = domain.ShippingInfo{Name: "Nhat", Phone: "0900000000", Address: "1 Le Loi, HCMC"}

func lineSum(lines []domain.OrderLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.TotalPrice)
	}
	return sum
}
