package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TranThienNhat/shop/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простые генераторы ID
type MemoryStore struct {
	mu sync.RWMutex
	memoryTables
}

type memoryTables struct {
	nextProdID     int64
	nextCartID     int64
	nextItemID     int64
	nextCouponID   int64
	nextOrderID    int64
	nextLineID     int64
	productsByID   map[int64]domain.Product
	cartsByID      map[int64]domain.Cart
	itemsByID      map[int64]domain.CartItem
	couponsByID    map[int64]domain.Coupon
	ordersByID     map[int64]domain.Order
	orderLinesByID map[int64]domain.OrderLine
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memoryTables: memoryTables{
		nextProdID:     1,
		nextCartID:     1,
		nextItemID:     1,
		nextCouponID:   1,
		nextOrderID:    1,
		nextLineID:     1,
		productsByID:   make(map[int64]domain.Product),
		cartsByID:      make(map[int64]domain.Cart),
		itemsByID:      make(map[int64]domain.CartItem),
		couponsByID:    make(map[int64]domain.Coupon),
		ordersByID:     make(map[int64]domain.Order),
		orderLinesByID: make(map[int64]domain.OrderLine),
	}}
}

// snapshot copies every table; values are stored by value so a shallow map copy is enough.
func (t memoryTables) snapshot() memoryTables {
	cp := t
	cp.productsByID = cloneMap(t.productsByID)
	cp.cartsByID = cloneMap(t.cartsByID)
	cp.itemsByID = cloneMap(t.itemsByID)
	cp.couponsByID = cloneMap(t.couponsByID)
	cp.ordersByID = cloneMap(t.ordersByID)
	cp.orderLinesByID = cloneMap(t.orderLinesByID)
	return cp
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

// Ensure interfaces
var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ CartRepository    = (*MemoryCarts)(nil)
	_ CouponRepository  = (*MemoryCoupons)(nil)
	_ OrderRepository   = (*MemoryOrders)(nil)
	_ TxManager         = (*MemoryTx)(nil)
)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	for _, existing := range m.productsByID {
		if p.Slug != "" && existing.Slug == p.Slug {
			return ErrConflict
		}
	}
	p.ID = m.nextProdID
	m.nextProdID++
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	old, ok := m.productsByID[p.ID]
	if !ok {
		return ErrNotFound
	}
	// sold_qty only moves with stock
	p.CreatedAt = old.CreatedAt
	p.SoldQty = old.SoldQty
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if !f.IncludeHidden && p.Status == domain.ProductHidden {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	if p.StockQty < qty {
		return ErrInsufficientStock
	}
	p.StockQty -= qty
	p.SoldQty += qty
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[id] = p
	return nil
}

func (m *MemoryStore) RestoreStock(ctx context.Context, id, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	p.StockQty += qty
	p.SoldQty -= qty
	if p.SoldQty < 0 {
		p.SoldQty = 0
	}
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[id] = p
	return nil
}

// CartRepository implementation on wrapper type
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

func (mc *MemoryCarts) Find(ctx context.Context, l CartLookup) (*domain.Cart, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.find(l)
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (mc *MemoryCarts) find(l CartLookup) (domain.Cart, bool) {
	for _, c := range mc.store.cartsByID {
		switch {
		case l.UserID != nil:
			if c.UserID != nil && *c.UserID == *l.UserID {
				return c, true
			}
		case l.SessionID != nil:
			if c.SessionID != nil && *c.SessionID == *l.SessionID {
				return c, true
			}
		}
	}
	return domain.Cart{}, false
}

func (mc *MemoryCarts) Create(ctx context.Context, c *domain.Cart) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if (c.UserID == nil) == (c.SessionID == nil) {
		return ErrConflict
	}
	if _, ok := mc.find(CartLookup{UserID: c.UserID, SessionID: c.SessionID}); ok {
		return ErrConflict
	}
	c.ID = mc.store.nextCartID
	mc.store.nextCartID++
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	mc.store.cartsByID[c.ID] = *c
	return nil
}

func (mc *MemoryCarts) Delete(ctx context.Context, cartID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if _, ok := mc.store.cartsByID[cartID]; !ok {
		return ErrNotFound
	}
	mc.clear(cartID)
	delete(mc.store.cartsByID, cartID)
	return nil
}

func (mc *MemoryCarts) SetCoupon(ctx context.Context, cartID int64, code *string, discount decimal.Decimal) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	c, ok := mc.store.cartsByID[cartID]
	if !ok {
		return ErrNotFound
	}
	c.CouponCode = code
	c.DiscountAmount = discount
	c.UpdatedAt = time.Now().UTC()
	mc.store.cartsByID[cartID] = c
	return nil
}

func (mc *MemoryCarts) Lines(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	out := make([]domain.CartLine, 0)
	for _, it := range mc.store.itemsByID {
		if it.CartID != cartID {
			continue
		}
		p, ok := mc.store.productsByID[it.ProductID]
		if !ok {
			continue
		}
		out = append(out, domain.CartLine{CartItem: it, Product: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (mc *MemoryCarts) GetItem(ctx context.Context, cartID, productID int64) (*domain.CartItem, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	for _, it := range mc.store.itemsByID {
		if it.CartID == cartID && it.ProductID == productID {
			cp := it
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mc *MemoryCarts) SetItemQuantity(ctx context.Context, cartID, productID, qty int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if _, ok := mc.store.cartsByID[cartID]; !ok {
		return ErrNotFound
	}
	for id, it := range mc.store.itemsByID {
		if it.CartID == cartID && it.ProductID == productID {
			it.Quantity = qty
			mc.store.itemsByID[id] = it
			return nil
		}
	}
	it := domain.CartItem{ID: mc.store.nextItemID, CartID: cartID, ProductID: productID, Quantity: qty}
	mc.store.nextItemID++
	mc.store.itemsByID[it.ID] = it
	return nil
}

func (mc *MemoryCarts) DeleteItem(ctx context.Context, cartID, productID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	for id, it := range mc.store.itemsByID {
		if it.CartID == cartID && it.ProductID == productID {
			delete(mc.store.itemsByID, id)
		}
	}
	return nil
}

func (mc *MemoryCarts) ClearItems(ctx context.Context, cartID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	mc.clear(cartID)
	return nil
}

func (mc *MemoryCarts) clear(cartID int64) {
	for id, it := range mc.store.itemsByID {
		if it.CartID == cartID {
			delete(mc.store.itemsByID, id)
		}
	}
}

// CouponRepository implementation on wrapper type
type MemoryCoupons struct{ store *MemoryStore }

func NewMemoryCoupons(store *MemoryStore) *MemoryCoupons { return &MemoryCoupons{store: store} }

func (mc *MemoryCoupons) Create(ctx context.Context, c *domain.Coupon) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if _, ok := mc.byCode(c.Code); ok {
		return ErrConflict
	}
	c.ID = mc.store.nextCouponID
	mc.store.nextCouponID++
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	mc.store.couponsByID[c.ID] = *c
	return nil
}

func (mc *MemoryCoupons) byCode(code string) (domain.Coupon, bool) {
	for _, c := range mc.store.couponsByID {
		if c.Code == code {
			return c, true
		}
	}
	return domain.Coupon{}, false
}

func (mc *MemoryCoupons) GetByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.couponsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (mc *MemoryCoupons) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.byCode(code)
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (mc *MemoryCoupons) Update(ctx context.Context, c *domain.Coupon) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	old, ok := mc.store.couponsByID[c.ID]
	if !ok {
		return ErrNotFound
	}
	if other, ok := mc.byCode(c.Code); ok && other.ID != c.ID {
		return ErrConflict
	}
	c.UsedCount = old.UsedCount
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	mc.store.couponsByID[c.ID] = *c
	return nil
}

func (mc *MemoryCoupons) Delete(ctx context.Context, id int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if _, ok := mc.store.couponsByID[id]; !ok {
		return ErrNotFound
	}
	if mc.referenced(id) {
		return ErrConflict
	}
	delete(mc.store.couponsByID, id)
	return nil
}

func (mc *MemoryCoupons) List(ctx context.Context, f CouponFilter) ([]domain.Coupon, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	all := make([]domain.Coupon, 0, len(mc.store.couponsByID))
	for _, c := range mc.store.couponsByID {
		all = append(all, c)
	}
	// newest first
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Limit, f.Offset), nil
}

func (mc *MemoryCoupons) Count(ctx context.Context) (int64, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	return int64(len(mc.store.couponsByID)), nil
}

func (mc *MemoryCoupons) Available(ctx context.Context, orderValue decimal.Decimal, now time.Time) ([]domain.Coupon, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	out := make([]domain.Coupon, 0)
	for _, c := range mc.store.couponsByID {
		if _, err := c.Evaluate(orderValue, now); err != nil {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Value.Equal(out[j].Value) {
			return out[i].Value.GreaterThan(out[j].Value)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (mc *MemoryCoupons) IncrementUsage(ctx context.Context, id int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	c, ok := mc.store.couponsByID[id]
	if !ok {
		return ErrNotFound
	}
	if c.Quantity != nil && c.UsedCount >= *c.Quantity {
		return ErrUsageLimitReached
	}
	c.UsedCount++
	mc.store.couponsByID[id] = c
	return nil
}

func (mc *MemoryCoupons) Referenced(ctx context.Context, id int64) (bool, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	return mc.referenced(id), nil
}

func (mc *MemoryCoupons) referenced(id int64) bool {
	for _, o := range mc.store.ordersByID {
		if o.CouponID != nil && *o.CouponID == id {
			return true
		}
	}
	return false
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	for _, existing := range mo.store.ordersByID {
		if existing.Code == o.Code {
			return ErrConflict
		}
	}
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	lines := make([]domain.OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		l.ID = mo.store.nextLineID
		mo.store.nextLineID++
		l.OrderID = o.ID
		mo.store.orderLinesByID[l.ID] = l
		lines[i] = l
	}
	o.Lines = lines
	header := *o
	header.Lines = nil
	mo.store.ordersByID[o.ID] = header
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Lines = mo.lines(id)
	return &o, nil
}

// GetForUpdate relies on the transaction's exclusive lock.
func (mo *MemoryOrders) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return mo.GetByID(ctx, id)
}

func (mo *MemoryOrders) lines(orderID int64) []domain.OrderLine {
	out := make([]domain.OrderLine, 0)
	for _, l := range mo.store.orderLinesByID {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (mo *MemoryOrders) List(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	all := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		o.Lines = mo.lines(o.ID)
		all = append(all, o)
	}
	// newest first
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Limit, f.Offset), nil
}

func (mo *MemoryOrders) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[id] = o
	return nil
}

func paginate[T any](all []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(all) {
			return []T{}
		}
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Tx manager using write lock to emulate transaction boundary
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

// WithTransaction holds the write lock for the whole of fn and marks ctx so
// repositories skip their own locks. Tables are restored if fn fails.
func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if isTx(ctx) {
		return fn(ctx)
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	saved := tx.store.memoryTables.snapshot()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		tx.store.memoryTables = saved
		return err
	}
	return nil
}
