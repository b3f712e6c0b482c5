package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/repository"
)

// CartService реализует логику корзин гостей и пользователей и их расчёт
type CartService struct {
	carts   repository.CartRepository
	coupons repository.CouponRepository
	catalog CatalogReader
	tx      repository.TxManager
	now     func() time.Time
	log     *zap.Logger
}

func NewCartService(carts repository.CartRepository, coupons repository.CouponRepository, catalog CatalogReader,
	tx repository.TxManager, log *zap.Logger) *CartService {
	return &CartService{carts: carts, coupons: coupons, catalog: catalog, tx: tx, now: time.Now, log: log}
}

// WithClock replaces the clock used to evaluate applied coupons.
func (s *CartService) WithClock(now func() time.Time) *CartService {
	s.now = now
	return s
}

// wrapErr keeps business errors and turns anything else into a system error.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.SystemError(op, err)
}

// lookupFor picks one lookup path; an authenticated user always wins.
func lookupFor(id domain.Identity) (repository.CartLookup, bool) {
	switch {
	case id.UserID != nil:
		uid := *id.UserID
		return repository.CartLookup{UserID: &uid}, true
	case id.SessionID != "":
		sid := id.SessionID
		return repository.CartLookup{SessionID: &sid}, true
	}
	return repository.CartLookup{}, false
}

// ResolveCart returns nil without error when the caller has no cart yet.
func (s *CartService) ResolveCart(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	l, ok := lookupFor(id)
	if !ok {
		return nil, nil
	}
	c, err := s.carts.Find(ctx, l)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, domain.SystemError("load cart", err)
	}
	return c, nil
}

func (s *CartService) ensureCart(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	l, ok := lookupFor(id)
	if !ok {
		return nil, domain.ErrMissingSessionID
	}
	c, err := s.ResolveCart(ctx, id)
	if err != nil || c != nil {
		return c, err
	}
	c = &domain.Cart{UserID: l.UserID, SessionID: l.SessionID}
	if err := s.carts.Create(ctx, c); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, domain.SystemError("create cart", err)
		}
		// created concurrently by another request of the same owner
		if c, err = s.carts.Find(ctx, l); err != nil {
			return nil, domain.SystemError("load cart", err)
		}
	}
	return c, nil
}

// checkStock validates adding add units to a line already holding held.
// The comparison is made against the remaining room so huge requests cannot wrap.
func checkStock(p *domain.Product, held, add int64) error {
	switch {
	case p.Status == domain.ProductHidden:
		return domain.Errorf(domain.ErrProductUnavailable, "product %q is not available", p.Name)
	case p.Status == domain.ProductOutOfStock:
		return domain.Errorf(domain.ErrOutOfStock, "product %q is out of stock", p.Name)
	case add > p.StockQty-held:
		return domain.Errorf(domain.ErrOutOfStock, "only %d of %q left in stock", p.StockQty, p.Name)
	}
	return nil
}

// AddItem increments an existing line or inserts a new one.
func (s *CartService) AddItem(ctx context.Context, id domain.Identity, productID, quantity int64) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if _, ok := lookupFor(id); !ok {
		return domain.ErrMissingSessionID
	}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.ensureCart(ctx, id)
		if err != nil {
			return err
		}
		var held int64
		existing, err := s.carts.GetItem(ctx, c.ID, productID)
		switch {
		case err == nil:
			held = existing.Quantity
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		if err := checkStock(p, held, quantity); err != nil {
			return err
		}
		return s.carts.SetItemQuantity(ctx, c.ID, productID, held+quantity)
	})
	return wrapErr("add cart item", err)
}

// UpdateQuantity sets the line to an absolute quantity; zero or less removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, id domain.Identity, productID, quantity int64) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, id, productID)
	}
	c, err := s.ResolveCart(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return domain.ErrCartItemNotFound
	}
	if _, err := s.carts.GetItem(ctx, c.ID, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrCartItemNotFound
		}
		return domain.SystemError("load cart item", err)
	}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := checkStock(p, 0, quantity); err != nil {
		return err
	}
	return wrapErr("update cart item", s.carts.SetItemQuantity(ctx, c.ID, productID, quantity))
}

// RemoveItem is idempotent.
func (s *CartService) RemoveItem(ctx context.Context, id domain.Identity, productID int64) error {
	c, err := s.ResolveCart(ctx, id)
	if err != nil || c == nil {
		return err
	}
	return wrapErr("remove cart item", s.carts.DeleteItem(ctx, c.ID, productID))
}

// Clear drops every line and the applied coupon but keeps the cart.
func (s *CartService) Clear(ctx context.Context, id domain.Identity) error {
	c, err := s.ResolveCart(ctx, id)
	if err != nil || c == nil {
		return err
	}
	return wrapErr("clear cart", s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.reset(ctx, c.ID)
	}))
}

func (s *CartService) reset(ctx context.Context, cartID int64) error {
	if err := s.carts.ClearItems(ctx, cartID); err != nil {
		return err
	}
	return s.carts.SetCoupon(ctx, cartID, nil, decimal.Zero)
}

// snapshot is a cart priced at one instant.
type snapshot struct {
	Pricing   domain.Pricing
	Coupon    *domain.Coupon
	CouponErr error
}

func emptyPricing() domain.Pricing {
	return domain.Pricing{Items: []domain.PricedLine{}, Subtotal: decimal.Zero, Discount: decimal.Zero, Total: decimal.Zero}
}

// price recomputes subtotal from the live lines and the discount from the
// applied coupon's rules. A coupon that no longer validates contributes zero.
func (s *CartService) price(ctx context.Context, c *domain.Cart) (*snapshot, error) {
	lines, err := s.carts.Lines(ctx, c.ID)
	if err != nil {
		return nil, domain.SystemError("load cart lines", err)
	}
	snap := &snapshot{Pricing: emptyPricing()}
	snap.Pricing.CartID = c.ID
	for _, l := range lines {
		if l.Product.Status == domain.ProductHidden {
			continue
		}
		unit := l.Product.EffectivePrice()
		lineTotal := unit.Mul(decimal.NewFromInt(l.Quantity))
		snap.Pricing.Items = append(snap.Pricing.Items, domain.PricedLine{
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			Slug:      l.Product.Slug,
			Price:     l.Product.Price,
			SalePrice: l.Product.SalePrice,
			UnitPrice: unit,
			Quantity:  l.Quantity,
			LineTotal: lineTotal,
			StockQty:  l.Product.StockQty,
			Status:    l.Product.Status,
		})
		snap.Pricing.Subtotal = snap.Pricing.Subtotal.Add(lineTotal)
		snap.Pricing.ItemCount += int(l.Quantity)
	}

	if c.CouponCode != nil {
		code := *c.CouponCode
		snap.Pricing.CouponCode = &code
		coupon, err := s.coupons.GetByCode(ctx, code)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			snap.CouponErr = domain.ErrCouponNotFound
		case err != nil:
			return nil, domain.SystemError("load coupon", err)
		default:
			snap.Coupon = coupon
			d, err := coupon.Evaluate(snap.Pricing.Subtotal, s.now())
			if err != nil {
				snap.CouponErr = err
			} else {
				snap.Pricing.Discount = d
			}
		}
		if snap.CouponErr != nil {
			snap.Pricing.CouponError = snap.CouponErr.Error()
		}
	}
	snap.Pricing.Total = snap.Pricing.Subtotal.Sub(snap.Pricing.Discount)
	return snap, nil
}

// GetPricing never fails for a missing cart; it prices as empty.
func (s *CartService) GetPricing(ctx context.Context, id domain.Identity) (*domain.Pricing, error) {
	c, err := s.ResolveCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		p := emptyPricing()
		return &p, nil
	}
	snap, err := s.price(ctx, c)
	if err != nil {
		return nil, err
	}
	return &snap.Pricing, nil
}

// Merge moves the guest session's cart into the signed-in user's cart.
// Quantities are summed and capped at current stock; the guest cart is deleted.
func (s *CartService) Merge(ctx context.Context, id domain.Identity) (*domain.Pricing, error) {
	if !id.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if id.SessionID == "" {
		return nil, domain.ErrMissingSessionID
	}
	guestID := domain.Identity{SessionID: id.SessionID}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		guest, err := s.ResolveCart(ctx, guestID)
		if err != nil || guest == nil {
			return err
		}
		userCart, err := s.ensureCart(ctx, domain.Identity{UserID: id.UserID})
		if err != nil {
			return err
		}
		lines, err := s.carts.Lines(ctx, guest.ID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if l.Product.Status != domain.ProductInStock || l.Product.StockQty <= 0 {
				continue
			}
			var held int64
			existing, err := s.carts.GetItem(ctx, userCart.ID, l.ProductID)
			switch {
			case err == nil:
				held = existing.Quantity
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}
			// sum capped at stock, compared against the room left so it cannot wrap
			qty := l.Product.StockQty
			if l.Quantity < l.Product.StockQty-held {
				qty = held + l.Quantity
			}
			if err := s.carts.SetItemQuantity(ctx, userCart.ID, l.ProductID, qty); err != nil {
				return err
			}
		}
		if userCart.CouponCode == nil && guest.CouponCode != nil {
			if err := s.carts.SetCoupon(ctx, userCart.ID, guest.CouponCode, guest.DiscountAmount); err != nil {
				return err
			}
		}
		s.log.Info("guest cart merged",
			zap.Int64("user_id", *id.UserID),
			zap.Int64("guest_cart_id", guest.ID),
			zap.Int64("cart_id", userCart.ID),
			zap.Int("lines", len(lines)))
		return s.carts.Delete(ctx, guest.ID)
	})
	if err != nil {
		return nil, wrapErr("merge carts", err)
	}
	return s.GetPricing(ctx, domain.Identity{UserID: id.UserID})
}
