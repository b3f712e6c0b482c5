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

// CouponService реализует проверку купонов, применение к корзине и администрирование
type CouponService struct {
	coupons repository.CouponRepository
	carts   *CartService
	now     func() time.Time
	log     *zap.Logger
}

func NewCouponService(coupons repository.CouponRepository, carts *CartService, log *zap.Logger) *CouponService {
	return &CouponService{coupons: coupons, carts: carts, now: time.Now, log: log}
}

// WithClock replaces the clock used for validity windows.
func (s *CouponService) WithClock(now func() time.Time) *CouponService {
	s.now = now
	return s
}

// Validation результат успешной проверки купона
type Validation struct {
	Coupon   *domain.Coupon  `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
	Message  string          `json:"message"`
}

// Validate runs the eligibility checks for an order of the given value.
func (s *CouponService) Validate(ctx context.Context, code string, orderValue decimal.Decimal) (*Validation, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, "coupon code is required")
	}
	if orderValue.IsNegative() {
		return nil, domain.Errorf(domain.ErrInvalidInput, "order value cannot be negative")
	}
	c, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, domain.SystemError("load coupon", err)
	}
	d, err := c.Evaluate(orderValue, s.now())
	if err != nil {
		return nil, err
	}
	return &Validation{Coupon: c, Discount: d, Message: "coupon applied"}, nil
}

// Apply validates the code against the live cart subtotal and stores it on the cart.
func (s *CouponService) Apply(ctx context.Context, id domain.Identity, code string) (*Validation, error) {
	cart, err := s.carts.ResolveCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, domain.ErrEmptyCart
	}
	snap, err := s.carts.price(ctx, cart)
	if err != nil {
		return nil, err
	}
	if len(snap.Pricing.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	v, err := s.Validate(ctx, code, snap.Pricing.Subtotal)
	if err != nil {
		// an unknown code on apply is bad input, not a missing resource
		if errors.Is(err, domain.ErrCouponNotFound) {
			return nil, &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonCouponNotFound, Message: "coupon code is not valid"}
		}
		return nil, err
	}
	applied := v.Coupon.Code
	if err := s.carts.carts.SetCoupon(ctx, cart.ID, &applied, v.Discount); err != nil {
		return nil, domain.SystemError("apply coupon", err)
	}
	s.log.Info("coupon applied",
		zap.Int64("cart_id", cart.ID),
		zap.String("code", applied),
		zap.String("discount", v.Discount.String()))
	return v, nil
}

// Remove always succeeds, with or without a cart.
func (s *CouponService) Remove(ctx context.Context, id domain.Identity) error {
	cart, err := s.carts.ResolveCart(ctx, id)
	if err != nil || cart == nil {
		return err
	}
	if err := s.carts.carts.SetCoupon(ctx, cart.ID, nil, decimal.Zero); err != nil {
		return domain.SystemError("remove coupon", err)
	}
	return nil
}

// Available lists coupons usable right now for the order value.
func (s *CouponService) Available(ctx context.Context, orderValue decimal.Decimal) ([]domain.Coupon, error) {
	if orderValue.IsNegative() {
		return nil, domain.Errorf(domain.ErrInvalidInput, "order value cannot be negative")
	}
	list, err := s.coupons.Available(ctx, orderValue, s.now())
	if err != nil {
		return nil, domain.SystemError("list available coupons", err)
	}
	return list, nil
}

func (s *CouponService) Create(ctx context.Context, c domain.Coupon) (*domain.Coupon, error) {
	cp := c
	cp.Code = domain.NormalizeCouponCode(cp.Code)
	if cp.Status == "" {
		cp.Status = domain.CouponActive
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	cp.UsedCount = 0
	if err := s.coupons.Create(ctx, &cp); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Errorf(domain.ErrDuplicateCouponCode, "coupon code %s already exists", cp.Code)
		}
		return nil, domain.SystemError("create coupon", err)
	}
	s.log.Info("coupon created", zap.Int64("coupon_id", cp.ID), zap.String("code", cp.Code))
	return &cp, nil
}

// CouponPage страница списка купонов
type CouponPage struct {
	Items []domain.Coupon `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (s *CouponService) List(ctx context.Context, page, limit int) (*CouponPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	items, err := s.coupons.List(ctx, repository.CouponFilter{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return nil, domain.SystemError("list coupons", err)
	}
	total, err := s.coupons.Count(ctx)
	if err != nil {
		return nil, domain.SystemError("count coupons", err)
	}
	return &CouponPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *CouponService) Get(ctx context.Context, id int64) (*domain.Coupon, error) {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, domain.SystemError("load coupon", err)
	}
	return c, nil
}

// Update rewrites the editable fields; the usage counter is left alone.
func (s *CouponService) Update(ctx context.Context, c domain.Coupon) (*domain.Coupon, error) {
	current, err := s.Get(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	cp := c
	cp.Code = domain.NormalizeCouponCode(cp.Code)
	if cp.Status == "" {
		cp.Status = current.Status
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	if err := s.coupons.Update(ctx, &cp); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, domain.ErrCouponNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, domain.Errorf(domain.ErrDuplicateCouponCode, "coupon code %s already exists", cp.Code)
		}
		return nil, domain.SystemError("update coupon", err)
	}
	return &cp, nil
}

// Delete refuses coupons that orders still point at.
func (s *CouponService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	used, err := s.coupons.Referenced(ctx, id)
	if err != nil {
		return domain.SystemError("check coupon references", err)
	}
	if used {
		return domain.ErrCouponInUse
	}
	if err := s.coupons.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return domain.ErrCouponNotFound
		case errors.Is(err, repository.ErrConflict):
			return domain.ErrCouponInUse
		}
		return domain.SystemError("delete coupon", err)
	}
	s.log.Info("coupon deleted", zap.Int64("coupon_id", id))
	return nil
}
