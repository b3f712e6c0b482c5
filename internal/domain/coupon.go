package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType способ скидки купона
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// CouponStatus административный статус купона
type CouponStatus string

const (
	CouponActive   CouponStatus = "active"
	CouponInactive CouponStatus = "inactive"
	CouponExpired  CouponStatus = "expired"
)

var (
	couponCodeRe = regexp.MustCompile(`^[A-Z0-9]+$`)
	hundred      = decimal.NewFromInt(100)
)

// Coupon промокод, применяемый к корзине
type Coupon struct {
	ID               int64            `json:"id"`
	Code             string           `json:"code"`
	Name             string           `json:"name,omitempty"`
	Description      string           `json:"description,omitempty"`
	Type             DiscountType     `json:"type"`
	Value            decimal.Decimal  `json:"value"`
	MinOrderValue    *decimal.Decimal `json:"min_order_value,omitempty"`
	MaxDiscountValue *decimal.Decimal `json:"max_discount_value,omitempty"`
	Quantity         *int64           `json:"quantity,omitempty"`
	UsedCount        int64            `json:"used_count"`
	StartDate        *time.Time       `json:"start_date,omitempty"`
	EndDate          *time.Time       `json:"end_date,omitempty"`
	Status           CouponStatus     `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NormalizeCouponCode trims and upper-cases a user supplied code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the fields an administrator can set.
func (c Coupon) Validate() error {
	if !couponCodeRe.MatchString(c.Code) {
		return Errorf(ErrInvalidInput, "coupon code must be upper case letters and digits")
	}
	switch c.Type {
	case DiscountPercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(hundred) {
			return Errorf(ErrInvalidInput, "percentage must be between 0 and 100")
		}
	case DiscountFixedAmount:
		if !c.Value.IsPositive() {
			return Errorf(ErrInvalidInput, "fixed discount must be positive")
		}
		if c.MaxDiscountValue != nil {
			return Errorf(ErrInvalidInput, "max discount only applies to percentage coupons")
		}
	default:
		return Errorf(ErrInvalidInput, "coupon type must be percentage or fixed_amount")
	}
	switch c.Status {
	case CouponActive, CouponInactive, CouponExpired:
	default:
		return Errorf(ErrInvalidInput, "coupon status must be active, inactive or expired")
	}
	if c.MinOrderValue != nil && c.MinOrderValue.IsNegative() {
		return Errorf(ErrInvalidInput, "minimum order value cannot be negative")
	}
	if c.MaxDiscountValue != nil && !c.MaxDiscountValue.IsPositive() {
		return Errorf(ErrInvalidInput, "max discount must be positive")
	}
	if c.Quantity != nil && *c.Quantity < 0 {
		return Errorf(ErrInvalidInput, "quantity cannot be negative")
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return Errorf(ErrInvalidInput, "end date is before start date")
	}
	return nil
}

// Evaluate runs the eligibility checks in order and returns the discount
// for an order of the given value. The first failing check wins.
func (c Coupon) Evaluate(orderValue decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if c.Status != CouponActive {
		return decimal.Zero, ErrCouponInactive
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return decimal.Zero, ErrCouponNotYetValid
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return decimal.Zero, ErrCouponExpired
	}
	if c.Quantity != nil && c.UsedCount >= *c.Quantity {
		return decimal.Zero, ErrCouponExhausted
	}
	if c.MinOrderValue != nil && orderValue.LessThan(*c.MinOrderValue) {
		return decimal.Zero, Errorf(ErrBelowMinimumOrder,
			"order must be at least %s to use this coupon", c.MinOrderValue.String())
	}
	return c.Discount(orderValue), nil
}

// Discount computes the amount off without eligibility checks.
func (c Coupon) Discount(orderValue decimal.Decimal) decimal.Decimal {
	if !orderValue.IsPositive() {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		d = orderValue.Mul(c.Value).Div(hundred).Round(2)
		if c.MaxDiscountValue != nil && d.GreaterThan(*c.MaxDiscountValue) {
			d = *c.MaxDiscountValue
		}
	default:
		d = c.Value
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, orderValue)
}
