package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus доступность товара
type ProductStatus string

const (
	ProductInStock    ProductStatus = "in_stock"
	ProductOutOfStock ProductStatus = "out_of_stock"
	ProductHidden     ProductStatus = "hidden"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductInStock, ProductOutOfStock, ProductHidden:
		return true
	}
	return false
}

// Product товар каталога
type Product struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Slug      string           `json:"slug"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	StockQty  int64            `json:"stock_qty"`
	SoldQty   int64            `json:"sold_qty"`
	Status    ProductStatus    `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// EffectivePrice is the sale price when one is set, otherwise the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		return *p.SalePrice
	}
	return p.Price
}

// Cart belongs to a user or to a guest session, never both.
type Cart struct {
	ID             int64           `json:"id"`
	UserID         *int64          `json:"user_id,omitempty"`
	SessionID      *string         `json:"session_id,omitempty"`
	CouponCode     *string         `json:"coupon_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CartItem строка корзины, уникальна по (cart, product)
type CartItem struct {
	ID        int64 `json:"id"`
	CartID    int64 `json:"cart_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// CartLine cart item joined with the product it refers to
type CartLine struct {
	CartItem
	Product Product `json:"product"`
}

// PricedLine is what the cart shows for a single line.
type PricedLine struct {
	ProductID int64            `json:"product_id"`
	Name      string           `json:"name"`
	Slug      string           `json:"slug"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	Quantity  int64            `json:"quantity"`
	LineTotal decimal.Decimal  `json:"line_total"`
	StockQty  int64            `json:"stock_qty"`
	Status    ProductStatus    `json:"status"`
}

// Pricing текущие итоги корзины
type Pricing struct {
	CartID      int64           `json:"cart_id,omitempty"`
	Items       []PricedLine    `json:"items"`
	ItemCount   int             `json:"item_count"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
	CouponCode  *string         `json:"coupon_code,omitempty"`
	CouponError string          `json:"coupon_error,omitempty"`
}

// OrderStatus статус заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipping  OrderStatus = "shipping"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:  {OrderStatusCompleted, OrderStatusRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipping,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanTransitionTo reports whether next is an allowed edge from s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, st := range orderTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// PaymentMethod only cash on delivery is supported
type PaymentMethod string

const PaymentCOD PaymentMethod = "cod"

// ShippingInfo данные доставки при оформлении
type ShippingInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
}

// OrderLine immutable copy of a cart line at checkout price
type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Order снимок оформленной корзины
type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Code            string          `json:"code"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	ShippingName    string          `json:"shipping_name"`
	ShippingPhone   string          `json:"shipping_phone"`
	ShippingAddress string          `json:"shipping_address"`
	ShippingEmail   string          `json:"shipping_email,omitempty"`
	CouponID        *int64          `json:"coupon_id,omitempty"`
	CouponCode      *string         `json:"coupon_code,omitempty"`
	Status          OrderStatus     `json:"status"`
	Lines           []OrderLine     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Identity who is calling: a user, a guest session, or nobody
type Identity struct {
	UserID    *int64 `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

const RoleAdmin = "admin"

func (i Identity) Authenticated() bool { return i.UserID != nil }

func (i Identity) Anonymous() bool { return i.UserID == nil && i.SessionID == "" }

func (i Identity) IsAdmin() bool { return i.Authenticated() && i.Role == RoleAdmin }
