package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TranThienNhat/shop/internal/domain"
)

var (
	// ErrNotFound возвращается, когда сущность не найдена
	ErrNotFound = errors.New("not found")
	// ErrConflict нарушение уникальности или ссылочной целостности
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock условное списание остатка не затронуло ни одной строки
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUsageLimitReached у купона не осталось использований
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrInvalidQuantity движение остатка должно быть положительным
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	Status        *domain.ProductStatus
	IncludeHidden bool
}

// ProductRepository интерфейс репозитория товаров, включая счётчики остатков
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	// DecrementStock takes qty units only if stock_qty >= qty, otherwise ErrInsufficientStock.
	// Both stock calls reject qty <= 0 with ErrInvalidQuantity.
	DecrementStock(ctx context.Context, id, qty int64) error
	RestoreStock(ctx context.Context, id, qty int64) error
}

// CartLookup identifies a cart; UserID wins when both are set.
type CartLookup struct {
	UserID    *int64
	SessionID *string
}

// CartRepository интерфейс репозитория корзин и их строк
type CartRepository interface {
	Find(ctx context.Context, l CartLookup) (*domain.Cart, error)
	Create(ctx context.Context, c *domain.Cart) error
	Delete(ctx context.Context, cartID int64) error
	SetCoupon(ctx context.Context, cartID int64, code *string, discount decimal.Decimal) error
	// Lines returns cart items joined with products in insertion order.
	Lines(ctx context.Context, cartID int64) ([]domain.CartLine, error)
	GetItem(ctx context.Context, cartID, productID int64) (*domain.CartItem, error)
	// SetItemQuantity inserts the line or overwrites its quantity.
	SetItemQuantity(ctx context.Context, cartID, productID, qty int64) error
	DeleteItem(ctx context.Context, cartID, productID int64) error
	ClearItems(ctx context.Context, cartID int64) error
}

// CouponFilter пагинация списка купонов для администратора
type CouponFilter struct {
	Limit  int
	Offset int
}

// CouponRepository интерфейс репозитория купонов
type CouponRepository interface {
	Create(ctx context.Context, c *domain.Coupon) error
	GetByID(ctx context.Context, id int64) (*domain.Coupon, error)
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	Update(ctx context.Context, c *domain.Coupon) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f CouponFilter) ([]domain.Coupon, error)
	Count(ctx context.Context) (int64, error)
	// Available lists coupons usable now for the order value, highest value first.
	Available(ctx context.Context, orderValue decimal.Decimal, now time.Time) ([]domain.Coupon, error)
	// IncrementUsage bumps used_count unless the quantity limit is reached.
	IncrementUsage(ctx context.Context, id int64) error
	Referenced(ctx context.Context, id int64) (bool, error)
}

// OrderFilter параметры фильтрации списка заказов
type OrderFilter struct {
	UserID *int64
	Status *domain.OrderStatus
	Limit  int
	Offset int
}

// OrderRepository интерфейс репозитория заказов
type OrderRepository interface {
	// Create inserts the header and all lines, assigning ids and timestamps.
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// GetForUpdate is GetByID holding a row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error
}

// TxManager абстракция транзакции. fn получает ctx, к которому присоединяются репозитории.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
