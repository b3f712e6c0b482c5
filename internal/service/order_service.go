package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/repository"
)

// OrderService реализует логику заказов: оформление и смена статусов
type OrderService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	coupons  repository.CouponRepository
	carts    *CartService
	tx       repository.TxManager
	newCode  func() (string, error)
	log      *zap.Logger
}

func NewOrderService(products repository.ProductRepository, orders repository.OrderRepository,
	coupons repository.CouponRepository, carts *CartService, tx repository.TxManager, log *zap.Logger) *OrderService {
	return &OrderService{
		products: products,
		orders:   orders,
		coupons:  coupons,
		carts:    carts,
		tx:       tx,
		newCode:  NewOrderCode,
		log:      log,
	}
}

// checkoutInput validates shipping details and the payment method.
func checkoutInput(ship domain.ShippingInfo, method domain.PaymentMethod) (domain.ShippingInfo, domain.PaymentMethod, error) {
	ship.Name = strings.TrimSpace(ship.Name)
	ship.Phone = strings.TrimSpace(ship.Phone)
	ship.Address = strings.TrimSpace(ship.Address)
	ship.Email = strings.TrimSpace(ship.Email)
	if ship.Name == "" || ship.Phone == "" || ship.Address == "" {
		return ship, "", domain.ErrIncompleteShippingInfo
	}
	method = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	if method == "" {
		method = domain.PaymentCOD
	}
	if method != domain.PaymentCOD {
		return ship, "", domain.Errorf(domain.ErrUnsupportedPaymentMethod, "payment method %q is not supported", method)
	}
	return ship, method, nil
}

// PlaceOrder turns the caller's cart into an order. Order rows, stock,
// coupon usage and the cart reset commit together or not at all.
func (s *OrderService) PlaceOrder(ctx context.Context, id domain.Identity, ship domain.ShippingInfo, method domain.PaymentMethod) (*domain.Order, error) {
	if !id.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	ship, method, err := checkoutInput(ship, method)
	if err != nil {
		return nil, err
	}
	code, err := s.newCode()
	if err != nil {
		return nil, domain.SystemError("place order", err)
	}

	userOnly := domain.Identity{UserID: id.UserID}
	var created *domain.Order
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		// cart is read under the same transaction that empties it
		cart, err := s.carts.ResolveCart(ctx, userOnly)
		if err != nil {
			return err
		}
		if cart == nil {
			return domain.ErrEmptyCart
		}
		snap, err := s.carts.price(ctx, cart)
		if err != nil {
			return err
		}
		if len(snap.Pricing.Items) == 0 {
			return domain.ErrEmptyCart
		}
		if snap.CouponErr != nil {
			return snap.CouponErr
		}

		o := domain.Order{
			UserID:          *id.UserID,
			Code:            code,
			Subtotal:        snap.Pricing.Subtotal,
			DiscountAmount:  snap.Pricing.Discount,
			Total:           snap.Pricing.Total,
			PaymentMethod:   method,
			ShippingName:    ship.Name,
			ShippingPhone:   ship.Phone,
			ShippingAddress: ship.Address,
			ShippingEmail:   ship.Email,
			Status:          domain.OrderStatusPending,
			Lines:           make([]domain.OrderLine, 0, len(snap.Pricing.Items)),
		}
		if snap.Coupon != nil {
			cid, ccode := snap.Coupon.ID, snap.Coupon.Code
			o.CouponID, o.CouponCode = &cid, &ccode
		}
		for _, it := range snap.Pricing.Items {
			if it.Status == domain.ProductOutOfStock {
				return domain.Errorf(domain.ErrOutOfStock, "product %q is out of stock", it.Name)
			}
			o.Lines = append(o.Lines, domain.OrderLine{
				ProductID:   it.ProductID,
				ProductName: it.Name,
				Price:       it.UnitPrice,
				Quantity:    it.Quantity,
				TotalPrice:  it.LineTotal,
			})
		}
		if err := s.orders.Create(ctx, &o); err != nil {
			return err
		}

		// cart order, checked and decremented in one step per line
		for _, l := range o.Lines {
			if err := s.products.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				switch {
				case errors.Is(err, repository.ErrInsufficientStock):
					return domain.Errorf(domain.ErrOutOfStock, "not enough stock for %q", l.ProductName)
				case errors.Is(err, repository.ErrNotFound):
					return domain.ErrProductNotFound
				}
				return err
			}
		}
		if o.CouponID != nil {
			if err := s.coupons.IncrementUsage(ctx, *o.CouponID); err != nil {
				switch {
				case errors.Is(err, repository.ErrUsageLimitReached):
					return domain.ErrCouponExhausted
				case errors.Is(err, repository.ErrNotFound):
					return domain.ErrCouponNotFound
				}
				return err
			}
		}
		if err := s.carts.reset(ctx, cart.ID); err != nil {
			return err
		}
		created = &o
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindSystem {
			s.log.Error("checkout failed", zap.Int64("user_id", *id.UserID), zap.Error(err))
		}
		return nil, wrapErr("place order", err)
	}
	s.log.Info("order placed",
		zap.Int64("order_id", created.ID),
		zap.String("code", created.Code),
		zap.Int64("user_id", created.UserID),
		zap.String("total", created.Total.String()))
	return created, nil
}

// UpdateStatus moves an order along the state machine. Cancelling puts the
// ordered quantities back on the shelf in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	status = domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidStatus, "unknown order status %q", status)
	}
	var updated *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrOrderNotFound
			}
			return err
		}
		if o.Status.Terminal() {
			return domain.Errorf(domain.ErrTerminalOrderState, "order %s is %s and cannot change status", o.Code, o.Status)
		}
		if !o.Status.CanTransitionTo(status) {
			return domain.Errorf(domain.ErrInvalidStatusTransition, "order %s cannot move from %s to %s", o.Code, o.Status, status)
		}
		if status == domain.OrderStatusCancelled {
			for _, l := range o.Lines {
				if err := s.products.RestoreStock(ctx, l.ProductID, l.Quantity); err != nil {
					return err
				}
			}
		}
		if err := s.orders.UpdateStatus(ctx, o.ID, status); err != nil {
			return err
		}
		o.Status = status
		updated = o
		return nil
	})
	if err != nil {
		return nil, wrapErr("update order status", err)
	}
	s.log.Info("order status updated", zap.Int64("order_id", updated.ID), zap.String("status", string(status)))
	return updated, nil
}

// ListForUser the caller's own orders, newest first.
func (s *OrderService) ListForUser(ctx context.Context, id domain.Identity) ([]domain.Order, error) {
	if !id.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	uid := *id.UserID
	list, err := s.orders.List(ctx, repository.OrderFilter{UserID: &uid})
	if err != nil {
		return nil, domain.SystemError("list orders", err)
	}
	return list, nil
}

// OrderQuery параметры списка заказов для администратора
type OrderQuery struct {
	Status string
	Limit  int
	Offset int
}

func (s *OrderService) ListAll(ctx context.Context, q OrderQuery) ([]domain.Order, error) {
	f := repository.OrderFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		st := domain.OrderStatus(strings.ToLower(q.Status))
		if !st.Valid() {
			return nil, domain.Errorf(domain.ErrInvalidStatus, "unknown order status %q", q.Status)
		}
		f.Status = &st
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, "limit and offset cannot be negative")
	}
	list, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, domain.SystemError("list orders", err)
	}
	return list, nil
}

// Get возвращает заказ владельцу или администратору
func (s *OrderService) Get(ctx context.Context, id domain.Identity, orderID int64) (*domain.Order, error) {
	if !id.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.SystemError("load order", err)
	}
	if o.UserID != *id.UserID && !id.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return o, nil
}

