package domain

import (
	"errors"
	"fmt"
)

// Kind groups failures by how callers should react to them.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindState      Kind = "state_error"
	KindAuth       Kind = "auth_error"
	KindSystem     Kind = "system_error"
)

// Reason is the stable machine-readable cause of a failure.
type Reason string

const (
	ReasonInvalidInput             Reason = "InvalidInput"
	ReasonInvalidQuantity          Reason = "InvalidQuantity"
	ReasonMissingSessionID         Reason = "MissingSessionID"
	ReasonProductNotFound          Reason = "ProductNotFound"
	ReasonProductUnavailable       Reason = "ProductUnavailable"
	ReasonOutOfStock               Reason = "OutOfStock"
	ReasonCartItemNotFound         Reason = "CartItemNotFound"
	ReasonCouponNotFound           Reason = "CouponNotFound"
	ReasonCouponInactive           Reason = "CouponInactive"
	ReasonCouponNotYetValid        Reason = "CouponNotYetValid"
	ReasonCouponExpired            Reason = "CouponExpired"
	ReasonCouponExhausted          Reason = "CouponExhausted"
	ReasonBelowMinimumOrder        Reason = "BelowMinimumOrder"
	ReasonDuplicateCouponCode      Reason = "DuplicateCouponCode"
	ReasonCouponInUse              Reason = "CouponInUse"
	ReasonUnauthenticated          Reason = "Unauthenticated"
	ReasonInvalidToken             Reason = "InvalidToken"
	ReasonForbidden                Reason = "Forbidden"
	ReasonIncompleteShippingInfo   Reason = "IncompleteShippingInfo"
	ReasonUnsupportedPaymentMethod Reason = "UnsupportedPaymentMethod"
	ReasonEmptyCart                Reason = "EmptyCart"
	ReasonOrderNotFound            Reason = "OrderNotFound"
	ReasonInvalidStatus            Reason = "InvalidStatus"
	ReasonTerminalOrderState       Reason = "TerminalOrderState"
	ReasonInvalidStatusTransition  Reason = "InvalidStatusTransition"
	ReasonStorage                  Reason = "StorageFailure"
)

// Error is a business or system failure with a display message.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Reason so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

func newErr(kind Kind, reason Reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: msg}
}

// Sentinels for errors.Is; use the constructors to attach detail.
var (
	ErrInvalidInput             = newErr(KindValidation, ReasonInvalidInput, "invalid input")
	ErrInvalidQuantity          = newErr(KindValidation, ReasonInvalidQuantity, "quantity must be greater than zero")
	ErrMissingSessionID         = newErr(KindValidation, ReasonMissingSessionID, "session id is required")
	ErrProductNotFound          = newErr(KindNotFound, ReasonProductNotFound, "product not found")
	ErrProductUnavailable       = newErr(KindState, ReasonProductUnavailable, "product is not available")
	ErrOutOfStock               = newErr(KindConflict, ReasonOutOfStock, "not enough stock")
	ErrCartItemNotFound         = newErr(KindNotFound, ReasonCartItemNotFound, "product is not in the cart")
	ErrCouponNotFound           = newErr(KindNotFound, ReasonCouponNotFound, "coupon does not exist")
	ErrCouponInactive           = newErr(KindState, ReasonCouponInactive, "coupon is not active")
	ErrCouponNotYetValid        = newErr(KindState, ReasonCouponNotYetValid, "coupon is not valid yet")
	ErrCouponExpired            = newErr(KindState, ReasonCouponExpired, "coupon has expired")
	ErrCouponExhausted          = newErr(KindState, ReasonCouponExhausted, "coupon has no uses left")
	ErrBelowMinimumOrder        = newErr(KindState, ReasonBelowMinimumOrder, "order value is below the coupon minimum")
	ErrDuplicateCouponCode      = newErr(KindConflict, ReasonDuplicateCouponCode, "coupon code already exists")
	ErrCouponInUse              = newErr(KindConflict, ReasonCouponInUse, "coupon is referenced by orders")
	ErrUnauthenticated          = newErr(KindAuth, ReasonUnauthenticated, "please sign in to continue")
	ErrInvalidToken             = newErr(KindAuth, ReasonInvalidToken, "token is invalid or expired")
	ErrForbidden                = newErr(KindAuth, ReasonForbidden, "you are not allowed to do this")
	ErrIncompleteShippingInfo   = newErr(KindValidation, ReasonIncompleteShippingInfo, "shipping name, phone and address are required")
	ErrUnsupportedPaymentMethod = newErr(KindValidation, ReasonUnsupportedPaymentMethod, "payment method is not supported")
	ErrEmptyCart                = newErr(KindValidation, ReasonEmptyCart, "cart is empty")
	ErrOrderNotFound            = newErr(KindNotFound, ReasonOrderNotFound, "order not found")
	ErrInvalidStatus            = newErr(KindValidation, ReasonInvalidStatus, "unknown order status")
	ErrTerminalOrderState       = newErr(KindState, ReasonTerminalOrderState, "order is already closed and cannot change status")
	ErrInvalidStatusTransition  = newErr(KindState, ReasonInvalidStatusTransition, "order status cannot change this way")
)

// Errorf copies a sentinel and replaces its message.
func Errorf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Reason: sentinel.Reason, Message: fmt.Sprintf(format, args...)}
}

// SystemError wraps a storage or transport failure.
func SystemError(op string, err error) *Error {
	return &Error{Kind: KindSystem, Reason: ReasonStorage, Message: op, Err: err}
}

// KindOf reports the kind of err; unknown errors are system errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

// ReasonOf reports the reason of err, empty for foreign errors.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
