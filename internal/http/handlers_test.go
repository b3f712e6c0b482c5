package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/identity"
	"github.com/TranThienNhat/shop/internal/repository"
	"github.com/TranThienNhat/shop/internal/service"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	carts := repository.NewMemoryCarts(store)
	coupons := repository.NewMemoryCoupons(store)
	orders := repository.NewMemoryOrders(store)
	tx := repository.NewMemoryTx(store)

	productsSvc := service.NewProductService(store, log)
	cartsSvc := service.NewCartService(carts, coupons, productsSvc, tx, log)
	svc := Services{
		Products: productsSvc,
		Carts:    cartsSvc,
		Coupons:  service.NewCouponService(coupons, cartsSvc, log),
		Orders:   service.NewOrderService(store, orders, coupons, cartsSvc, tx, log),
	}
	return NewServer(svc, identity.NewResolver(testSecret), log, opts)
}

func setupServer(t *testing.T) *Server {
	return newTestServer(t, Options{})
}

func bearer(t *testing.T, userID int64, role string) map[string]string {
	t.Helper()
	tok, err := identity.NewIssuer(testSecret).Issue(userID, "", role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func session(id string) map[string]string {
	return map[string]string{identity.SessionHeader: id}
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers ...map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, reason domain.Reason) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	body := decode[errorBody](t, w)
	if body.Reason != string(reason) {
		t.Fatalf("expected reason %s, got %+v", reason, body)
	}
	if body.Error == "" || body.Message == "" {
		t.Fatalf("incomplete error body %+v", body)
	}
}

func createProduct(t *testing.T, s *Server, name string, price, stock int64) domain.Product {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/products", map[string]any{
		"name": name, "price": price, "stock_qty": stock,
	}, bearer(t, 99, domain.RoleAdmin))
	if w.Code != http.StatusCreated {
		t.Fatalf("create product %v: %s", w.Code, w.Body.String())
	}
	return decode[domain.Product](t, w)
}

func TestProductFlow(t *testing.T) {
	s := setupServer(t)
	admin := bearer(t, 99, domain.RoleAdmin)

	p := createProduct(t, s, "Desk Lamp", 120_000, 5)
	if p.Slug != "desk-lamp" {
		t.Fatalf("slug %q", p.Slug)
	}
	// get
	w := doJSON(t, s, http.MethodGet, "/api/v1/products/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get code %v", w.Code)
	}
	// update
	w = doJSON(t, s, http.MethodPut, "/api/v1/products/1", map[string]any{
		"name": "Desk Lamp XL", "price": 150_000, "sale_price": 99_000, "stock_qty": 7,
	}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("update code %v: %s", w.Code, w.Body.String())
	}
	// list
	w = doJSON(t, s, http.MethodGet, "/api/v1/products?q=lamp&min_price=100000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list code %v", w.Code)
	}
	if list := decode[[]domain.Product](t, w); len(list) != 1 {
		t.Fatalf("list %+v", list)
	}

	// hidden products disappear for shoppers only
	w = doJSON(t, s, http.MethodPut, "/api/v1/products/1", map[string]any{
		"name": "Desk Lamp XL", "price": 150_000, "stock_qty": 7, "status": "hidden",
	}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("hide code %v", w.Code)
	}
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/products/1", nil), http.StatusNotFound, domain.ReasonProductNotFound)
	if w = doJSON(t, s, http.MethodGet, "/api/v1/products/1", nil, admin); w.Code != http.StatusOK {
		t.Fatalf("admin get hidden %v", w.Code)
	}
}

func TestHTTP_BadRequests(t *testing.T) {
	s := setupServer(t)
	admin := bearer(t, 99, domain.RoleAdmin)

	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/products", map[string]any{"name": ""}, admin),
		http.StatusBadRequest, domain.ReasonInvalidInput)
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/products/abc", nil), http.StatusBadRequest, domain.ReasonInvalidInput)
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/products?min_price=cheap", nil), http.StatusBadRequest, domain.ReasonInvalidInput)
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/coupons/available?orderValue=x", nil), http.StatusBadRequest, domain.ReasonInvalidInput)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/add", bytes.NewBufferString("{"))
	req.Header.Set(identity.SessionHeader, "s1")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, domain.ReasonInvalidInput)
}

func TestHTTP_Auth(t *testing.T) {
	s := setupServer(t)
	customer := bearer(t, 1, "customer")

	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/products", map[string]any{"name": "X", "price": 1}),
		http.StatusUnauthorized, domain.ReasonUnauthenticated)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/products", map[string]any{"name": "X", "price": 1}, customer),
		http.StatusForbidden, domain.ReasonForbidden)
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/orders/my-orders", nil), http.StatusUnauthorized, domain.ReasonUnauthenticated)
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/orders", nil, customer), http.StatusForbidden, domain.ReasonForbidden)
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/cart", nil, map[string]string{"Authorization": "Bearer nope"}),
		http.StatusUnauthorized, domain.ReasonInvalidToken)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/merge", nil, session("s1")),
		http.StatusUnauthorized, domain.ReasonUnauthenticated)
}

func TestCartFlow(t *testing.T) {
	s := setupServer(t)
	createProduct(t, s, "Mug", 100_000, 3)

	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/session", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("session %v", w.Code)
	}
	guest := session(decode[sessionResp](t, w).SessionID)

	// no cart yet
	w = doJSON(t, s, http.MethodGet, "/api/v1/cart", nil, guest)
	if w.Code != http.StatusOK || len(decode[domain.Pricing](t, w).Items) != 0 {
		t.Fatalf("empty cart %v %s", w.Code, w.Body.String())
	}

	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 1, "quantity": 1}),
		http.StatusBadRequest, domain.ReasonMissingSessionID)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 1, "quantity": 0}, guest),
		http.StatusBadRequest, domain.ReasonInvalidQuantity)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 42, "quantity": 1}, guest),
		http.StatusNotFound, domain.ReasonProductNotFound)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 1, "quantity": 4}, guest),
		http.StatusConflict, domain.ReasonOutOfStock)

	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 1, "quantity": 2}, guest)
	if w.Code != http.StatusOK {
		t.Fatalf("add %v: %s", w.Code, w.Body.String())
	}
	pricing := decode[domain.Pricing](t, w)
	if !pricing.Total.Equal(decimal.NewFromInt(200_000)) {
		t.Fatalf("total %s", pricing.Total)
	}
	// quantities near the int64 limit cannot wrap past the stock check
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 1, "quantity": int64(math.MaxInt64)}, guest),
		http.StatusConflict, domain.ReasonOutOfStock)

	w = doJSON(t, s, http.MethodPut, "/api/v1/cart/1", map[string]any{"quantity": 3}, guest)
	if w.Code != http.StatusOK || decode[domain.Pricing](t, w).Items[0].Quantity != 3 {
		t.Fatalf("update %v: %s", w.Code, w.Body.String())
	}
	expectError(t, doJSON(t, s, http.MethodPut, "/api/v1/cart/2", map[string]any{"quantity": 1}, guest),
		http.StatusNotFound, domain.ReasonCartItemNotFound)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/1", nil, guest)
	if w.Code != http.StatusOK || len(decode[domain.Pricing](t, w).Items) != 0 {
		t.Fatalf("remove %v: %s", w.Code, w.Body.String())
	}
	// removing again is a no-op
	if w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/1", nil, guest); w.Code != http.StatusOK {
		t.Fatalf("remove twice %v", w.Code)
	}
	if w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/clear", nil, guest); w.Code != http.StatusOK {
		t.Fatalf("clear %v", w.Code)
	}
}

func TestCouponFlow(t *testing.T) {
	s := setupServer(t)
	admin := bearer(t, 99, domain.RoleAdmin)
	guest := session("s1")
	createProduct(t, s, "Lamp", 100_000, 10)

	w := doJSON(t, s, http.MethodPost, "/api/v1/coupons", map[string]any{
		"code": "save50k", "type": "fixed_amount", "value": 50_000, "min_order_value": 100_000,
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create coupon %v: %s", w.Code, w.Body.String())
	}
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/coupons", map[string]any{
		"code": "SAVE50K", "type": "fixed_amount", "value": 1,
	}, admin), http.StatusConflict, domain.ReasonDuplicateCouponCode)

	w = doJSON(t, s, http.MethodPost, "/api/v1/coupons/validate", map[string]any{"code": "SAVE50K", "orderValue": 200_000})
	if w.Code != http.StatusOK {
		t.Fatalf("validate %v: %s", w.Code, w.Body.String())
	}
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/coupons/validate", map[string]any{"code": "SAVE50K", "orderValue": 10}),
		http.StatusBadRequest, domain.ReasonBelowMinimumOrder)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/coupons/validate", map[string]any{"code": "NOPE", "orderValue": 10}),
		http.StatusNotFound, domain.ReasonCouponNotFound)

	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/coupon/apply", map[string]any{"couponCode": "SAVE50K"}, guest),
		http.StatusBadRequest, domain.ReasonEmptyCart)
	doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 1, "quantity": 2}, guest)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/cart/coupon/apply", map[string]any{"couponCode": "NOPE"}, guest),
		http.StatusBadRequest, domain.ReasonCouponNotFound)
	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/coupon/apply", map[string]any{"couponCode": "save50k"}, guest)
	if w.Code != http.StatusOK {
		t.Fatalf("apply %v: %s", w.Code, w.Body.String())
	}
	if v := decode[service.Validation](t, w); !v.Discount.Equal(decimal.NewFromInt(50_000)) || v.Message == "" {
		t.Fatalf("apply body %+v", v)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/coupons/available?orderValue=200000", nil)
	if list := decode[[]domain.Coupon](t, w); len(list) != 1 {
		t.Fatalf("available %+v", list)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/coupon", nil, guest)
	if w.Code != http.StatusOK || decode[domain.Pricing](t, w).CouponCode != nil {
		t.Fatalf("remove coupon %v: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/coupons?page=1&limit=5", nil, admin)
	if page := decode[service.CouponPage](t, w); page.Total != 1 {
		t.Fatalf("page %+v", page)
	}
	w = doJSON(t, s, http.MethodPut, "/api/v1/coupons/1", map[string]any{"code": "SAVE50K", "type": "fixed_amount", "value": 40_000}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("update coupon %v: %s", w.Code, w.Body.String())
	}
	if w = doJSON(t, s, http.MethodDelete, "/api/v1/coupons/1", nil, admin); w.Code != http.StatusNoContent {
		t.Fatalf("delete coupon %v", w.Code)
	}
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/coupons/1", nil, admin), http.StatusNotFound, domain.ReasonCouponNotFound)
}

func TestOrderFlow(t *testing.T) {
	s := setupServer(t)
	admin := bearer(t, 99, domain.RoleAdmin)
	createProduct(t, s, "Mug", 100_000, 5)
	w := doJSON(t, s, http.MethodPost, "/api/v1/coupons", map[string]any{
		"code": "P10", "type": "percentage", "value": 10,
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create coupon %v", w.Code)
	}

	// shop as a guest, then sign in and merge
	guest := session("s1")
	doJSON(t, s, http.MethodPost, "/api/v1/cart/add", map[string]any{"productId": 1, "quantity": 2}, guest)
	doJSON(t, s, http.MethodPost, "/api/v1/cart/coupon/apply", map[string]any{"couponCode": "P10"}, guest)
	customer := bearer(t, 1, "customer")
	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/merge", nil, customer, guest)
	if w.Code != http.StatusOK {
		t.Fatalf("merge %v: %s", w.Code, w.Body.String())
	}
	if p := decode[domain.Pricing](t, w); !p.Total.Equal(decimal.NewFromInt(180_000)) {
		t.Fatalf("merged total %s", p.Total)
	}

	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/orders/checkout", map[string]any{
		"shipping_info": map[string]any{"name": "An", "phone": "", "address": "1 Street"},
	}, customer), http.StatusBadRequest, domain.ReasonIncompleteShippingInfo)
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/orders/checkout", map[string]any{
		"shipping_info":  map[string]any{"name": "An", "phone": "0900", "address": "1 Street"},
		"payment_method": "card",
	}, customer), http.StatusBadRequest, domain.ReasonUnsupportedPaymentMethod)

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/checkout", map[string]any{
		"shipping_info":  map[string]any{"name": "An", "phone": "0900", "address": "1 Street"},
		"payment_method": "cod",
	}, customer)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout %v: %s", w.Code, w.Body.String())
	}
	placed := decode[checkoutResp](t, w)
	if placed.ID != 1 || placed.Code == "" || !placed.Order.Total.Equal(decimal.NewFromInt(180_000)) {
		t.Fatalf("checkout body %+v", placed)
	}

	// the cart is gone, so a second checkout fails
	expectError(t, doJSON(t, s, http.MethodPost, "/api/v1/orders/checkout", map[string]any{
		"shipping_info": map[string]any{"name": "An", "phone": "0900", "address": "1 Street"},
	}, customer), http.StatusBadRequest, domain.ReasonEmptyCart)

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/my-orders", nil, customer)
	if list := decode[[]domain.Order](t, w); len(list) != 1 {
		t.Fatalf("my orders %+v", list)
	}
	if w = doJSON(t, s, http.MethodGet, "/api/v1/orders/1", nil, customer); w.Code != http.StatusOK {
		t.Fatalf("get order %v", w.Code)
	}
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/orders/1", nil, bearer(t, 2, "customer")),
		http.StatusForbidden, domain.ReasonForbidden)
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/orders/404", nil, admin), http.StatusNotFound, domain.ReasonOrderNotFound)

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders?status=pending", nil, admin)
	if list := decode[[]domain.Order](t, w); len(list) != 1 {
		t.Fatalf("admin list %+v", list)
	}
	expectError(t, doJSON(t, s, http.MethodGet, "/api/v1/orders?status=lost", nil, admin), http.StatusBadRequest, domain.ReasonInvalidStatus)

	// cancel, then cancelling again hits a terminal state
	w = doJSON(t, s, http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "cancelled"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel %v: %s", w.Code, w.Body.String())
	}
	expectError(t, doJSON(t, s, http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "cancelled"}, admin),
		http.StatusBadRequest, domain.ReasonTerminalOrderState)
	expectError(t, doJSON(t, s, http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "lost"}, admin),
		http.StatusBadRequest, domain.ReasonInvalidStatus)

	w = doJSON(t, s, http.MethodGet, "/api/v1/products/1", nil)
	if p := decode[domain.Product](t, w); p.StockQty != 5 || p.SoldQty != 0 {
		t.Fatalf("stock after cancel %+v", p)
	}
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	if w := doJSON(t, s, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("health %v", w.Code)
	}

	down := newTestServer(t, Options{Ping: func(context.Context) error { return errors.New("db down") }})
	if w := doJSON(t, down, http.MethodGet, "/healthz", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health %v", w.Code)
	}
}

func TestMapErrorToStatus(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidQuantity:      http.StatusBadRequest,
		domain.ErrCouponExpired:        http.StatusBadRequest,
		domain.ErrOrderNotFound:        http.StatusNotFound,
		domain.ErrOutOfStock:           http.StatusConflict,
		domain.ErrUnauthenticated:      http.StatusUnauthorized,
		domain.ErrForbidden:            http.StatusForbidden,
		domain.SystemError("x", nil):   http.StatusInternalServerError,
	}
	for err, want := range cases {
		var de *domain.Error
		if !errors.As(err, &de) {
			t.Fatalf("%v is not a domain error", err)
		}
		if got := mapErrorToStatus(de); got != want {
			t.Errorf("%v: got %d want %d", err, got, want)
		}
	}
}
