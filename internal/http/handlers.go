package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/identity"
	"github.com/TranThienNhat/shop/internal/logging"
	"github.com/TranThienNhat/shop/internal/service"
)

// Services everything the API delegates to
type Services struct {
	Products *service.ProductService
	Carts    *service.CartService
	Coupons  *service.CouponService
	Orders   *service.OrderService
}

// Options transport settings
type Options struct {
	CORSOrigins []string
	// Ping reports storage health for /healthz; nil means always healthy.
	Ping func(ctx context.Context) error
}

type Server struct {
	engine   *gin.Engine
	products *service.ProductService
	carts    *service.CartService
	coupons  *service.CouponService
	orders   *service.OrderService
	resolver *identity.Resolver
	ping     func(ctx context.Context) error
	log      *zap.Logger
}

func NewServer(svc Services, resolver *identity.Resolver, log *zap.Logger, opts Options) *Server {
	r := gin.New()
	// handlers pass *gin.Context down as the request context
	r.ContextWithFallback = true
	r.Use(logging.Requests(log), gin.Recovery(), cors.New(corsConfig(opts.CORSOrigins)))
	s := &Server{
		engine:   r,
		products: svc.Products,
		carts:    svc.Carts,
		coupons:  svc.Coupons,
		orders:   svc.Orders,
		resolver: resolver,
		ping:     opts.Ping,
		log:      log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", identity.SessionHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/healthz", s.health)

	user := identity.RequireUser(s.fail)
	admin := identity.RequireAdmin(s.fail)

	v1 := s.engine.Group("/api/v1", identity.Middleware(s.resolver, s.fail))
	{
		products := v1.Group("/products")
		products.GET("", s.listProducts)
		products.GET(":id", s.getProduct)
		products.POST("", admin, s.createProduct)
		products.PUT(":id", admin, s.updateProduct)

		cart := v1.Group("/cart")
		cart.POST("/session", s.newSession)
		cart.GET("", s.getCart)
		cart.POST("/add", s.addItem)
		cart.PUT("/:productId", s.updateItem)
		cart.DELETE("/clear", s.clearCart)
		cart.DELETE("/coupon", s.removeCoupon)
		cart.DELETE("/:productId", s.removeItem)
		cart.POST("/merge", user, s.mergeCart)
		cart.POST("/coupon/apply", s.applyCoupon)

		coupons := v1.Group("/coupons")
		coupons.POST("/validate", s.validateCoupon)
		coupons.GET("/available", s.availableCoupons)
		coupons.POST("", admin, s.createCoupon)
		coupons.GET("", admin, s.listCoupons)
		coupons.GET(":id", admin, s.getCoupon)
		coupons.PUT(":id", admin, s.updateCoupon)
		coupons.DELETE(":id", admin, s.deleteCoupon)

		orders := v1.Group("/orders", user)
		orders.POST("/checkout", s.checkout)
		orders.GET("/my-orders", s.myOrders)
		orders.GET("", admin, s.listOrders)
		orders.GET(":id", s.getOrder)
		orders.PUT(":id", admin, s.updateOrderStatus)
	}
}

// errorBody is the shape of every failure response.
type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// fail writes err and aborts the handler chain.
func (s *Server) fail(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.SystemError("unexpected failure", err)
	}
	status := mapErrorToStatus(de)
	msg := de.Message
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "something went wrong, please try again"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: string(de.Kind), Reason: string(de.Reason), Message: msg})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	s.fail(c, domain.Errorf(domain.ErrInvalidInput, "%s", msg))
}

func mapErrorToStatus(e *domain.Error) int {
	switch e.Kind {
	case domain.KindValidation, domain.KindState:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindAuth:
		if e.Reason == domain.ReasonForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// pathID reads a positive integer path parameter, writing a 400 when it is not one.
func (s *Server) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		s.badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// health lives outside /api/v1 so probes skip identity resolution.
func (s *Server) health(c *gin.Context) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
