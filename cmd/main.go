package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/TranThienNhat/shop/internal/config"
	httpapi "github.com/TranThienNhat/shop/internal/http"
	"github.com/TranThienNhat/shop/internal/identity"
	"github.com/TranThienNhat/shop/internal/logging"
	"github.com/TranThienNhat/shop/internal/repository"
	"github.com/TranThienNhat/shop/internal/service"

	_ "github.com/TranThienNhat/shop/docs"
)

// @title Shop API
// @version 1.0
// @description Storefront cart, coupon and order service.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	issue := flag.Bool("issue-token", false, "print a signed access token and exit")
	userID := flag.Int64("user-id", 1, "user id for -issue-token")
	email := flag.String("email", "", "email for -issue-token")
	role := flag.String("role", "customer", "role for -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issue {
		tok, err := identity.NewIssuer(cfg.JWTSecret).Issue(*userID, *email, *role, cfg.JWTTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

// storage is the set of repositories the services run on.
type storage struct {
	products repository.ProductRepository
	carts    repository.CartRepository
	coupons  repository.CouponRepository
	orders   repository.OrderRepository
	tx       repository.TxManager
	ping     func(ctx context.Context) error
	close    func()
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		store := repository.NewMemoryStore()
		return &storage{
			products: store,
			carts:    repository.NewMemoryCarts(store),
			coupons:  repository.NewMemoryCoupons(store),
			orders:   repository.NewMemoryOrders(store),
			tx:       repository.NewMemoryTx(store),
			close:    func() {},
		}, nil
	}

	pool, err := repository.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("connected to postgres", zap.Int32("max_conns", pool.Config().MaxConns))
	return &storage{
		products: store,
		carts:    repository.NewPostgresCarts(store),
		coupons:  repository.NewPostgresCoupons(store),
		orders:   repository.NewPostgresOrders(store),
		tx:       repository.NewPostgresTx(pool),
		ping:     store.Ping,
		close:    pool.Close,
	}, nil
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.InsecureSecret() {
		log.Warn("JWT_SECRET not set, using the development secret", zap.String("app_env", cfg.Env))
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	productsSvc := service.NewProductService(st.products, log)
	cartsSvc := service.NewCartService(st.carts, st.coupons, productsSvc, st.tx, log)
	couponsSvc := service.NewCouponService(st.coupons, cartsSvc, log)
	ordersSvc := service.NewOrderService(st.products, st.orders, st.coupons, cartsSvc, st.tx, log)

	srv := httpapi.NewServer(httpapi.Services{
		Products: productsSvc,
		Carts:    cartsSvc,
		Coupons:  couponsSvc,
		Orders:   ordersSvc,
	}, identity.NewResolver(cfg.JWTSecret), log, httpapi.Options{
		CORSOrigins: cfg.CORSOrigins,
		Ping:        st.ping,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Engine(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
