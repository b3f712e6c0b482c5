package service

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/repository"
)

// CatalogReader is what the cart needs from the catalog.
type CatalogReader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// ProductService операции каталога товаров
type ProductService struct {
	repo repository.ProductRepository
	log  *zap.Logger
}

var _ CatalogReader = (*ProductService)(nil)

func NewProductService(repo repository.ProductRepository, log *zap.Logger) *ProductService {
	return &ProductService{repo: repo, log: log}
}

func validateProduct(p *domain.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Errorf(domain.ErrInvalidInput, "product name is required")
	}
	if p.Slug == "" {
		p.Slug = slugify(p.Name)
	}
	if p.Price.IsNegative() {
		return domain.Errorf(domain.ErrInvalidInput, "price cannot be negative")
	}
	if p.SalePrice != nil && p.SalePrice.IsNegative() {
		return domain.Errorf(domain.ErrInvalidInput, "sale price cannot be negative")
	}
	if p.StockQty < 0 {
		return domain.Errorf(domain.ErrInvalidInput, "stock cannot be negative")
	}
	if p.Status == "" {
		p.Status = domain.ProductInStock
	}
	if !p.Status.Valid() {
		return domain.Errorf(domain.ErrInvalidInput, "status must be in_stock, out_of_stock or hidden")
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	cp := p
	if err := validateProduct(&cp); err != nil {
		return nil, err
	}
	cp.SoldQty = 0
	if err := s.repo.Create(ctx, &cp); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Errorf(domain.ErrInvalidInput, "slug %q is already taken", cp.Slug)
		}
		return nil, domain.SystemError("create product", err)
	}
	s.log.Info("product created", zap.Int64("product_id", cp.ID), zap.String("slug", cp.Slug))
	return &cp, nil
}

// GetProduct returns any product, hidden ones included; callers decide visibility.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, domain.ErrProductNotFound
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, domain.SystemError("load product", err)
	}
	return p, nil
}

// GetVisible hides hidden products from shoppers.
func (s *ProductService) GetVisible(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.ProductHidden {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *ProductService) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID <= 0 {
		return nil, domain.ErrProductNotFound
	}
	cp := p
	if err := validateProduct(&cp); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &cp); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, domain.ErrProductNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, domain.Errorf(domain.ErrInvalidInput, "slug %q is already taken", cp.Slug)
		}
		return nil, domain.SystemError("update product", err)
	}
	return &cp, nil
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, domain.Errorf(domain.ErrInvalidInput, "min price is greater than max price")
	}
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, domain.SystemError("list products", err)
	}
	return list, nil
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
