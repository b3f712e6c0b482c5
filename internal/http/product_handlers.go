package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/identity"
	"github.com/TranThienNhat/shop/internal/repository"
)

type productReq struct {
	Name      string               `json:"name"`
	Slug      string               `json:"slug"`
	Price     decimal.Decimal      `json:"price" swaggertype:"number"`
	SalePrice *decimal.Decimal     `json:"sale_price" swaggertype:"number"`
	StockQty  int64                `json:"stock_qty"`
	Status    domain.ProductStatus `json:"status"`
}

func (r productReq) product(id int64) domain.Product {
	return domain.Product{ID: id, Name: r.Name, Slug: r.Slug, Price: r.Price, SalePrice: r.SalePrice, StockQty: r.StockQty, Status: r.Status}
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body productReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 403 {object} errorBody
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	p, err := s.products.Create(c, req.product(0))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	get := s.products.GetVisible
	if identity.FromContext(c).IsAdmin() {
		get = s.products.GetProduct
	}
	p, err := get(c, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Param input body productReq true "Update"
// @Success 200 {object} domain.Product
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	p, err := s.products.Update(c, req.product(id))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name contains"
// @Param min_price query number false "Min price"
// @Param max_price query number false "Max price"
// @Param status query string false "in_stock, out_of_stock or hidden"
// @Success 200 {array} domain.Product
// @Failure 400 {object} errorBody
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	var f repository.ProductFilter
	f.NameSubstring = c.Query("q")
	for param, dst := range map[string]**decimal.Decimal{"min_price": &f.MinPrice, "max_price": &f.MaxPrice} {
		if v := c.Query(param); v != "" {
			x, err := decimal.NewFromString(v)
			if err != nil {
				s.badRequest(c, "invalid "+param)
				return
			}
			*dst = &x
		}
	}
	if v := c.Query("status"); v != "" {
		st := domain.ProductStatus(v)
		if !st.Valid() {
			s.badRequest(c, "invalid status")
			return
		}
		f.Status = &st
	}
	// admins see the whole catalog
	f.IncludeHidden = identity.FromContext(c).IsAdmin()
	list, err := s.products.List(c, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
