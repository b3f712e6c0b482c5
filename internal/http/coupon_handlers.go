package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/identity"
)

type applyCouponReq struct {
	CouponCode string `json:"couponCode"`
}

type validateCouponReq struct {
	Code       string          `json:"code"`
	OrderValue decimal.Decimal `json:"orderValue" swaggertype:"number"`
}

type couponReq struct {
	Code             string              `json:"code"`
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	Type             domain.DiscountType `json:"type"`
	Value            decimal.Decimal     `json:"value" swaggertype:"number"`
	MinOrderValue    *decimal.Decimal    `json:"min_order_value" swaggertype:"number"`
	MaxDiscountValue *decimal.Decimal    `json:"max_discount_value" swaggertype:"number"`
	Quantity         *int64              `json:"quantity"`
	StartDate        *time.Time          `json:"start_date"`
	EndDate          *time.Time          `json:"end_date"`
	Status           domain.CouponStatus `json:"status"`
}

func (r couponReq) coupon(id int64) domain.Coupon {
	return domain.Coupon{
		ID:               id,
		Code:             r.Code,
		Name:             r.Name,
		Description:      r.Description,
		Type:             r.Type,
		Value:            r.Value,
		MinOrderValue:    r.MinOrderValue,
		MaxDiscountValue: r.MaxDiscountValue,
		Quantity:         r.Quantity,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		Status:           r.Status,
	}
}

// @Summary Apply a coupon to the cart
// @Tags cart
// @Accept json
// @Produce json
// @Param X-Session-ID header string false "Guest session"
// @Param input body applyCouponReq true "Coupon"
// @Success 200 {object} service.Validation
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /cart/coupon/apply [post]
func (s *Server) applyCoupon(c *gin.Context) {
	var req applyCouponReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	v, err := s.coupons.Apply(c, identity.FromContext(c), req.CouponCode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary Remove the coupon from the cart
// @Tags cart
// @Produce json
// @Param X-Session-ID header string false "Guest session"
// @Success 200 {object} domain.Pricing
// @Router /cart/coupon [delete]
func (s *Server) removeCoupon(c *gin.Context) {
	if err := s.coupons.Remove(c, identity.FromContext(c)); err != nil {
		s.fail(c, err)
		return
	}
	s.getCart(c)
}

// @Summary Check a coupon against an order value
// @Tags coupons
// @Accept json
// @Produce json
// @Param input body validateCouponReq true "Code and order value"
// @Success 200 {object} service.Validation
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /coupons/validate [post]
func (s *Server) validateCoupon(c *gin.Context) {
	var req validateCouponReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	v, err := s.coupons.Validate(c, req.Code, req.OrderValue)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary Coupons usable for an order value
// @Tags coupons
// @Produce json
// @Param orderValue query number false "Order value"
// @Success 200 {array} domain.Coupon
// @Failure 400 {object} errorBody
// @Router /coupons/available [get]
func (s *Server) availableCoupons(c *gin.Context) {
	value := decimal.Zero
	if v := c.Query("orderValue"); v != "" {
		x, err := decimal.NewFromString(v)
		if err != nil {
			s.badRequest(c, "invalid orderValue")
			return
		}
		value = x
	}
	list, err := s.coupons.Available(c, value)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Create coupon
// @Tags coupons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body couponReq true "Coupon"
// @Success 201 {object} domain.Coupon
// @Failure 400 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /coupons [post]
func (s *Server) createCoupon(c *gin.Context) {
	var req couponReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	cp, err := s.coupons.Create(c, req.coupon(0))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

// @Summary List coupons
// @Tags coupons
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page, from 1"
// @Param limit query int false "Page size"
// @Success 200 {object} service.CouponPage
// @Failure 400 {object} errorBody
// @Router /coupons [get]
func (s *Server) listCoupons(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		s.badRequest(c, "invalid page")
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.badRequest(c, "invalid limit")
		return
	}
	res, err := s.coupons.List(c, page, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Get coupon by id
// @Tags coupons
// @Produce json
// @Security BearerAuth
// @Param id path int true "Coupon ID"
// @Success 200 {object} domain.Coupon
// @Failure 404 {object} errorBody
// @Router /coupons/{id} [get]
func (s *Server) getCoupon(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	cp, err := s.coupons.Get(c, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// @Summary Update coupon
// @Tags coupons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Coupon ID"
// @Param input body couponReq true "Coupon"
// @Success 200 {object} domain.Coupon
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /coupons/{id} [put]
func (s *Server) updateCoupon(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req couponReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	cp, err := s.coupons.Update(c, req.coupon(id))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// @Summary Delete coupon
// @Tags coupons
// @Security BearerAuth
// @Param id path int true "Coupon ID"
// @Success 204
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /coupons/{id} [delete]
func (s *Server) deleteCoupon(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.coupons.Delete(c, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
