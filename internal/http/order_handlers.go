package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TranThienNhat/shop/internal/domain"
	"github.com/TranThienNhat/shop/internal/identity"
	"github.com/TranThienNhat/shop/internal/service"
)

type checkoutReq struct {
	ShippingInfo  domain.ShippingInfo  `json:"shipping_info"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

type checkoutResp struct {
	ID    int64         `json:"id"`
	Code  string        `json:"code"`
	Order *domain.Order `json:"order"`
}

type updateStatusReq struct {
	Status domain.OrderStatus `json:"status"`
}

// @Summary Place an order from the cart
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body checkoutReq true "Shipping and payment"
// @Success 201 {object} checkoutResp
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /orders/checkout [post]
func (s *Server) checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	o, err := s.orders.PlaceOrder(c, identity.FromContext(c), req.ShippingInfo, req.PaymentMethod)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, checkoutResp{ID: o.ID, Code: o.Code, Order: o})
}

// @Summary Orders of the signed-in user
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.Order
// @Failure 401 {object} errorBody
// @Router /orders/my-orders [get]
func (s *Server) myOrders(c *gin.Context) {
	list, err := s.orders.ListForUser(c, identity.FromContext(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary All orders
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} domain.Order
// @Failure 400 {object} errorBody
// @Failure 403 {object} errorBody
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	q := service.OrderQuery{Status: c.Query("status")}
	var err error
	if q.Limit, err = queryInt(c, "limit", 0); err != nil {
		s.badRequest(c, "invalid limit")
		return
	}
	if q.Offset, err = queryInt(c, "offset", 0); err != nil {
		s.badRequest(c, "invalid offset")
		return
	}
	list, err := s.orders.ListAll(c, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path int true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 401 {object} errorBody
// @Failure 403 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	o, err := s.orders.Get(c, identity.FromContext(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Move an order to a new status
// @Description Cancelling restores stock.
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Order ID"
// @Param input body updateStatusReq true "Status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /orders/{id} [put]
func (s *Server) updateOrderStatus(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	o, err := s.orders.UpdateStatus(c, id, req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
