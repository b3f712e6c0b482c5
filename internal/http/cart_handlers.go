package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TranThienNhat/shop/internal/identity"
)

type addItemReq struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

type updateItemReq struct {
	Quantity int64 `json:"quantity"`
}

type sessionResp struct {
	SessionID string `json:"session_id"`
}

// @Summary Start a guest session
// @Description Returns a token to send back in the X-Session-ID header.
// @Tags cart
// @Produce json
// @Success 201 {object} sessionResp
// @Router /cart/session [post]
func (s *Server) newSession(c *gin.Context) {
	c.JSON(http.StatusCreated, sessionResp{SessionID: identity.NewSessionID()})
}

// @Summary Get cart with pricing
// @Tags cart
// @Produce json
// @Param X-Session-ID header string false "Guest session"
// @Success 200 {object} domain.Pricing
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	pricing, err := s.carts.GetPricing(c, identity.FromContext(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pricing)
}

// @Summary Add product to cart
// @Tags cart
// @Accept json
// @Produce json
// @Param X-Session-ID header string false "Guest session"
// @Param input body addItemReq true "Item"
// @Success 200 {object} domain.Pricing
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /cart/add [post]
func (s *Server) addItem(c *gin.Context) {
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	if err := s.carts.AddItem(c, identity.FromContext(c), req.ProductID, req.Quantity); err != nil {
		s.fail(c, err)
		return
	}
	s.getCart(c)
}

// @Summary Set quantity of a cart line
// @Description A quantity of zero or less removes the line.
// @Tags cart
// @Accept json
// @Produce json
// @Param X-Session-ID header string false "Guest session"
// @Param productId path int true "Product ID"
// @Param input body updateItemReq true "Quantity"
// @Success 200 {object} domain.Pricing
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /cart/{productId} [put]
func (s *Server) updateItem(c *gin.Context) {
	productID, ok := s.pathID(c, "productId")
	if !ok {
		return
	}
	var req updateItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	if err := s.carts.UpdateQuantity(c, identity.FromContext(c), productID, req.Quantity); err != nil {
		s.fail(c, err)
		return
	}
	s.getCart(c)
}

// @Summary Remove product from cart
// @Tags cart
// @Produce json
// @Param X-Session-ID header string false "Guest session"
// @Param productId path int true "Product ID"
// @Success 200 {object} domain.Pricing
// @Router /cart/{productId} [delete]
func (s *Server) removeItem(c *gin.Context) {
	productID, ok := s.pathID(c, "productId")
	if !ok {
		return
	}
	if err := s.carts.RemoveItem(c, identity.FromContext(c), productID); err != nil {
		s.fail(c, err)
		return
	}
	s.getCart(c)
}

// @Summary Empty the cart
// @Tags cart
// @Produce json
// @Param X-Session-ID header string false "Guest session"
// @Success 200 {object} domain.Pricing
// @Router /cart/clear [delete]
func (s *Server) clearCart(c *gin.Context) {
	if err := s.carts.Clear(c, identity.FromContext(c)); err != nil {
		s.fail(c, err)
		return
	}
	s.getCart(c)
}

// @Summary Merge the guest cart into the signed-in cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Param X-Session-ID header string true "Guest session"
// @Success 200 {object} domain.Pricing
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Router /cart/merge [post]
func (s *Server) mergeCart(c *gin.Context) {
	pricing, err := s.carts.Merge(c, identity.FromContext(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pricing)
}
