package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/events"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/store"
	"github.com/shopspring/decimal"
)

const publishTimeout = 5 * time.Second

// publish emits e once the request's transaction has committed. The
// request context's cancellation is not inherited.
func (s *Server) publish(c *gin.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), publishTimeout)
	defer cancel()
	_ = s.events.Publish(ctx, e)
}

func (s *Server) getCart(c *gin.Context) {
	cart, err := store.GetCart(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type addToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required,min=1"`
	Quantity  int   `json:"quantity" binding:"min=0"`
}

func (s *Server) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cart, err := store.AddToCart(c.Request.Context(), s.db, currentUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

type cartUpdateResponse struct {
	*models.Cart
	Removed bool `json:"removed"`
}

func (s *Server) setCartQuantity(c *gin.Context) {
	productID, ok := idParam(c, "productId")
	if !ok {
		return
	}
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cart, removed, err := store.SetCartQuantity(c.Request.Context(), s.db, currentUserID(c), productID, req.Quantity)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartUpdateResponse{Cart: cart, Removed: removed})
}

func (s *Server) removeFromCart(c *gin.Context) {
	productID, ok := idParam(c, "productId")
	if !ok {
		return
	}
	if err := store.RemoveFromCart(c.Request.Context(), s.db, currentUserID(c), productID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearCart(c *gin.Context) {
	if err := store.ClearCart(c.Request.Context(), s.db, currentUserID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type couponCheckResponse struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// checkCoupon previews a coupon against the caller's current cart.
func (s *Server) checkCoupon(c *gin.Context) {
	ctx := c.Request.Context()
	coupon, err := store.GetCouponByCode(ctx, s.db, c.Param("code"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	cart, err := store.GetCart(ctx, s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	discount, err := store.CouponDiscount(coupon, cart.Subtotal, s.now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, couponCheckResponse{
		Code:     coupon.Code,
		Subtotal: cart.Subtotal,
		Discount: discount,
		Total:    cart.Subtotal.Sub(discount),
	})
}

type checkoutRequest struct {
	AddressID     int64  `json:"address_id" binding:"required,min=1"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	CardID        *int64 `json:"card_id"`
	CouponCode    string `json:"coupon_code"`
	Notes         string `json:"notes" binding:"max=1000"`
}

func (s *Server) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	order, err := store.Checkout(c.Request.Context(), s.db, store.CheckoutRequest{
		UserID:        currentUserID(c),
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		CardID:        req.CardID,
		CouponCode:    req.CouponCode,
		Notes:         req.Notes,
	}, s.now())
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.publish(c, events.OrderPlaced(order))
	c.JSON(http.StatusCreated, order)
}

func (s *Server) listOrders(c *gin.Context) {
	page, err := store.ListOrdersCursor(c.Request.Context(), s.db, currentUserID(c),
		c.Query("status"), c.Query("cursor"), limitQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var order *models.Order
	var err error
	if isAdmin(c) {
		order, err = store.GetOrder(c.Request.Context(), s.db, id)
	} else {
		order, err = store.GetUserOrder(c.Request.Context(), s.db, currentUserID(c), id)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	order, err := store.CancelOrder(c.Request.Context(), s.db, currentUserID(c), id, req.Reason)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.publish(c, events.OrderStatusChanged(order))
	c.JSON(http.StatusOK, order)
}

type reorderResponse struct {
	Cart    *models.Cart `json:"cart"`
	Skipped int          `json:"skipped"`
}

func (s *Server) reorder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cart, skipped, err := store.Reorder(c.Request.Context(), s.db, currentUserID(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reorderResponse{Cart: cart, Skipped: skipped})
}

func (s *Server) requestReturn(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ret, err := store.RequestReturn(c.Request.Context(), s.db, currentUserID(c), id, req.Reason)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ret)
}

func (s *Server) listMyReturns(c *gin.Context) {
	returns, err := store.ListReturns(c.Request.Context(), s.db, currentUserID(c), c.Query("status"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": returns})
}
