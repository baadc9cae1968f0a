package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/events"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/store"
	"github.com/shopspring/decimal"
)

func (s *Server) adminListUsers(c *gin.Context) {
	page, err := store.ListUsers(c.Request.Context(), s.db, pageRequest(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=customer admin"`
}

func (s *Server) adminSetRole(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := store.SetUserRole(c.Request.Context(), s.db, id, req.Role); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type supplierRequest struct {
	Name        string `json:"name" binding:"required"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email" binding:"omitempty,email"`
	Address     string `json:"address"`
}

func (r supplierRequest) params() store.SupplierParams {
	return store.SupplierParams{
		Name:        strings.TrimSpace(r.Name),
		ContactName: r.ContactName,
		Phone:       r.Phone,
		Email:       r.Email,
		Address:     r.Address,
	}
}

func (s *Server) adminListSuppliers(c *gin.Context) {
	page, err := store.ListSuppliers(c.Request.Context(), s.db, pageRequest(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) adminGetSupplier(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	supplier, err := store.GetSupplier(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

func (s *Server) adminCreateSupplier(c *gin.Context) {
	var req supplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	supplier, err := store.CreateSupplier(c.Request.Context(), s.db, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

func (s *Server) adminUpdateSupplier(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req supplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	supplier, err := store.UpdateSupplier(c.Request.Context(), s.db, id, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

func (s *Server) adminDeleteSupplier(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.DeleteSupplier(c.Request.Context(), s.db, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type couponRequest struct {
	Code          string          `json:"code" binding:"required"`
	DiscountType  string          `json:"discount_type" binding:"required"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	MaxUses       int             `json:"max_uses"`
	ValidFrom     *time.Time      `json:"valid_from"`
	ValidTo       *time.Time      `json:"valid_to"`
	IsActive      *bool           `json:"is_active"`
}

func (r couponRequest) params() store.CouponParams {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return store.CouponParams{
		Code:          r.Code,
		DiscountType:  r.DiscountType,
		DiscountValue: r.DiscountValue,
		MinOrderValue: r.MinOrderValue,
		MaxUses:       r.MaxUses,
		ValidFrom:     r.ValidFrom,
		ValidTo:       r.ValidTo,
		IsActive:      active,
	}
}

func (s *Server) adminListCoupons(c *gin.Context) {
	coupons, err := store.ListCoupons(c.Request.Context(), s.db)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": coupons})
}

func (s *Server) adminCreateCoupon(c *gin.Context) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	coupon, err := store.CreateCoupon(c.Request.Context(), s.db, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (s *Server) adminUpdateCoupon(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	coupon, err := store.UpdateCoupon(c.Request.Context(), s.db, id, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (s *Server) adminDeleteCoupon(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.DeleteCoupon(c.Request.Context(), s.db, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) adminListOrders(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.IsOrderStatus(status) {
		badRequest(c, "invalid status")
		return
	}
	page, err := store.ListAllOrders(c.Request.Context(), s.db, status, pageRequest(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) adminGetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := store.GetOrder(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status  string `json:"status" binding:"required"`
	Version int    `json:"version" binding:"required,min=1"`
	Note    string `json:"note" binding:"max=500"`
}

func (s *Server) adminUpdateOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	order, err := store.UpdateOrderStatus(c.Request.Context(), s.db, id, req.Version, req.Status, req.Note)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.publish(c, events.OrderStatusChanged(order))
	c.JSON(http.StatusOK, order)
}

type shipmentRequest struct {
	Carrier        string `json:"carrier" binding:"required"`
	TrackingNumber string `json:"tracking_number" binding:"required"`
}

func (s *Server) adminCreateShipment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req shipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	shipment, order, err := store.CreateShipment(c.Request.Context(), s.db, id, req.Carrier, req.TrackingNumber)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.publish(c, events.OrderStatusChanged(order))
	c.JSON(http.StatusCreated, shipment)
}

func (s *Server) adminMarkDelivered(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	shipment, order, err := store.MarkShipmentDelivered(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.publish(c, events.OrderStatusChanged(order))
	c.JSON(http.StatusOK, shipment)
}

func (s *Server) adminListReturns(c *gin.Context) {
	returns, err := store.ListReturns(c.Request.Context(), s.db, 0, c.Query("status"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": returns})
}

type resolveReturnRequest struct {
	Approve *bool           `json:"approve" binding:"required"`
	Refund  decimal.Decimal `json:"refund_amount"`
	Note    string          `json:"note" binding:"max=500"`
}

func (s *Server) adminResolveReturn(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req resolveReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ret, err := store.ResolveReturn(c.Request.Context(), s.db, id, *req.Approve, req.Refund, req.Note)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.publish(c, events.ReturnResolved(ret))
	c.JSON(http.StatusOK, ret)
}
