package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/auth"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/store"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{store.ErrValidation, http.StatusBadRequest},
	{store.ErrInvalidCursor, http.StatusBadRequest},
	{auth.ErrWeakPassword, http.StatusBadRequest},
	{auth.ErrPasswordTooLong, http.StatusBadRequest},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},

	{database.ErrUserNotFound, http.StatusNotFound},
	{database.ErrAddressNotFound, http.StatusNotFound},
	{database.ErrCategoryNotFound, http.StatusNotFound},
	{database.ErrBrandNotFound, http.StatusNotFound},
	{database.ErrProductNotFound, http.StatusNotFound},
	{database.ErrCartItemNotFound, http.StatusNotFound},
	{database.ErrOrderNotFound, http.StatusNotFound},
	{database.ErrWalletNotFound, http.StatusNotFound},
	{database.ErrCardNotFound, http.StatusNotFound},
	{database.ErrCouponNotFound, http.StatusNotFound},
	{database.ErrShipmentNotFound, http.StatusNotFound},
	{database.ErrReturnNotFound, http.StatusNotFound},
	{database.ErrSupplierNotFound, http.StatusNotFound},
	{database.ErrNotificationNotFound, http.StatusNotFound},

	{database.ErrDuplicate, http.StatusConflict},
	{database.ErrOptimisticLockFailed, http.StatusConflict},
	{database.ErrInsufficientStock, http.StatusConflict},
	{database.ErrInvalidStatusChange, http.StatusConflict},
	{database.ErrLockTimeout, http.StatusConflict},

	{database.ErrProductInactive, http.StatusUnprocessableEntity},
	{database.ErrEmptyCart, http.StatusUnprocessableEntity},
	{database.ErrBelowMinimumOrder, http.StatusUnprocessableEntity},
	{database.ErrCouponInvalid, http.StatusUnprocessableEntity},
	{database.ErrInsufficientFunds, http.StatusUnprocessableEntity},
}

// statusFor maps a domain error to an HTTP status; unknown errors are 500.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("request_id", c.GetString(ctxRequestID)).Error("request failed")
		message = "internal server error"
	}
	abortError(c, status, message)
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      message,
		"request_id": c.GetString(ctxRequestID),
	})
}

func badRequest(c *gin.Context, message string) {
	abortError(c, http.StatusBadRequest, message)
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func optionalIDQuery(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &id, true
}

func pageRequest(c *gin.Context) store.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return store.PageRequest{Page: page, PageSize: pageSize}.Normalize()
}

func limitQuery(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}
