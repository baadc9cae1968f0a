package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/wholesale-store/internal/auth"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader = "X-Request-ID"

	ctxRequestID = "request_id"
	ctxUserID    = "user_id"
	ctxRole      = "role"
)

// RequestID propagates the caller's request id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func AccessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"request_id": c.GetString(ctxRequestID),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if uid, ok := c.Get(ctxUserID); ok {
			fields["user_id"] = uid
		}

		entry := log.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

func RequireAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
			abortError(c, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := tokens.Parse(header[len(prefix):])
		if err != nil {
			abortError(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != models.RoleAdmin {
			abortError(c, http.StatusForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

// RequireCurrentAdmin re-reads the caller's role so a demotion takes
// effect before the token expires. It runs after RequireAdmin, which
// rejects non-admin tokens without a query.
func (s *Server) RequireCurrentAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := store.GetUser(c.Request.Context(), s.db, currentUserID(c))
		if err != nil {
			if errors.Is(err, database.ErrUserNotFound) {
				abortError(c, http.StatusUnauthorized, "invalid token")
				return
			}
			s.respondError(c, err)
			return
		}
		if user.Role != models.RoleAdmin {
			abortError(c, http.StatusForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(ctxRole) == models.RoleAdmin
}
