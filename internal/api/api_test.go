package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/auth"
	"github.com/safar/wholesale-store/internal/config"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Env: "test",
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			TokenTTL:   time.Hour,
			BcryptCost: 4,
		},
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func bearer(t *testing.T, tokens *auth.TokenManager, userID int64, role string) string {
	t.Helper()
	token, _, err := tokens.Issue(userID, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", store.ErrValidation), http.StatusBadRequest},
		{auth.ErrWeakPassword, http.StatusBadRequest},
		{auth.ErrPasswordTooLong, http.StatusBadRequest},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{database.ErrProductNotFound, http.StatusNotFound},
		{fmt.Errorf("get order: %w", database.ErrOrderNotFound), http.StatusNotFound},
		{database.ErrOptimisticLockFailed, http.StatusConflict},
		{fmt.Errorf("%w: widget", database.ErrInsufficientStock), http.StatusConflict},
		{database.ErrLockTimeout, http.StatusConflict},
		{database.ErrBelowMinimumOrder, http.StatusUnprocessableEntity},
		{database.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{database.ErrCouponInvalid, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	s := &Server{log: quietLogger()}
	r := gin.New()
	r.Use(RequestID())
	r.GET("/boom", func(c *gin.Context) { s.respondError(c, errors.New("pq: password authentication failed")) })
	r.GET("/missing", func(c *gin.Context) { s.respondError(c, database.ErrOrderNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "internal server error", body["error"])
	assert.NotEmpty(t, body["request_id"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order not found", decodeBody(t, w)["error"])
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ctxRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestRequireAuth(t *testing.T) {
	tokens := auth.NewTokenManager(testConfig().Auth)
	r := gin.New()
	r.GET("/me", RequireAuth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": currentUserID(c), "admin": isAdmin(c)})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid", bearer(t, tokens, 42, models.RoleCustomer), http.StatusOK},
		{"lowercase scheme", strings.Replace(bearer(t, tokens, 42, models.RoleCustomer), "Bearer", "bearer", 1), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				body := decodeBody(t, w)
				assert.EqualValues(t, 42, body["uid"])
				assert.Equal(t, false, body["admin"])
			}
		})
	}
}

func TestRequireAuthRejectsForeignSecret(t *testing.T) {
	cfg := testConfig()
	tokens := auth.NewTokenManager(cfg.Auth)
	cfg.Auth.JWTSecret = "other-secret"
	other := auth.NewTokenManager(cfg.Auth)

	r := gin.New()
	r.GET("/me", RequireAuth(tokens), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, other, 1, models.RoleAdmin))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := NewServer(nil, testConfig(), nil, quietLogger())
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set("Authorization", bearer(t, s.tokens, 7, models.RoleCustomer))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterRejectsBadInputBeforeStore(t *testing.T) {
	s := NewServer(nil, testConfig(), nil, quietLogger())
	router := s.Router()
	token := bearer(t, s.tokens, 7, models.RoleCustomer)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"non-numeric product id", http.MethodGet, "/api/products/abc", ""},
		{"zero product id", http.MethodGet, "/api/products/0", ""},
		{"bad category filter", http.MethodGet, "/api/products?category_id=x", ""},
		{"checkout without address", http.MethodPost, "/api/orders", `{"payment_method":"wallet"}`},
		{"cart item without product", http.MethodPost, "/api/cart", `{"quantity":3}`},
		{"negative cart quantity", http.MethodPut, "/api/cart/5", `{"quantity":-1}`},
		{"card with bad month", http.MethodPost, "/api/cards", `{"number":"4242424242424242","holder_name":"A","exp_month":13,"exp_year":2030}`},
		{"malformed json", http.MethodPost, "/api/addresses", `{"recipient":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(nil, testConfig(), nil, quietLogger())
	router := s.Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfigWithoutOriginsAllowsAll(t *testing.T) {
	cfg := corsConfig(nil)
	assert.True(t, cfg.AllowAllOrigins)
	assert.False(t, cfg.AllowCredentials)
	assert.NoError(t, cfg.Validate())
}
