// Package api exposes the storefront over JSON/HTTP.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/auth"
	"github.com/safar/wholesale-store/internal/config"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/events"
	"github.com/sirupsen/logrus"
)

type Server struct {
	db     *sql.DB
	cfg    *config.Config
	tokens *auth.TokenManager
	events events.Publisher
	log    *logrus.Logger
	now    func() time.Time
}

func NewServer(db *sql.DB, cfg *config.Config, publisher events.Publisher, log *logrus.Logger) *Server {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Server{
		db:     db,
		cfg:    cfg,
		tokens: auth.NewTokenManager(cfg.Auth),
		events: events.LoggingPublisher{Next: publisher, Log: log},
		log:    log,
		now:    time.Now,
	}
}

func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(s.log))
	r.Use(cors.New(corsConfig(s.cfg.Server.AllowedOrigins)))

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.POST("/auth/register", s.register)
		api.POST("/auth/login", s.login)

		api.GET("/categories", s.listCategories)
		api.GET("/categories/:id", s.getCategory)
		api.GET("/brands", s.listBrands)
		api.GET("/brands/:id", s.getBrand)
		api.GET("/products", s.listProducts)
		api.GET("/products/:id", s.getProduct)
	}

	user := api.Group("", RequireAuth(s.tokens))
	{
		user.GET("/auth/me", s.me)
		user.PUT("/auth/password", s.changePassword)

		user.GET("/users/me", s.me)
		user.PUT("/users/me", s.updateProfile)
		user.DELETE("/users/me", s.deleteAccount)

		user.GET("/addresses", s.listAddresses)
		user.POST("/addresses", s.createAddress)
		user.PUT("/addresses/:id", s.updateAddress)
		user.DELETE("/addresses/:id", s.deleteAddress)
		user.POST("/addresses/:id/default", s.setDefaultAddress)

		user.GET("/cart", s.getCart)
		user.POST("/cart", s.addToCart)
		user.DELETE("/cart", s.clearCart)
		user.PUT("/cart/:productId", s.setCartQuantity)
		user.DELETE("/cart/:productId", s.removeFromCart)

		user.GET("/coupons/:code", s.checkCoupon)

		user.GET("/orders", s.listOrders)
		user.POST("/orders", s.checkout)
		user.GET("/orders/:id", s.getOrder)
		user.POST("/orders/:id/cancel", s.cancelOrder)
		user.POST("/orders/:id/reorder", s.reorder)
		user.POST("/orders/:id/return", s.requestReturn)
		user.GET("/returns", s.listMyReturns)

		user.GET("/cards", s.listCards)
		user.POST("/cards", s.createCard)
		user.DELETE("/cards/:id", s.deleteCard)
		user.POST("/cards/:id/default", s.setDefaultCard)

		user.GET("/wallet", s.getWallet)
		user.POST("/wallet/topup", s.topUpWallet)
		user.GET("/wallet/transactions", s.listWalletTransactions)

		user.GET("/favorites", s.listFavorites)
		user.GET("/favorites/ids", s.favoriteIDs)
		user.PUT("/favorites/:productId", s.addFavorite)
		user.DELETE("/favorites/:productId", s.removeFavorite)

		user.GET("/notifications", s.listNotifications)
		user.GET("/notifications/unread-count", s.unreadCount)
		user.POST("/notifications/read-all", s.markAllRead)
		user.POST("/notifications/:id/read", s.markRead)
	}

	admin := api.Group("/admin", RequireAuth(s.tokens), RequireAdmin(), s.RequireCurrentAdmin())
	{
		admin.GET("/users", s.adminListUsers)
		admin.PUT("/users/:id/role", s.adminSetRole)

		admin.GET("/products", s.adminListProducts)
		admin.POST("/products", s.adminCreateProduct)
		admin.PUT("/products/:id", s.adminUpdateProduct)
		admin.PUT("/products/:id/tiers", s.adminReplaceTiers)
		admin.POST("/products/:id/stock", s.adminAdjustStock)
		admin.PUT("/products/:id/active", s.adminSetProductActive)

		admin.POST("/categories", s.adminCreateCategory)
		admin.PUT("/categories/:id", s.adminUpdateCategory)
		admin.DELETE("/categories/:id", s.adminDeleteCategory)

		admin.POST("/brands", s.adminCreateBrand)
		admin.PUT("/brands/:id", s.adminUpdateBrand)
		admin.DELETE("/brands/:id", s.adminDeleteBrand)

		admin.GET("/suppliers", s.adminListSuppliers)
		admin.POST("/suppliers", s.adminCreateSupplier)
		admin.GET("/suppliers/:id", s.adminGetSupplier)
		admin.PUT("/suppliers/:id", s.adminUpdateSupplier)
		admin.DELETE("/suppliers/:id", s.adminDeleteSupplier)

		admin.GET("/coupons", s.adminListCoupons)
		admin.POST("/coupons", s.adminCreateCoupon)
		admin.PUT("/coupons/:id", s.adminUpdateCoupon)
		admin.DELETE("/coupons/:id", s.adminDeleteCoupon)

		admin.GET("/orders", s.adminListOrders)
		admin.GET("/orders/:id", s.adminGetOrder)
		admin.PUT("/orders/:id/status", s.adminUpdateOrderStatus)
		admin.POST("/orders/:id/shipments", s.adminCreateShipment)
		admin.POST("/shipments/:id/delivered", s.adminMarkDelivered)

		admin.GET("/returns", s.adminListReturns)
		admin.POST("/returns/:id/resolve", s.adminResolveReturn)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	if err := database.Ping(c.Request.Context(), s.db); err != nil {
		s.log.WithError(err).Error("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
		ExposeHeaders:    []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
