package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/events"
	"github.com/safar/wholesale-store/internal/store"
	"github.com/shopspring/decimal"
)

type addressRequest struct {
	Label      string `json:"label"`
	Recipient  string `json:"recipient" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" binding:"required"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	IsDefault  bool   `json:"is_default"`
}

func (r addressRequest) params() store.AddressParams {
	return store.AddressParams(r)
}

func (s *Server) listAddresses(c *gin.Context) {
	addresses, err := store.ListAddresses(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": addresses})
}

func (s *Server) createAddress(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	address, err := store.CreateAddress(c.Request.Context(), s.db, currentUserID(c), req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, address)
}

func (s *Server) updateAddress(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	address, err := store.UpdateAddress(c.Request.Context(), s.db, currentUserID(c), id, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, address)
}

func (s *Server) deleteAddress(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.DeleteAddress(c.Request.Context(), s.db, currentUserID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setDefaultAddress(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.SetDefaultAddress(c.Request.Context(), s.db, currentUserID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type cardRequest struct {
	Number     string `json:"number" binding:"required"`
	HolderName string `json:"holder_name" binding:"required"`
	ExpMonth   int    `json:"exp_month" binding:"required,min=1,max=12"`
	ExpYear    int    `json:"exp_year" binding:"required"`
	IsDefault  bool   `json:"is_default"`
}

func (s *Server) listCards(c *gin.Context) {
	cards, err := store.ListCards(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": cards})
}

func (s *Server) createCard(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	card, err := store.CreateCard(c.Request.Context(), s.db, currentUserID(c), store.CardParams{
		Number:     req.Number,
		HolderName: req.HolderName,
		ExpMonth:   req.ExpMonth,
		ExpYear:    req.ExpYear,
		IsDefault:  req.IsDefault,
	}, s.now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (s *Server) deleteCard(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.DeleteCard(c.Request.Context(), s.db, currentUserID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setDefaultCard(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.SetDefaultCard(c.Request.Context(), s.db, currentUserID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getWallet(c *gin.Context) {
	wallet, err := store.GetWallet(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

type topUpRequest struct {
	CardID int64           `json:"card_id" binding:"required,min=1"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) topUpWallet(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	userID := currentUserID(c)
	wallet, entry, err := store.TopUpWallet(c.Request.Context(), s.db, userID, req.CardID, req.Amount, s.cfg.Wallet.MaxTopUp)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.publish(c, events.WalletCredited(userID, entry.Amount))
	c.JSON(http.StatusOK, gin.H{"wallet": wallet, "transaction": entry})
}

func (s *Server) listWalletTransactions(c *gin.Context) {
	page, err := store.ListWalletTransactions(c.Request.Context(), s.db, currentUserID(c), c.Query("cursor"), limitQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) listFavorites(c *gin.Context) {
	favorites, err := store.ListFavorites(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": favorites})
}

func (s *Server) favoriteIDs(c *gin.Context) {
	set, err := store.FavoriteProductIDs(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	c.JSON(http.StatusOK, gin.H{"product_ids": ids})
}

func (s *Server) addFavorite(c *gin.Context) {
	productID, ok := idParam(c, "productId")
	if !ok {
		return
	}
	if err := store.AddFavorite(c.Request.Context(), s.db, currentUserID(c), productID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeFavorite(c *gin.Context) {
	productID, ok := idParam(c, "productId")
	if !ok {
		return
	}
	if err := store.RemoveFavorite(c.Request.Context(), s.db, currentUserID(c), productID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	page, err := store.ListNotifications(c.Request.Context(), s.db, currentUserID(c), unreadOnly, c.Query("cursor"), limitQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) unreadCount(c *gin.Context) {
	n, err := store.UnreadNotificationCount(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (s *Server) markRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.MarkNotificationRead(c.Request.Context(), s.db, currentUserID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markAllRead(c *gin.Context) {
	n, err := store.MarkAllNotificationsRead(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
