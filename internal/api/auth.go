package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/auth"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/store"
)

type registerRequest struct {
	Phone        string `json:"phone" binding:"required"`
	Email        string `json:"email" binding:"omitempty,email"`
	Name         string `json:"name" binding:"required"`
	BusinessName string `json:"business_name"`
	Password     string `json:"password" binding:"required"`
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	hash, err := s.tokens.HashPassword(req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	user, err := store.CreateUser(c.Request.Context(), s.db, store.CreateUserParams{
		Phone:        req.Phone,
		Email:        req.Email,
		Name:         req.Name,
		BusinessName: req.BusinessName,
		PasswordHash: hash,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.issueToken(c, http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := store.GetUserByLogin(c.Request.Context(), s.db, strings.TrimSpace(req.Login))
	if err == database.ErrUserNotFound {
		s.respondError(c, auth.ErrInvalidCredentials)
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.respondError(c, err)
		return
	}

	s.issueToken(c, http.StatusOK, user)
}

func (s *Server) issueToken(c *gin.Context, status int, user *models.User) {
	token, expires, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(status, tokenResponse{Token: token, ExpiresAt: expires, User: user})
}

func (s *Server) me(c *gin.Context) {
	user, err := store.GetUser(c.Request.Context(), s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	user, err := store.GetUser(ctx, s.db, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		s.respondError(c, err)
		return
	}

	hash, err := s.tokens.HashPassword(req.NewPassword)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := store.UpdatePasswordHash(ctx, s.db, user.ID, hash); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateProfileRequest struct {
	Name         *string `json:"name"`
	Email        *string `json:"email" binding:"omitempty,email"`
	BusinessName *string `json:"business_name"`
}

func (s *Server) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := store.UpdateProfile(c.Request.Context(), s.db, currentUserID(c), store.UpdateProfileParams{
		Name:         req.Name,
		Email:        req.Email,
		BusinessName: req.BusinessName,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) deleteAccount(c *gin.Context) {
	if err := store.DeleteUser(c.Request.Context(), s.db, currentUserID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
