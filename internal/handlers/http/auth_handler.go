package http

import (
	"net/http"
	"time"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/services"
	"skillcall/pkg/errors"
	"skillcall/pkg/utils"
	"skillcall/pkg/validation"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService    services.AuthService
	accessTokenTTL time.Duration
}

func NewAuthHandler(authService services.AuthService, accessTokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		accessTokenTTL: accessTokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/login", h.Login)
		api.POST("/refresh", h.RefreshToken)
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInput("invalid request format"))
		return
	}

	username := utils.NormalizeUsername(req.Username)
	if err := validation.ValidateUsername(username); err != nil {
		c.Error(errors.NewInvalidInput(err.Error()))
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.Error(errors.NewInvalidInput(err.Error()))
		return
	}

	// TODO: validate credentials against user storage once accounts land.
	// The user ID is derived from the username so the same person keeps the
	// same identity across reconnects.
	userID := domain.UserID(username)

	accessToken, err := h.authService.GenerateToken(userID, username)
	if err != nil {
		c.Error(errors.Wrap(err, errors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	refreshToken, err := h.authService.GenerateRefreshToken(userID)
	if err != nil {
		c.Error(errors.Wrap(err, errors.ErrCodeInternal, "failed to generate refresh token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       userID,
		"username":      username,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(h.accessTokenTTL / time.Second),
	})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInput("invalid request format"))
		return
	}

	claims, err := h.authService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Error(errors.NewUnauthorized("invalid refresh token"))
		return
	}

	accessToken, err := h.authService.GenerateToken(claims.UserID, claims.Username)
	if err != nil {
		c.Error(errors.Wrap(err, errors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"expires_in":   int(h.accessTokenTTL / time.Second),
	})
}
