package http

import (
	stderrors "errors"
	"net/http"
	"strings"

	"pairline/internal/core/domain"
	"pairline/internal/core/services"
	"pairline/pkg/errors"
	"pairline/pkg/utils"
	"pairline/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService  services.AuthService
	guestEnabled bool
	logger       *zap.SugaredLogger
}

func NewAuthHandler(authService services.AuthService, guestEnabled bool, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		guestEnabled: guestEnabled,
		logger:       logger,
	}
}

// RegisterRoutes mounts under /api/v1.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/guest", h.Guest)
		auth.POST("/refresh", h.RefreshToken)
	}
}

type GuestRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=64"`
	Gender      string `json:"gender" binding:"max=16"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

type TokenResponse struct {
	UserID       domain.UserID `json:"user_id,omitempty"`
	DisplayName  string        `json:"display_name,omitempty"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    int64         `json:"expires_at"`
}

func (h *AuthHandler) Guest(c *gin.Context) {
	if !h.guestEnabled {
		c.Error(errors.NewForbiddenError("guest access is disabled"))
		return
	}

	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	name := utils.SanitizeString(req.DisplayName)
	if err := validation.ValidateDisplayName(name); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	gender, err := domain.ParseGender(req.Gender)
	if err != nil {
		c.Error(errors.NewInvalidInputError("gender must be male, female or empty"))
		return
	}

	pair, identity, err := h.authService.IssueGuest(name, gender)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to issue token", http.StatusInternalServerError))
		return
	}

	h.logger.Infow("guest token issued", "user_id", identity.UserID)
	c.JSON(http.StatusCreated, TokenResponse{
		UserID:       identity.UserID,
		DisplayName:  identity.DisplayName,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Unix(),
	})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	pair, err := h.authService.Refresh(strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if stderrors.Is(err, domain.ErrAuthentication) {
			c.Error(errors.WrapError(err, errors.ErrCodeUnauthorized, "invalid refresh token", http.StatusUnauthorized))
			return
		}
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to refresh token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Unix(),
	})
}
