package http

import (
	"net/http"
	"strings"
	"time"

	"examcast/internal/core/services"
	"examcast/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
	Role string `json:"role" binding:"required"`
}

var allowedRoles = map[string]bool{
	"examiner":  true,
	"proctor":   true,
	"candidate": true,
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("invalid request format"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if !allowedRoles[req.Role] {
		c.Error(errors.NewValidationError("unknown role"))
		return
	}

	token, err := h.authService.GenerateToken(req.Name, req.Role)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokenTTL.Seconds()),
	})
}
