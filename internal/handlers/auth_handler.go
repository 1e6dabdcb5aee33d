package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/middleware/jwt"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

// AuthHandler issues tokens to registered API clients.
type AuthHandler struct {
	clients *jwt.ClientRegistry
	tokens  *jwt.TokenManager
	logger  *logger.Logger
}

func NewAuthHandler(clients *jwt.ClientRegistry, tokens *jwt.TokenManager, log *logger.Logger) *AuthHandler {
	return &AuthHandler{clients: clients, tokens: tokens, logger: log.Named("auth")}
}

type TokenRequest struct {
	Client string `json:"client" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Token exchanges a client name and secret for a signed token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := h.clients.Authenticate(req.Client, req.Secret)
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "rejected token request", zap.String("client", req.Client))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := h.tokens.GenerateToken(req.Client, role)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	respondOK(c, TokenResponse{Token: token, Role: role})
}
