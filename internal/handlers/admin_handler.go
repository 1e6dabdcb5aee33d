package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/SecretSanta/internal/services"
)

type Sweeper interface {
	CloseAll(ctx context.Context) (*services.SweepResult, error)
}

type AdminHandler struct {
	sweeper Sweeper
}

func NewAdminHandler(sweeper Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// CloseAll closes every open group and reports per-group delivery.
func (h *AdminHandler) CloseAll(c *gin.Context) {
	res, err := h.sweeper.CloseAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}
