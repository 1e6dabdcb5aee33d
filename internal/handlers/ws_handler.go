package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/SecretSanta/internal/middlewares"
	"github.com/Gopher0727/SecretSanta/internal/ws"
)

type WSHandler struct {
	hub *ws.Hub
}

func NewWSHandler(hub *ws.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve upgrades an authenticated bridge to a websocket.
func (h *WSHandler) Serve(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request, c.GetString(middlewares.ClientKey))
}
