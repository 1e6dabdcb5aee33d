package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/SecretSanta/internal/bot"
	"github.com/Gopher0727/SecretSanta/internal/middlewares"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/utils/ratelimit"
)

// EventRouter is what the event endpoint needs from the bot.
type EventRouter interface {
	Handle(ctx context.Context, ev bot.Event) ([]notify.Message, error)
}

// EventHandler accepts inbound events from bridges and answers with the
// replies for the sender.
type EventHandler struct {
	router  EventRouter
	limiter *ratelimit.Limiter
	rule    ratelimit.Rule
}

// NewEventHandler takes an optional limiter; nil disables per-user limits.
func NewEventHandler(router EventRouter, limiter *ratelimit.Limiter, rule ratelimit.Rule) *EventHandler {
	return &EventHandler{router: router, limiter: limiter, rule: rule}
}

type EventResponse struct {
	Replies []notify.Message `json:"replies"`
}

func (h *EventHandler) Handle(c *gin.Context) {
	var ev bot.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.limiter != nil && ev.UserID != "" {
		key := "user:" + ev.UserID
		allowed, err := h.limiter.Allow(c.Request.Context(), key, h.rule)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter unavailable"})
			return
		}
		middlewares.SetRemaining(c, h.limiter, key, h.rule)
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}
	}

	replies, err := h.router.Handle(c.Request.Context(), ev)
	if err != nil {
		respondError(c, err)
		return
	}
	if replies == nil {
		replies = []notify.Message{}
	}
	respondOK(c, EventResponse{Replies: replies})
}
