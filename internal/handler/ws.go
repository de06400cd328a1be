package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/notify"
)

// WSHandler upgrades clients to WebSocket subscriptions.
type WSHandler struct {
	hub *notify.Hub
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *notify.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Subscribe handles GET /v1/ws?channel=ride:<id>&channel=user:<id>
// Channels may also be given comma-separated.
func (h *WSHandler) Subscribe(c *gin.Context) {
	var channels []string
	for _, raw := range c.QueryArray("channel") {
		for _, ch := range strings.Split(raw, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
	}
	if len(channels) == 0 {
		badRequest(c, "at least one channel is required")
		return
	}

	// The upgrader has already written an error response on failure.
	if err := h.hub.ServeWS(c.Writer, c.Request, channels); err != nil {
		_ = c.Error(err)
	}
}
