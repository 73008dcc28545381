package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"carpool/internal/realtime"
)

// WSHandler upgrades authenticated requests to notification sockets.
type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a new WSHandler. allowOrigin decides cross-origin
// upgrades; nil accepts any origin.
func NewWSHandler(hub *realtime.Hub, allowOrigin func(r *http.Request) bool, logger *slog.Logger) *WSHandler {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
		logger: logger,
	}
}

// Connect handles GET /v1/ws
func (h *WSHandler) Connect(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	unregister := h.hub.Register(userID, conn)
	defer unregister()
	h.logger.Info("websocket connected", "user_id", userID)

	// Clients only receive; reading drives ping/pong and detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.Info("websocket disconnected", "user_id", userID)
			return
		}
	}
}
