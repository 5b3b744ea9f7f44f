package handler

import (
	"log/slog"
	"net/http"

	"breaktopia/internal/middleware"
	"breaktopia/internal/presence"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	Coord *presence.Coordinator
	Log   *slog.Logger
}

func NewPresenceHandler(coord *presence.Coordinator, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{Coord: coord, Log: logger}
}

// Ping is the client heartbeat, sent every few seconds while the app is open.
func (h *PresenceHandler) Ping(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.Coord.Heartbeat(c.Request.Context(), user); err != nil {
		h.Log.Error("heartbeat failed", "user", user.ID, "error", err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "heartbeat failed")
		return
	}
	util.Success(c, http.StatusOK, util.Response{"ok": true})
}

// Leave marks a possible departure (pagehide). The token may come in the body.
func (h *PresenceHandler) Leave(c *gin.Context) {
	user := middleware.CurrentUser(c)
	h.Coord.Leave(c.Request.Context(), user.ID)
	util.Success(c, http.StatusOK, util.Response{"ok": true})
}

func (h *PresenceHandler) Online(c *gin.Context) {
	util.Success(c, http.StatusOK, util.Response{
		"onlineUserIds": h.Coord.Online(),
		"ttlSeconds":    int(h.Coord.TTL().Seconds()),
	})
}
