package handler

import (
	"net/http"
	"strconv"
	"time"

	"breaktopia/internal/middleware"
	"breaktopia/internal/models"
	"breaktopia/internal/store"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
)

// LogHandler 负责审计日志查询接口
type LogHandler struct {
	Audit *store.AuditLog
	now   func() time.Time
}

func NewLogHandler(audit *store.AuditLog) *LogHandler {
	return &LogHandler{Audit: audit, now: time.Now}
}

// ListLogs 分页查询审计日志。superadmin 看全部，admin 只看目标属于本团队的记录。
// Query: action, search, range=today|7days|30days, page, size
func (h *LogHandler) ListLogs(c *gin.Context) {
	user := middleware.CurrentUser(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	q := store.AuditQuery{
		Action: c.Query("action"),
		Search: c.Query("search"),
		Page:   page,
		Size:   size,
	}
	if q.Action == "all" {
		q.Action = ""
	}

	now := h.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch c.Query("range") {
	case "today":
		q.Since = today
	case "7days":
		q.Since = today.AddDate(0, 0, -7)
	case "30days":
		q.Since = today.AddDate(0, 0, -30)
	}

	if user.Role == models.RoleAdmin {
		if user.Team == nil {
			util.Success(c, http.StatusOK, util.Response{"items": []store.AuditView{}, "total": 0, "page": q.Page, "size": q.Size})
			return
		}
		q.TargetTeam = user.Team.Name
	}

	items, total, err := h.Audit.List(c.Request.Context(), q)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load audit log")
		return
	}
	util.Success(c, http.StatusOK, util.Response{
		"items": items,
		"total": total,
		"page":  page,
		"size":  size,
	})
}
