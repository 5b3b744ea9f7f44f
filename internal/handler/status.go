package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"breaktopia/internal/middleware"
	"breaktopia/internal/presence"
	"breaktopia/internal/store"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
)

type StatusHandler struct {
	Status *store.StatusStore
	Notify presence.Notifier
	Log    *slog.Logger
}

func NewStatusHandler(status *store.StatusStore, notify presence.Notifier, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{Status: status, Notify: notify, Log: logger}
}

// Team returns the status table of the caller's team, or of everyone for a superadmin.
func (h *StatusHandler) Team(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var teamID *uint
	if !user.IsSuperAdmin() {
		if user.TeamID == nil {
			util.Success(c, http.StatusOK, []store.StatusRow{})
			return
		}
		teamID = user.TeamID
	}

	rows, err := h.Status.Snapshot(c.Request.Context(), teamID)
	if err != nil {
		h.Log.Error("status snapshot failed", "user", user.ID, "error", err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load statuses")
		return
	}
	util.Success(c, http.StatusOK, rows)
}

type setStatusReq struct {
	Status string `json:"status"`
}

// SetMine changes the caller's own status to working or break.
func (h *StatusHandler) SetMine(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req setStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid body")
		return
	}
	if err := util.ValidateSelfStatus(req.Status); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidStatus, err.Error())
		return
	}

	rec, err := h.Status.SetStatus(c.Request.Context(), user, req.Status)
	if err != nil {
		var full *store.CapacityFullError
		switch {
		case errors.As(err, &full):
			util.ErrorWith(c, http.StatusConflict, util.CodeCapacityFull, "break capacity reached for your team", util.Response{
				"onBreakNow":    full.OnBreakNow,
				"breakCapacity": full.BreakCapacity,
			})
		case errors.Is(err, store.ErrInvalidStatus):
			util.Error(c, http.StatusBadRequest, util.CodeInvalidStatus, err.Error())
		default:
			h.Log.Error("set status failed", "user", user.ID, "status", req.Status, "error", err)
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to update status")
		}
		return
	}

	h.Notify.TeamUpdate(c.Request.Context())
	util.Success(c, http.StatusOK, util.Response{
		"status":          rec.Status,
		"statusChangedAt": rec.StatusChangedAt,
	})
}

// MyBreaks returns the caller's break history. Query: days (1-31, default 7).
func (h *StatusHandler) MyBreaks(c *gin.Context) {
	user := middleware.CurrentUser(c)

	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 31 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "days must be between 1 and 31")
		return
	}

	hist, err := h.Status.BreakHistory(c.Request.Context(), user.ID, days)
	if err != nil {
		h.Log.Error("break history failed", "user", user.ID, "error", err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load break history")
		return
	}
	util.Success(c, http.StatusOK, hist)
}
