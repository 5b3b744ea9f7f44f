package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"breaktopia/internal/middleware"
	"breaktopia/internal/models"
	"breaktopia/internal/store"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
)

// CapacityUpdater publishes a team's new capacity.
type CapacityUpdater interface {
	CapacityUpdate(ctx context.Context, teamID uint)
}

type CapacityHandler struct {
	Gate            *store.CapacityGate
	Notify          CapacityUpdater
	DefaultCapacity int
	Log             *slog.Logger
}

func NewCapacityHandler(gate *store.CapacityGate, notify CapacityUpdater, defaultCapacity int, logger *slog.Logger) *CapacityHandler {
	return &CapacityHandler{Gate: gate, Notify: notify, DefaultCapacity: defaultCapacity, Log: logger}
}

// Get returns the caller's team capacity, or every team's for a superadmin.
func (h *CapacityHandler) Get(c *gin.Context) {
	user := middleware.CurrentUser(c)
	ctx := c.Request.Context()

	if user.IsSuperAdmin() {
		all, err := h.Gate.AllCapacities(ctx)
		if err != nil {
			h.Log.Error("list capacities failed", "error", err)
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load capacities")
			return
		}
		util.Success(c, http.StatusOK, util.Response{"teams": all})
		return
	}

	if user.TeamID == nil {
		util.Success(c, http.StatusOK, util.Response{
			"teamId":        nil,
			"teamName":      nil,
			"breakCapacity": h.DefaultCapacity,
			"onBreakNow":    0,
		})
		return
	}

	snap, err := h.Gate.Capacity(ctx, *user.TeamID)
	if err != nil {
		if errors.Is(err, store.ErrTeamNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "team not found")
			return
		}
		h.Log.Error("load capacity failed", "team", *user.TeamID, "error", err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load capacity")
		return
	}
	util.Success(c, http.StatusOK, snap)
}

type setCapacityReq struct {
	BreakCapacity *int `json:"breakCapacity"`
}

// Patch sets a team's capacity. Superadmins may edit any team, admins only
// their own, users none.
func (h *CapacityHandler) Patch(c *gin.Context) {
	user := middleware.CurrentUser(c)
	ctx := c.Request.Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid team id")
		return
	}
	teamID := uint(id)

	switch user.Role {
	case models.RoleSuperAdmin:
	case models.RoleAdmin:
		if user.TeamID == nil || *user.TeamID != teamID {
			util.Error(c, http.StatusForbidden, util.CodeForbidden, "admins may only edit their own team")
			return
		}
	default:
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "forbidden")
		return
	}

	if _, err := h.Gate.Capacity(ctx, teamID); err != nil {
		if errors.Is(err, store.ErrTeamNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "team not found")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load team")
		return
	}

	var req setCapacityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.BreakCapacity == nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "breakCapacity must be an integer between 0 and 50")
		return
	}

	snap, err := h.Gate.SetCapacity(ctx, user, teamID, *req.BreakCapacity)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidCapacity):
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "breakCapacity must be an integer between 0 and 50")
		case errors.Is(err, store.ErrTeamNotFound):
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "team not found")
		default:
			h.Log.Error("set capacity failed", "team", teamID, "error", err)
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to save capacity")
		}
		return
	}

	h.Log.Info("break capacity changed", "team", teamID, "capacity", snap.BreakCapacity, "by", user.ID)
	h.Notify.CapacityUpdate(ctx, teamID)
	util.Success(c, http.StatusOK, snap)
}
