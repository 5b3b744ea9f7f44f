package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"breaktopia/internal/middleware"
	"breaktopia/internal/models"
	"breaktopia/internal/presence"
	"breaktopia/internal/store"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler 负责登录/登出接口
type AuthHandler struct {
	Users     *store.UserStore
	Status    *store.StatusStore
	Presence  *presence.Coordinator
	Notify    presence.Notifier
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
	Log       *slog.Logger
}

// NewAuthHandler 构造函数
func NewAuthHandler(users *store.UserStore, status *store.StatusStore, coord *presence.Coordinator, notify presence.Notifier,
	jwtSecret, issuer string, ttlHours int, logger *slog.Logger) *AuthHandler {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &AuthHandler{
		Users:     users,
		Status:    status,
		Presence:  coord,
		Notify:    notify,
		JWTSecret: jwtSecret,
		Issuer:    issuer,
		TokenTTL:  time.Duration(ttlHours) * time.Hour,
		Log:       logger,
	}
}

// ---------- 登录 ----------

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "email and password are required")
		return
	}

	user, err := h.Users.ByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load user")
		return
	}
	// 密码错误和用户不存在返回同样的提示
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "invalid credentials")
		return
	}
	if !user.IsApproved() {
		util.ErrorWith(c, http.StatusForbidden, util.CodeNotApproved, "account is not approved", util.Response{
			"approvalStatus": user.ApprovalStatus,
		})
		return
	}

	token, err := util.GenerateToken(h.JWTSecret, h.Issuer, user.ID, time.Now(), h.TokenTTL)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to issue token")
		return
	}

	util.Success(c, http.StatusOK, util.Response{
		"token": token,
		"user":  userPayload(user),
	})
}

// ---------- 登出 ----------

// Logout ends the session right away instead of waiting for the grace
// period: any open break is closed and the user goes offline.
func (h *AuthHandler) Logout(c *gin.Context) {
	user := middleware.CurrentUser(c)
	ctx := c.Request.Context()

	if _, err := h.Status.SetStatus(ctx, user, models.StatusOffline); err != nil {
		h.Log.Error("logout: set offline", "user", user.ID, "error", err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to update status")
		return
	}
	h.Presence.Forget(user.ID)
	h.Notify.PresenceOffline(user.ID, user.TeamID, presence.ReasonLeave)
	h.Notify.TeamUpdate(ctx)

	util.Success(c, http.StatusOK, util.Response{"ok": true})
}
