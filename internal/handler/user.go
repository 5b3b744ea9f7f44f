package handler

import (
	"net/http"

	"breaktopia/internal/middleware"
	"breaktopia/internal/models"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
)

func userPayload(user *models.User) gin.H {
	var teamName any
	if user.Team != nil {
		teamName = user.Team.Name
	}
	return gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"firstName":      user.FirstName,
		"lastName":       user.LastName,
		"role":           user.Role,
		"teamId":         user.TeamID,
		"teamName":       teamName,
		"approvalStatus": user.ApprovalStatus,
		"lastSeenAt":     user.LastSeenAt,
		"createdAt":      user.CreatedAt,
	}
}

// GetMe 返回当前登录用户信息（需要经过 AuthMiddleware）
func GetMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "authentication required")
		return
	}
	util.Success(c, http.StatusOK, util.Response{"user": userPayload(user)})
}
