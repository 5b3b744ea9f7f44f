package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"breaktopia/internal/models"
	"breaktopia/internal/store"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
)

const currentUserKey = "currentUser"

// UserLoader resolves the user a token was issued to.
type UserLoader interface {
	Get(ctx context.Context, id uint) (*models.User, error)
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the ?token= query parameter used by websocket clients.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// AuthError is an authentication failure with the HTTP status and code to report.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Authenticate checks signature, expiry, the user's revocation watermark and
// approval, and returns the user.
func Authenticate(ctx context.Context, jwtSecret string, users UserLoader, tokenStr string) (*models.User, error) {
	if tokenStr == "" {
		return nil, &AuthError{http.StatusUnauthorized, util.CodeAuth, "authentication required"}
	}
	claims, err := util.ParseToken(jwtSecret, tokenStr)
	if err != nil {
		return nil, &AuthError{http.StatusUnauthorized, util.CodeAuth, "invalid or expired token"}
	}

	user, err := users.Get(ctx, claims.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, &AuthError{http.StatusUnauthorized, util.CodeAuth, "user not found"}
	}
	if err != nil {
		return nil, err
	}

	if err := util.CheckWatermark(claims, user.TokensInvalidBefore); err != nil {
		return nil, &AuthError{http.StatusUnauthorized, util.CodeAuth, "session ended, please sign in again"}
	}
	if !user.IsApproved() {
		return nil, &AuthError{http.StatusForbidden, util.CodeNotApproved, "account is not approved"}
	}
	return user, nil
}

// AuthMiddleware 校验 JWT，并在 context 里放入当前用户。
func AuthMiddleware(jwtSecret string, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := Authenticate(c.Request.Context(), jwtSecret, users, TokenFromRequest(c.Request))
		if err != nil {
			var ae *AuthError
			if errors.As(err, &ae) {
				util.Error(c, ae.Status, ae.Code, ae.Message)
			} else {
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load user")
			}
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// BeaconToken lets clients that cannot set headers (navigator.sendBeacon)
// send the token as {"token": "..."} in the JSON body. The body is restored
// for the handler.
func BeaconToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" || c.Request.Body == nil {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, 8<<10))
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "failed to read request body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var body struct {
			Token string `json:"token"`
		}
		if len(bodyBytes) > 0 && json.Unmarshal(bodyBytes, &body) == nil && body.Token != "" {
			c.Request.Header.Set("Authorization", "Bearer "+body.Token)
		}
		c.Next()
	}
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// RequireRole rejects users whose role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user != nil {
			for _, r := range roles {
				if user.Role == r {
					c.Next()
					return
				}
			}
		}
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "forbidden")
		c.Abort()
	}
}
