package router

import (
	"log/slog"
	"net/http"

	"breaktopia/internal/config"
	"breaktopia/internal/handler"
	"breaktopia/internal/middleware"
	"breaktopia/internal/models"
	"breaktopia/internal/presence"
	"breaktopia/internal/realtime"
	"breaktopia/internal/store"

	"github.com/gin-gonic/gin"
)

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Users    *store.UserStore
	Status   *store.StatusStore
	Gate     *store.CapacityGate
	Audit    *store.AuditLog
	Coord    *presence.Coordinator
	Notifier *realtime.Notifier
	Fanout   *realtime.Fanout
	Registry *realtime.Registry
}

// SetupRouter configures the Gin engine. Everything lives under /api.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger, "/api/presence/ping", "/api/health"))

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	jwtSecret := cfg.JWT.Secret
	auth := middleware.AuthMiddleware(jwtSecret, d.Users)

	// 登录接口（不需要鉴权）
	authHandler := handler.NewAuthHandler(d.Users, d.Status, d.Coord, d.Notifier,
		jwtSecret, cfg.JWT.Issuer, cfg.JWT.ExpireHours, d.Logger)
	api.POST("/auth/login", authHandler.Login)

	// sendBeacon cannot set headers, so leave also accepts {"token"} in the body
	presenceHandler := handler.NewPresenceHandler(d.Coord, d.Logger)
	api.POST("/presence/leave", middleware.BeaconToken(), auth, presenceHandler.Leave)

	// push channel authenticates itself from ?token=
	socketHandler := handler.NewSocketHandler(jwtSecret, d.Users, d.Fanout, d.Registry, d.Coord, d.Logger)
	api.GET("/ws", socketHandler.Serve)

	// 需要登录才能访问的接口
	protected := api.Group("")
	protected.Use(auth)

	protected.GET("/me", handler.GetMe)
	protected.POST("/auth/logout", authHandler.Logout)

	protected.POST("/presence/ping", presenceHandler.Ping)
	protected.GET("/presence/online", presenceHandler.Online)

	statusHandler := handler.NewStatusHandler(d.Status, d.Notifier, d.Logger)
	protected.GET("/status/team", statusHandler.Team)
	protected.POST("/status/me", statusHandler.SetMine)
	protected.GET("/status/me/breaks", statusHandler.MyBreaks)

	capacityHandler := handler.NewCapacityHandler(d.Gate, d.Notifier, cfg.Status.DefaultBreakCapacity, d.Logger)
	protected.GET("/config/team-capacity", capacityHandler.Get)
	protected.PATCH("/teams/:id/capacity", capacityHandler.Patch)

	logHandler := handler.NewLogHandler(d.Audit)
	protected.GET("/audit", middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin), logHandler.ListLogs)

	return r
}
