// Package app wires the stores, the presence engine, the push fanout and the
// HTTP router into one runnable unit.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"breaktopia/internal/config"
	"breaktopia/internal/database"
	"breaktopia/internal/presence"
	"breaktopia/internal/realtime"
	"breaktopia/internal/router"
	"breaktopia/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Log        *slog.Logger
	Users      *store.UserStore
	Status     *store.StatusStore
	Gate       *store.CapacityGate
	Audit      *store.AuditLog
	Tracker    *presence.Tracker
	Coord      *presence.Coordinator
	Supervisor *presence.Supervisor
	Fanout     *realtime.Fanout
	Registry   *realtime.Registry
	Notifier   *realtime.Notifier
	Engine     *gin.Engine
}

// Options overrides pieces that tests need to control.
type Options struct {
	Relay realtime.Relay   // optional event mirror
	Clock func() time.Time // liveness clock, time.Now when nil
}

func New(cfg *config.Config, db *gorm.DB, logger *slog.Logger, opts Options) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, DB: db, Log: logger}

	a.Audit = store.NewAuditLog(db, cfg.Security.EncryptionKey)
	breaks := store.NewBreakLog(db)
	a.Gate = store.NewCapacityGate(db, cfg.Status.DefaultBreakCapacity, a.Audit)
	a.Status = store.NewStatusStore(db, breaks, a.Gate, a.Audit,
		time.Duration(cfg.Status.ExtendedBreakMinutes)*time.Minute)
	a.Users = store.NewUserStore(db)

	a.Fanout = realtime.NewFanout(opts.Relay)
	a.Registry = realtime.NewRegistry()
	a.Tracker = presence.NewTracker(opts.Clock)
	ttl := cfg.Presence.OnlineTTL
	a.Notifier = realtime.NewNotifier(a.Fanout, a.Status, a.Gate,
		func() []uint { return a.Tracker.ListOnline(ttl) }, logger)

	a.Coord = presence.NewCoordinator(a.Tracker, a.Status, a.Notifier, a.Registry, presence.Options{
		OnlineTTL:   ttl,
		GracePeriod: cfg.Presence.GracePeriod,
		Logger:      logger,
	})
	a.Supervisor = presence.NewSupervisor(a.Coord, cfg.Presence.SweepInterval, logger)

	a.Engine = router.SetupRouter(router.Deps{
		Config:   cfg,
		Logger:   logger,
		Users:    a.Users,
		Status:   a.Status,
		Gate:     a.Gate,
		Audit:    a.Audit,
		Coord:    a.Coord,
		Notifier: a.Notifier,
		Fanout:   a.Fanout,
		Registry: a.Registry,
	})
	return a
}

// Prepare migrates the schema, seeds missing capacities and repairs state
// left behind by the previous process.
func (a *App) Prepare(ctx context.Context) error {
	if err := database.AutoMigrate(a.DB); err != nil {
		return err
	}
	if err := database.SeedCapacities(a.DB, a.Config.Status.DefaultBreakCapacity); err != nil {
		return err
	}
	res, err := a.Status.RecoverOnStartup(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	a.Log.Info("startup recovery done",
		"closed_sessions", res.ClosedSessions,
		"offlined_users", res.OfflinedUsers)
	return nil
}

func (a *App) Close() {
	a.Fanout.Close()
}
