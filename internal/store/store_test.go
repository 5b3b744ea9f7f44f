package store

import (
	"path/filepath"
	"testing"
	"time"

	"breaktopia/internal/config"
	"breaktopia/internal/database"
	"breaktopia/internal/models"

	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	users  *UserStore
	breaks *BreakLog
	gate   *CapacityGate
	audit  *AuditLog
	status *StatusStore
}

// setupTestDB opens a fresh sqlite file under the test's temp dir.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "store_test.db"),
	})
	if err != nil {
		t.Fatalf("Init test database failed: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newFixture(t *testing.T, encryptKey string) *fixture {
	t.Helper()
	db := setupTestDB(t)
	audit := NewAuditLog(db, encryptKey)
	breaks := NewBreakLog(db)
	gate := NewCapacityGate(db, 2, audit)
	return &fixture{
		db:     db,
		users:  NewUserStore(db),
		breaks: breaks,
		gate:   gate,
		audit:  audit,
		status: NewStatusStore(db, breaks, gate, audit, 15*time.Minute),
	}
}

func (f *fixture) team(t *testing.T, name string) *models.Team {
	t.Helper()
	team := models.Team{Name: name, Code: name, IsActive: true}
	if err := f.db.Create(&team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	return &team
}

func (f *fixture) capacity(t *testing.T, teamID uint, n int) {
	t.Helper()
	row := models.TeamCapacity{TeamID: teamID, BreakCapacity: n}
	if err := f.db.Omit("Team").Create(&row).Error; err != nil {
		t.Fatalf("create capacity: %v", err)
	}
}

func (f *fixture) user(t *testing.T, email string, teamID *uint, approval string) *models.User {
	t.Helper()
	u := models.User{
		Email:          email,
		PasswordHash:   "x",
		FirstName:      "First",
		LastName:       email,
		Role:           models.RoleUser,
		TeamID:         teamID,
		ApprovalStatus: approval,
	}
	if err := f.db.Omit("Team").Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &u
}

func (f *fixture) setClock(now time.Time) {
	f.status.now = func() time.Time { return now }
}

// openSessions counts the user's open sessions.
func (f *fixture) openSessions(t *testing.T, userID uint) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.BreakSession{}).
		Where("user_id = ? AND ended_at IS NULL", userID).
		Count(&n).Error; err != nil {
		t.Fatalf("count open sessions: %v", err)
	}
	return n
}

// assertInvariant checks status == break exactly when one session is open.
func (f *fixture) assertInvariant(t *testing.T, userID uint) {
	t.Helper()
	rec, _, err := currentStatus(f.db, userID)
	if err != nil {
		t.Fatalf("load status: %v", err)
	}
	open := f.openSessions(t, userID)
	if open > 1 {
		t.Fatalf("user %d has %d open sessions", userID, open)
	}
	if (rec.Status == models.StatusBreak) != (open == 1) {
		t.Fatalf("user %d status %q with %d open sessions", userID, rec.Status, open)
	}
}

func uintPtr(v uint) *uint { return &v }
