package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"breaktopia/internal/models"
	"breaktopia/internal/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEvent is what callers hand to the audit sink. Actor and Target are
// snapshotted at write time.
type AuditEvent struct {
	Actor      *models.User
	Action     string
	Target     *models.User
	TargetTeam string
	Metadata   map[string]any
}

// AuditLog persists audit entries. Metadata is encrypted at rest when a key is set.
type AuditLog struct {
	db         *gorm.DB
	encryptKey string
}

func NewAuditLog(db *gorm.DB, encryptKey string) *AuditLog {
	return &AuditLog{db: db, encryptKey: encryptKey}
}

// Record writes one entry using tx, so it commits or rolls back with the
// transition it describes.
func (a *AuditLog) Record(tx *gorm.DB, ev AuditEvent) error {
	meta := ""
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		meta = string(b)
	}

	entry := models.AuditEntry{
		EventID:    uuid.NewString(),
		ActionType: ev.Action,
		TargetTeam: ev.TargetTeam,
	}
	if ev.Actor != nil {
		id := ev.Actor.ID
		entry.ActorUserID = &id
		entry.ActorEmail = ev.Actor.Email
		entry.ActorRole = ev.Actor.Role
	}
	if ev.Target != nil {
		id := ev.Target.ID
		entry.TargetID = &id
		entry.TargetEmail = ev.Target.Email
	}

	if a.encryptKey != "" && meta != "" {
		enc, err := util.EncryptField(a.encryptKey, meta)
		if err != nil {
			return fmt.Errorf("encrypt audit metadata: %w", err)
		}
		entry.MetadataEnc = enc
	} else {
		entry.Metadata = meta
	}

	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// AuditView is an audit entry with its metadata decoded.
type AuditView struct {
	ID          uint           `json:"id"`
	EventID     string         `json:"eventId"`
	ActorUserID *uint          `json:"actorUserId"`
	ActorEmail  string         `json:"actorEmail"`
	ActorRole   string         `json:"actorRole"`
	ActionType  string         `json:"actionType"`
	TargetID    *uint          `json:"targetUserId"`
	TargetEmail string         `json:"targetEmail"`
	TargetTeam  string         `json:"targetTeam"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// AuditQuery filters List. Zero values mean "no filter".
type AuditQuery struct {
	Action     string
	TargetID   uint
	TargetTeam string
	Search     string // substring of actor or target e-mail
	Since      time.Time
	Page       int
	Size       int
}

// List returns entries newest first, plus the total matching count.
func (a *AuditLog) List(ctx context.Context, q AuditQuery) ([]AuditView, int64, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 100 {
		q.Size = 20
	}

	base := a.db.WithContext(ctx).Model(&models.AuditEntry{})
	if q.Action != "" {
		base = base.Where("action_type = ?", q.Action)
	}
	if q.TargetID != 0 {
		base = base.Where("target_id = ?", q.TargetID)
	}
	if q.TargetTeam != "" {
		base = base.Where("target_team = ?", q.TargetTeam)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + s + "%"
		base = base.Where("(actor_email LIKE ? OR target_email LIKE ?)", like, like)
	}
	if !q.Since.IsZero() {
		base = base.Where("created_at >= ?", q.Since.UTC())
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	var rows []models.AuditEntry
	if err := base.
		Order("created_at DESC, id DESC").
		Limit(q.Size).
		Offset((q.Page - 1) * q.Size).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}

	out := make([]AuditView, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		meta := r.Metadata
		if meta == "" && r.MetadataEnc != "" {
			meta = util.DecryptField(a.encryptKey, r.MetadataEnc)
		}
		var decoded map[string]any
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &decoded)
		}
		out = append(out, AuditView{
			ID:          r.ID,
			EventID:     r.EventID,
			ActorUserID: r.ActorUserID,
			ActorEmail:  r.ActorEmail,
			ActorRole:   r.ActorRole,
			ActionType:  r.ActionType,
			TargetID:    r.TargetID,
			TargetEmail: r.TargetEmail,
			TargetTeam:  r.TargetTeam,
			Metadata:    decoded,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, total, nil
}
