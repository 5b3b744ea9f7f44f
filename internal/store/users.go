package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"breaktopia/internal/models"

	"gorm.io/gorm"
)

// UserStore reads user identities. Registration and approval live elsewhere.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Get loads a user with their team.
func (u *UserStore) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := u.db.WithContext(ctx).Preload("Team").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// ByEmail looks a user up by e-mail, case-insensitively.
func (u *UserStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).Preload("Team").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// TeamMembers returns the ids of approved members of a team.
func (u *UserStore) TeamMembers(ctx context.Context, teamID uint) ([]uint, error) {
	var ids []uint
	if err := u.db.WithContext(ctx).Model(&models.User{}).
		Where("team_id = ? AND approval_status = ?", teamID, models.ApprovalApproved).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	return ids, nil
}
