package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quocanhngo/tripzi/internal/model"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// UserRepository handles database operations for User
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID finds a user by Firebase uid
func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("User", err)
		}
		return nil, apperrors.Internal("Failed to get user", err)
	}
	return &user, nil
}

// FindByIDs returns the users found among ids, in no particular order
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	users := []model.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, apperrors.Internal("Failed to get users", err)
	}
	return users, nil
}

// Upsert creates the profile or refreshes the fields owned by the identity provider
func (r *UserRepository) Upsert(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "photo_url", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return apperrors.Internal("Failed to save user profile", err)
	}
	return nil
}

// Search searches users by display name or email (partial match)
func (r *UserRepository) Search(ctx context.Context, query, excludeUserID string, limit int) ([]model.User, error) {
	users := []model.User{}
	pattern := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("(display_name ILIKE ? OR email ILIKE ?) AND id != ?", pattern, pattern, excludeUserID).
		Order("display_name").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, apperrors.Internal("Failed to search users", err)
	}
	return users, nil
}

// UpdateOnlineStatus sets a user's online status and last seen time
func (r *UserRepository) UpdateOnlineStatus(ctx context.Context, id string, isOnline bool) error {
	updates := map[string]interface{}{
		"is_online": isOnline,
	}
	if !isOnline {
		updates["last_seen"] = gorm.Expr("NOW()")
	}
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates).Error
}

// AddDevice adds or refreshes a push token
func (r *UserRepository) AddDevice(ctx context.Context, device *model.UserDevice) error {
	now := time.Now()
	device.LastActiveAt = now
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_active_at": now,
			"provider":       device.Provider,
			"platform":       device.Platform,
		}),
	}).Create(device).Error
	if err != nil {
		return apperrors.Internal("Failed to register device", err)
	}
	return nil
}

// GetDevices returns every device registered by the listed users
func (r *UserRepository) GetDevices(ctx context.Context, userIDs []string) ([]model.UserDevice, error) {
	devices := []model.UserDevice{}
	if len(userIDs) == 0 {
		return devices, nil
	}
	err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&devices).Error
	return devices, err
}

// RemoveDevices drops tokens the push providers reported as invalid
func (r *UserRepository) RemoveDevices(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&model.UserDevice{}).Error
}
