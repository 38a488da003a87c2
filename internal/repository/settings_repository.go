package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tynles/internal/model"
)

// SettingsRepository stores per-user notification preferences.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Find returns the user's settings or the defaults when none are stored.
func (r *SettingsRepository) Find(ctx context.Context, userID uint) (model.NotificationSettings, error) {
	var settings model.NotificationSettings
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&settings).Error
	if err != nil {
		return model.NotificationSettings{}, fmt.Errorf("find settings: %w", err)
	}
	if settings.UserID == 0 {
		return model.DefaultNotificationSettings(userID), nil
	}
	return settings, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, settings model.NotificationSettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reminders_enabled", "reminder_hours_before", "poke_enabled", "updated_at"}),
	}).Create(&settings).Error
}

// MaxLeadHours is the largest reminder lead time any enabled user asked for,
// never below the default.
func (r *SettingsRepository) MaxLeadHours(ctx context.Context) (int, error) {
	var hours []int
	if err := r.db.WithContext(ctx).Model(&model.NotificationSettings{}).
		Where("reminders_enabled = ?", true).
		Order("reminder_hours_before DESC").
		Limit(1).
		Pluck("reminder_hours_before", &hours).Error; err != nil {
		return 0, fmt.Errorf("max lead time: %w", err)
	}
	lead := model.DefaultReminderHoursBefore
	if len(hours) > 0 && hours[0] > lead {
		lead = hours[0]
	}
	return lead, nil
}
