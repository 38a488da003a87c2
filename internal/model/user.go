package model

import "time"

// User stores Telegram user metadata.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName picks the friendliest non-empty name.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return "friend"
	}
}

// NotificationSettings holds per-user delivery preferences. Missing rows mean
// DefaultNotificationSettings.
type NotificationSettings struct {
	UserID              uint `gorm:"primaryKey"`
	RemindersEnabled    bool
	ReminderHoursBefore int
	PokeEnabled         bool
	UpdatedAt           time.Time
}

// DefaultReminderHoursBefore is the lead time used when a user has no settings.
const DefaultReminderHoursBefore = 2

// DefaultNotificationSettings returns the settings applied to users without a row.
func DefaultNotificationSettings(userID uint) NotificationSettings {
	return NotificationSettings{
		UserID:              userID,
		RemindersEnabled:    true,
		ReminderHoursBefore: DefaultReminderHoursBefore,
		PokeEnabled:         true,
	}
}

// LeadTime returns the reminder lead time, falling back to the default.
func (s NotificationSettings) LeadTime() time.Duration {
	hours := s.ReminderHoursBefore
	if hours <= 0 {
		hours = DefaultReminderHoursBefore
	}
	return time.Duration(hours) * time.Hour
}
