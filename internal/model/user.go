package model

import "time"

// User is the current-state record for a directory user.
type User struct {
	UserID        int64      `gorm:"column:user_id;primaryKey;autoIncrement"`
	UserName      string     `gorm:"column:user_name;size:190;not null;uniqueIndex"`
	Email         string     `gorm:"column:email;size:320;not null;uniqueIndex"`
	FullName      string     `gorm:"column:full_name;size:320;not null"`
	PrincipalName string     `gorm:"column:principal_name;size:320;not null;uniqueIndex"`
	Properties    Properties `gorm:"column:properties;type:text;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	ModifiedAt    time.Time  `gorm:"column:modified_at;not null"`
	Version       int64      `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Fields exposes the user's state for change detection. Bookkeeping columns
// are included; the detector skips them by name.
func (u User) Fields() map[string]any {
	return map[string]any{
		"user_name":      u.UserName,
		"email":          u.Email,
		"full_name":      u.FullName,
		"principal_name": u.PrincipalName,
		"properties":     u.Properties.Canonical(),
		"modified_at":    u.ModifiedAt,
		"version":        u.Version,
	}
}
