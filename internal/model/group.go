package model

import "time"

// Group is the current-state record for a directory group.
type Group struct {
	GroupID     int64      `gorm:"column:group_id;primaryKey;autoIncrement"`
	GroupName   string     `gorm:"column:group_name;size:190;not null;uniqueIndex"`
	Description string     `gorm:"column:description;size:512"`
	Properties  Properties `gorm:"column:properties;type:text;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	ModifiedAt  time.Time  `gorm:"column:modified_at;not null"`
	Version     int64      `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string {
	return "groups"
}

// Fields exposes the group's state for change detection.
func (g Group) Fields() map[string]any {
	return map[string]any{
		"group_name":  g.GroupName,
		"description": g.Description,
		"properties":  g.Properties.Canonical(),
		"modified_at": g.ModifiedAt,
		"version":     g.Version,
	}
}
