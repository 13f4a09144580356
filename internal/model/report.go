package model

import "time"

// ReportType selects the scope of a membership report.
type ReportType string

const (
	// ReportTypeFull captures every group and every user.
	ReportTypeFull ReportType = "full"
	// ReportTypeGroup captures a single group.
	ReportTypeGroup ReportType = "group_specific"
	// ReportTypeUser captures a single user.
	ReportTypeUser ReportType = "user_specific"
	// ReportTypeMembership captures a single membership hyperedge.
	ReportTypeMembership ReportType = "membership_specific"
)

// ReportStatus tracks the one-shot lifecycle of a report.
type ReportStatus string

const (
	// ReportStatusPending marks a report whose snapshots are not yet captured.
	ReportStatusPending ReportStatus = "pending"
	// ReportStatusCompleted marks a report whose full snapshot batch committed.
	ReportStatusCompleted ReportStatus = "completed"
	// ReportStatusFailed marks a report whose snapshot batch was rolled back.
	ReportStatusFailed ReportStatus = "failed"
)

// Report is a batch of snapshots produced together.
type Report struct {
	ReportID    int64        `gorm:"column:report_id;primaryKey;autoIncrement"`
	ReportUID   string       `gorm:"column:report_uid;size:190;not null;uniqueIndex"`
	ReportType  ReportType   `gorm:"column:report_type;size:64;not null"`
	TargetID    *int64       `gorm:"column:target_id"`
	Status      ReportStatus `gorm:"column:status;size:32;not null"`
	Properties  Properties   `gorm:"column:properties;type:text;not null"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null"`
	CompletedAt *time.Time   `gorm:"column:completed_at"`
}

// TableName provides the explicit table binding for GORM.
func (Report) TableName() string {
	return "membership_reports"
}

// GroupSnapshot is an immutable resolved capture of one group's membership
// state at the snapshot instant. Member lists hold resolved names, not
// references, so the snapshot stays valid after the live graph changes.
type GroupSnapshot struct {
	GroupSnapshotID int64      `gorm:"column:group_snapshot_id;primaryKey;autoIncrement"`
	ReportID        int64      `gorm:"column:report_id;not null;index"`
	GroupName       string     `gorm:"column:group_name;size:190;not null"`
	Description     string     `gorm:"column:description;size:512"`
	DirectMembers   NameList   `gorm:"column:direct_members;type:text;not null"`
	NestedMembers   NameList   `gorm:"column:nested_members;type:text;not null"`
	MemberOf        NameList   `gorm:"column:member_of;type:text;not null"`
	AllParentGroups NameList   `gorm:"column:all_parent_groups;type:text;not null"`
	Properties      Properties `gorm:"column:properties;type:text;not null"`
	SnapshotTime    time.Time  `gorm:"column:snapshot_time;not null"`
}

// TableName provides the explicit table binding for GORM.
func (GroupSnapshot) TableName() string {
	return "group_snapshots"
}

// UserSnapshot is an immutable resolved capture of one user's membership state.
type UserSnapshot struct {
	UserSnapshotID  int64      `gorm:"column:user_snapshot_id;primaryKey;autoIncrement"`
	ReportID        int64      `gorm:"column:report_id;not null;index"`
	UserName        string     `gorm:"column:user_name;size:190;not null"`
	Email           string     `gorm:"column:email;size:320;not null"`
	FullName        string     `gorm:"column:full_name;size:320;not null"`
	PrincipalName   string     `gorm:"column:principal_name;size:320;not null"`
	DirectGroups    NameList   `gorm:"column:direct_groups;type:text;not null"`
	EffectiveGroups NameList   `gorm:"column:effective_groups;type:text;not null"`
	Properties      Properties `gorm:"column:properties;type:text;not null"`
	SnapshotTime    time.Time  `gorm:"column:snapshot_time;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UserSnapshot) TableName() string {
	return "user_snapshots"
}

// MembershipSnapshot is an immutable capture of one membership hyperedge.
type MembershipSnapshot struct {
	MembershipSnapshotID int64     `gorm:"column:membership_snapshot_id;primaryKey;autoIncrement"`
	ReportID             int64     `gorm:"column:report_id;not null;index"`
	MembershipName       string    `gorm:"column:membership_name;size:190;not null"`
	OwnerGroupName       string    `gorm:"column:owner_group_name;size:190"`
	UserCount            int64     `gorm:"column:user_count;not null"`
	GroupCount           int64     `gorm:"column:group_count;not null"`
	Users                NameList  `gorm:"column:users;type:text;not null"`
	Groups               NameList  `gorm:"column:groups;type:text;not null"`
	SnapshotTime         time.Time `gorm:"column:snapshot_time;not null"`
}

// TableName provides the explicit table binding for GORM.
func (MembershipSnapshot) TableName() string {
	return "membership_snapshots"
}
