package model

import "time"

// Membership is the hyperedge entity linking a group to the users and groups
// that belong to it. Both users and groups attach to it; when OwnerGroupID is
// set the membership is that group's roster, and any other group holding an
// active attachment to it nests the owner inside itself.
type Membership struct {
	MembershipID   int64     `gorm:"column:membership_id;primaryKey;autoIncrement"`
	MembershipName string    `gorm:"column:membership_name;size:190;not null"`
	OwnerGroupID   *int64    `gorm:"column:owner_group_id;index"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "memberships"
}

// UserMembership attaches a user to a membership. Removal closes the window;
// rows are never deleted.
type UserMembership struct {
	UserMembershipID int64      `gorm:"column:user_membership_id;primaryKey;autoIncrement"`
	UserID           int64      `gorm:"column:user_id;not null;index:idx_user_membership_pair,priority:1"`
	MembershipID     int64      `gorm:"column:membership_id;not null;index:idx_user_membership_pair,priority:2"`
	StartDate        time.Time  `gorm:"column:start_date;not null"`
	EndDate          *time.Time `gorm:"column:end_date"`
}

// TableName provides the explicit table binding for GORM.
func (UserMembership) TableName() string {
	return "user_memberships"
}

// ActiveAt reports whether the association window covers the given instant.
func (m UserMembership) ActiveAt(at time.Time) bool {
	return windowContains(m.StartDate, m.EndDate, at)
}

// GroupMembership attaches a group to a membership.
type GroupMembership struct {
	GroupMembershipID int64      `gorm:"column:group_membership_id;primaryKey;autoIncrement"`
	GroupID           int64      `gorm:"column:group_id;not null;index:idx_group_membership_pair,priority:1"`
	MembershipID      int64      `gorm:"column:membership_id;not null;index:idx_group_membership_pair,priority:2"`
	StartDate         time.Time  `gorm:"column:start_date;not null"`
	EndDate           *time.Time `gorm:"column:end_date"`
}

// TableName provides the explicit table binding for GORM.
func (GroupMembership) TableName() string {
	return "group_memberships"
}

// ActiveAt reports whether the association window covers the given instant.
func (m GroupMembership) ActiveAt(at time.Time) bool {
	return windowContains(m.StartDate, m.EndDate, at)
}

// windowContains applies the shared boundary rule: start-inclusive, end-exclusive.
func windowContains(start time.Time, end *time.Time, at time.Time) bool {
	if start.After(at) {
		return false
	}
	return end == nil || end.After(at)
}
