package model

import "time"

// History records shadow every versioned entity and association. Each record
// snapshots the natural-key fields of its subject over one [start, end) window;
// a null end date marks the currently active window.

// UserHistory is one version window of a user.
type UserHistory struct {
	UserHistoryID int64      `gorm:"column:user_history_id;primaryKey;autoIncrement"`
	UserID        int64      `gorm:"column:user_id;not null;index"`
	UserName      string     `gorm:"column:user_name;size:190;not null"`
	StartDate     time.Time  `gorm:"column:start_date;not null"`
	EndDate       *time.Time `gorm:"column:end_date"`
}

// TableName provides the explicit table binding for GORM.
func (UserHistory) TableName() string {
	return "user_history"
}

// Window exposes the record's validity interval.
func (h *UserHistory) Window() (time.Time, *time.Time) {
	return h.StartDate, h.EndDate
}

// OpenWindow starts a fresh active window at the given instant.
func (h *UserHistory) OpenWindow(start time.Time) {
	h.StartDate = start
	h.EndDate = nil
}

// GroupHistory is one version window of a group.
type GroupHistory struct {
	GroupHistoryID int64      `gorm:"column:group_history_id;primaryKey;autoIncrement"`
	GroupID        int64      `gorm:"column:group_id;not null;index"`
	GroupName      string     `gorm:"column:group_name;size:190;not null"`
	StartDate      time.Time  `gorm:"column:start_date;not null"`
	EndDate        *time.Time `gorm:"column:end_date"`
}

// TableName provides the explicit table binding for GORM.
func (GroupHistory) TableName() string {
	return "group_history"
}

// Window exposes the record's validity interval.
func (h *GroupHistory) Window() (time.Time, *time.Time) {
	return h.StartDate, h.EndDate
}

// OpenWindow starts a fresh active window at the given instant.
func (h *GroupHistory) OpenWindow(start time.Time) {
	h.StartDate = start
	h.EndDate = nil
}

// MembershipHistory is one version window of a membership.
type MembershipHistory struct {
	MembershipHistoryID int64      `gorm:"column:membership_history_id;primaryKey;autoIncrement"`
	MembershipID        int64      `gorm:"column:membership_id;not null;index"`
	MembershipName      string     `gorm:"column:membership_name;size:190;not null"`
	StartDate           time.Time  `gorm:"column:start_date;not null"`
	EndDate             *time.Time `gorm:"column:end_date"`
}

// TableName provides the explicit table binding for GORM.
func (MembershipHistory) TableName() string {
	return "membership_history"
}

// Window exposes the record's validity interval.
func (h *MembershipHistory) Window() (time.Time, *time.Time) {
	return h.StartDate, h.EndDate
}

// OpenWindow starts a fresh active window at the given instant.
func (h *MembershipHistory) OpenWindow(start time.Time) {
	h.StartDate = start
	h.EndDate = nil
}

// UserMembershipHistory is one version window of a user-membership attachment.
type UserMembershipHistory struct {
	UserMembershipHistoryID int64      `gorm:"column:user_membership_history_id;primaryKey;autoIncrement"`
	UserMembershipID        int64      `gorm:"column:user_membership_id;not null;index"`
	UserID                  int64      `gorm:"column:user_id;not null;index"`
	MembershipID            int64      `gorm:"column:membership_id;not null"`
	StartDate               time.Time  `gorm:"column:start_date;not null"`
	EndDate                 *time.Time `gorm:"column:end_date"`
}

// TableName provides the explicit table binding for GORM.
func (UserMembershipHistory) TableName() string {
	return "user_membership_history"
}

// Window exposes the record's validity interval.
func (h *UserMembershipHistory) Window() (time.Time, *time.Time) {
	return h.StartDate, h.EndDate
}

// OpenWindow starts a fresh active window at the given instant.
func (h *UserMembershipHistory) OpenWindow(start time.Time) {
	h.StartDate = start
	h.EndDate = nil
}

// GroupMembershipHistory is one version window of a group-membership attachment.
type GroupMembershipHistory struct {
	GroupMembershipHistoryID int64      `gorm:"column:group_membership_history_id;primaryKey;autoIncrement"`
	GroupMembershipID        int64      `gorm:"column:group_membership_id;not null;index"`
	GroupID                  int64      `gorm:"column:group_id;not null;index"`
	MembershipID             int64      `gorm:"column:membership_id;not null"`
	StartDate                time.Time  `gorm:"column:start_date;not null"`
	EndDate                  *time.Time `gorm:"column:end_date"`
}

// TableName provides the explicit table binding for GORM.
func (GroupMembershipHistory) TableName() string {
	return "group_membership_history"
}

// Window exposes the record's validity interval.
func (h *GroupMembershipHistory) Window() (time.Time, *time.Time) {
	return h.StartDate, h.EndDate
}

// OpenWindow starts a fresh active window at the given instant.
func (h *GroupMembershipHistory) OpenWindow(start time.Time) {
	h.StartDate = start
	h.EndDate = nil
}
