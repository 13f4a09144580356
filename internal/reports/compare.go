package reports

import (
	"context"
	"fmt"

	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
)

// FieldChange records one field differing between two snapshots of the same
// entity.
type FieldChange struct {
	Field string `json:"field"`
	Left  any    `json:"left"`
	Right any    `json:"right"`
}

// EntityDiff records all field changes for one entity present in both reports.
type EntityDiff struct {
	Name    string        `json:"name"`
	Changes []FieldChange `json:"changes"`
}

// Diff is the comparison of two completed reports, keyed by entity name.
// "Added" means present only in the right report, "Removed" only in the left.
type Diff struct {
	LeftReportUID  string       `json:"left_report_uid"`
	RightReportUID string       `json:"right_report_uid"`
	GroupsAdded    []string     `json:"groups_added"`
	GroupsRemoved  []string     `json:"groups_removed"`
	GroupsChanged  []EntityDiff `json:"groups_changed"`
	UsersAdded     []string     `json:"users_added"`
	UsersRemoved   []string     `json:"users_removed"`
	UsersChanged   []EntityDiff `json:"users_changed"`
}

// Compare diffs two completed reports. Entities are matched by name; for names
// present on both sides the resolved member lists and properties are compared
// field by field.
func (s *Service) Compare(ctx context.Context, leftID, rightID int64) (*Diff, error) {
	left, err := s.Get(ctx, leftID)
	if err != nil {
		return nil, err
	}
	right, err := s.Get(ctx, rightID)
	if err != nil {
		return nil, err
	}
	if left.Report.Status != model.ReportStatusCompleted {
		return nil, fmt.Errorf("%w: report %s is %s", ErrReportNotCompleted, left.Report.ReportUID, left.Report.Status)
	}
	if right.Report.Status != model.ReportStatusCompleted {
		return nil, fmt.Errorf("%w: report %s is %s", ErrReportNotCompleted, right.Report.ReportUID, right.Report.Status)
	}

	diff := Diff{
		LeftReportUID:  left.Report.ReportUID,
		RightReportUID: right.Report.ReportUID,
	}
	diff.GroupsAdded, diff.GroupsRemoved, diff.GroupsChanged = compareGroupSnapshots(left.GroupSnapshots, right.GroupSnapshots)
	diff.UsersAdded, diff.UsersRemoved, diff.UsersChanged = compareUserSnapshots(left.UserSnapshots, right.UserSnapshots)
	return &diff, nil
}

func compareGroupSnapshots(left, right []model.GroupSnapshot) (added, removed []string, changed []EntityDiff) {
	leftByName := make(map[string]model.GroupSnapshot, len(left))
	for _, snapshot := range left {
		leftByName[snapshot.GroupName] = snapshot
	}
	for _, snapshot := range right {
		before, present := leftByName[snapshot.GroupName]
		if !present {
			added = append(added, snapshot.GroupName)
			continue
		}
		delete(leftByName, snapshot.GroupName)
		changes := groupFieldChanges(before, snapshot)
		if len(changes) > 0 {
			changed = append(changed, EntityDiff{Name: snapshot.GroupName, Changes: changes})
		}
	}
	for _, snapshot := range left {
		if _, stillPresent := leftByName[snapshot.GroupName]; stillPresent {
			removed = append(removed, snapshot.GroupName)
		}
	}
	return added, removed, changed
}

func compareUserSnapshots(left, right []model.UserSnapshot) (added, removed []string, changed []EntityDiff) {
	leftByName := make(map[string]model.UserSnapshot, len(left))
	for _, snapshot := range left {
		leftByName[snapshot.UserName] = snapshot
	}
	for _, snapshot := range right {
		before, present := leftByName[snapshot.UserName]
		if !present {
			added = append(added, snapshot.UserName)
			continue
		}
		delete(leftByName, snapshot.UserName)
		changes := userFieldChanges(before, snapshot)
		if len(changes) > 0 {
			changed = append(changed, EntityDiff{Name: snapshot.UserName, Changes: changes})
		}
	}
	for _, snapshot := range left {
		if _, stillPresent := leftByName[snapshot.UserName]; stillPresent {
			removed = append(removed, snapshot.UserName)
		}
	}
	return added, removed, changed
}

func groupFieldChanges(before, after model.GroupSnapshot) []FieldChange {
	var changes []FieldChange
	changes = appendNameListChange(changes, "direct_members", before.DirectMembers, after.DirectMembers)
	changes = appendNameListChange(changes, "nested_members", before.NestedMembers, after.NestedMembers)
	changes = appendNameListChange(changes, "member_of", before.MemberOf, after.MemberOf)
	changes = appendNameListChange(changes, "all_parent_groups", before.AllParentGroups, after.AllParentGroups)
	if before.Description != after.Description {
		changes = append(changes, FieldChange{Field: "description", Left: before.Description, Right: after.Description})
	}
	changes = appendPropertiesChange(changes, before.Properties, after.Properties)
	return changes
}

func userFieldChanges(before, after model.UserSnapshot) []FieldChange {
	var changes []FieldChange
	changes = appendNameListChange(changes, "direct_groups", before.DirectGroups, after.DirectGroups)
	changes = appendNameListChange(changes, "effective_groups", before.EffectiveGroups, after.EffectiveGroups)
	if before.Email != after.Email {
		changes = append(changes, FieldChange{Field: "email", Left: before.Email, Right: after.Email})
	}
	if before.FullName != after.FullName {
		changes = append(changes, FieldChange{Field: "full_name", Left: before.FullName, Right: after.FullName})
	}
	if before.PrincipalName != after.PrincipalName {
		changes = append(changes, FieldChange{Field: "principal_name", Left: before.PrincipalName, Right: after.PrincipalName})
	}
	changes = appendPropertiesChange(changes, before.Properties, after.Properties)
	return changes
}

func appendNameListChange(changes []FieldChange, field string, before, after model.NameList) []FieldChange {
	if nameListsEqual(before, after) {
		return changes
	}
	return append(changes, FieldChange{Field: field, Left: []string(before), Right: []string(after)})
}

func appendPropertiesChange(changes []FieldChange, before, after model.Properties) []FieldChange {
	if before.Canonical() == after.Canonical() {
		return changes
	}
	return append(changes, FieldChange{Field: "properties", Left: map[string]any(before), Right: map[string]any(after)})
}

func nameListsEqual(left, right model.NameList) bool {
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}
