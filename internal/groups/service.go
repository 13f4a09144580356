// Package groups manages directory groups, their rosters and version history.
package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/graph"
	"github.com/OrgGraphLabs/orggraph/backend/internal/history"
	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("groups: database handle is required")
	errMissingResolver = errors.New("groups: graph resolver is required")
	// ErrInvalidGroup indicates that group input failed field validation.
	ErrInvalidGroup = errors.New("groups: invalid group")
)

// ServiceConfig describes the dependencies of the group service.
type ServiceConfig struct {
	Database *gorm.DB
	Resolver *graph.Resolver
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns group mutations. Creating a group also creates its roster
// membership, the hyperedge through which users and nested groups belong to
// it, and attaches the group to its own roster.
type Service struct {
	db       *gorm.DB
	resolver *graph.Resolver
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the group service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Resolver == nil {
		return nil, errMissingResolver
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, resolver: cfg.Resolver, clock: clock, logger: logger}, nil
}

// CreateGroupInput carries the fields for a new group.
type CreateGroupInput struct {
	GroupName   string
	Description string
	Properties  model.Properties
}

// Create inserts the group, its roster membership and the self-attachment,
// opening first history windows for all three in one transaction.
func (s *Service) Create(ctx context.Context, input CreateGroupInput) (*model.Group, error) {
	name := strings.TrimSpace(input.GroupName)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidGroup)
	}

	now := s.clock().UTC()
	properties := input.Properties
	if properties == nil {
		properties = model.Properties{}
	}
	group := model.Group{
		GroupName:   name,
		Description: strings.TrimSpace(input.Description),
		Properties:  properties,
		CreatedAt:   now,
		ModifiedAt:  now,
		Version:     1,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("groups: create group %q: %w", name, err)
		}
		if err := history.Transition(tx,
			history.KeyFor("group_id", group.GroupID),
			&model.GroupHistory{GroupID: group.GroupID, GroupName: group.GroupName},
			now); err != nil {
			return err
		}

		roster := model.Membership{
			MembershipName: name + "_members",
			OwnerGroupID:   &group.GroupID,
			CreatedAt:      now,
		}
		if err := tx.Create(&roster).Error; err != nil {
			return fmt.Errorf("groups: create roster for group %q: %w", name, err)
		}
		if err := history.Transition(tx,
			history.KeyFor("membership_id", roster.MembershipID),
			&model.MembershipHistory{MembershipID: roster.MembershipID, MembershipName: roster.MembershipName},
			now); err != nil {
			return err
		}

		attachment := model.GroupMembership{
			GroupID:      group.GroupID,
			MembershipID: roster.MembershipID,
			StartDate:    now,
		}
		if err := tx.Create(&attachment).Error; err != nil {
			return fmt.Errorf("groups: attach group %q to its roster: %w", name, err)
		}
		return history.Transition(tx,
			history.KeyFor("group_membership_id", attachment.GroupMembershipID),
			&model.GroupMembershipHistory{
				GroupMembershipID: attachment.GroupMembershipID,
				GroupID:           group.GroupID,
				MembershipID:      roster.MembershipID,
			},
			now)
	})
	if err != nil {
		s.logger.Error("group create failed", zap.String("group_name", name), zap.Error(err))
		return nil, err
	}
	return &group, nil
}

// UpdateGroupInput carries a partial update; nil fields are left untouched.
type UpdateGroupInput struct {
	GroupName   *string
	Description *string
	Properties  model.Properties
}

// Update applies the partial update, recording a history transition only when
// a non-bookkeeping field changed.
func (s *Service) Update(ctx context.Context, groupID int64, input UpdateGroupInput) (*model.Group, error) {
	var updated model.Group
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group model.Group
		if err := tx.Where("group_id = ?", groupID).First(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: group %d", model.ErrNotFound, groupID)
			}
			return fmt.Errorf("groups: load group %d: %w", groupID, err)
		}

		before := group.Fields()
		if input.GroupName != nil {
			group.GroupName = strings.TrimSpace(*input.GroupName)
		}
		if input.Description != nil {
			group.Description = strings.TrimSpace(*input.Description)
		}
		if input.Properties != nil {
			group.Properties = input.Properties
		}

		if !history.Changed(before, group.Fields()) {
			updated = group
			return nil
		}

		now := s.clock().UTC()
		group.ModifiedAt = now
		group.Version++
		if err := tx.Save(&group).Error; err != nil {
			return fmt.Errorf("groups: save group %d: %w", groupID, err)
		}
		if err := history.Transition(tx,
			history.KeyFor("group_id", group.GroupID),
			&model.GroupHistory{GroupID: group.GroupID, GroupName: group.GroupName},
			now); err != nil {
			return err
		}
		updated = group
		return nil
	})
	if err != nil {
		s.logger.Error("group update failed", zap.Int64("group_id", groupID), zap.Error(err))
		return nil, err
	}
	return &updated, nil
}

// Get returns the current state of a group.
func (s *Service) Get(ctx context.Context, groupID int64) (*model.Group, error) {
	var group model.Group
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: group %d", model.ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("groups: load group %d: %w", groupID, err)
	}
	return &group, nil
}

// List returns all groups ordered by name.
func (s *Service) List(ctx context.Context) ([]model.Group, error) {
	var groups []model.Group
	if err := s.db.WithContext(ctx).Order("group_name ASC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("groups: list groups: %w", err)
	}
	return groups, nil
}

// Members bundles the two resolution depths for one group.
type Members struct {
	Direct []string
	Nested []string
}

// Members resolves the group's direct and nested member usernames.
func (s *Service) Members(ctx context.Context, groupID int64) (*Members, error) {
	direct, err := s.resolver.DirectMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	nested, err := s.resolver.NestedMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &Members{Direct: direct, Nested: nested}, nil
}

// History returns the group's version windows, newest first.
func (s *Service) History(ctx context.Context, groupID int64) ([]model.GroupHistory, error) {
	if _, err := s.Get(ctx, groupID); err != nil {
		return nil, err
	}
	var records []model.GroupHistory
	if err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("start_date DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("groups: load history for group %d: %w", groupID, err)
	}
	return records, nil
}

// AsOf returns the group's state at the given past instant.
func (s *Service) AsOf(ctx context.Context, groupID int64, at time.Time) (*model.GroupHistory, error) {
	if _, err := s.Get(ctx, groupID); err != nil {
		return nil, err
	}
	var record model.GroupHistory
	if err := history.FindAsOf(s.db.WithContext(ctx), history.KeyFor("group_id", groupID), at, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// MembershipHistory returns the group's attachment windows, newest first.
func (s *Service) MembershipHistory(ctx context.Context, groupID int64) ([]model.GroupMembershipHistory, error) {
	if _, err := s.Get(ctx, groupID); err != nil {
		return nil, err
	}
	var records []model.GroupMembershipHistory
	if err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("start_date DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("groups: load membership history for group %d: %w", groupID, err)
	}
	return records, nil
}

// Roster returns the group's own roster membership.
func (s *Service) Roster(ctx context.Context, groupID int64) (*model.Membership, error) {
	if _, err := s.Get(ctx, groupID); err != nil {
		return nil, err
	}
	var roster model.Membership
	err := s.db.WithContext(ctx).Where("owner_group_id = ?", groupID).First(&roster).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: roster membership for group %d", model.ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("groups: load roster for group %d: %w", groupID, err)
	}
	return &roster, nil
}
