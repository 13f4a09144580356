// Package memberships manages the hyperedges linking users and groups, the
// attachment lifecycle, and the write-time cycle guard for nesting edges.
package memberships

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
	errMissingDatabase = errors.New("memberships: database handle is required")
	errMissingResolver = errors.New("memberships: graph resolver is required")
	// ErrInvalidMembership indicates that membership input failed field validation.
	ErrInvalidMembership = errors.New("memberships: invalid membership")
)

// ServiceConfig describes the dependencies of the membership service.
type ServiceConfig struct {
	Database *gorm.DB
	Resolver *graph.Resolver
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns attachment mutations. Attachments are soft-expired by closing
// their windows; rows are never deleted. Cycle validation runs before any
// nesting edge is persisted, inside the same transaction that persists it.
type Service struct {
	db       *gorm.DB
	resolver *graph.Resolver
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the membership service.
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

// Create inserts a standalone membership with its first history window.
func (s *Service) Create(ctx context.Context, name string) (*model.Membership, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: membership name is required", ErrInvalidMembership)
	}

	now := s.clock().UTC()
	membership := model.Membership{MembershipName: trimmed, CreatedAt: now}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&membership).Error; err != nil {
			return fmt.Errorf("memberships: create membership %q: %w", trimmed, err)
		}
		return history.Transition(tx,
			history.KeyFor("membership_id", membership.MembershipID),
			&model.MembershipHistory{MembershipID: membership.MembershipID, MembershipName: membership.MembershipName},
			now)
	})
	if err != nil {
		s.logger.Error("membership create failed", zap.String("membership_name", trimmed), zap.Error(err))
		return nil, err
	}
	return &membership, nil
}

// Get returns the current state of a membership.
func (s *Service) Get(ctx context.Context, membershipID int64) (*model.Membership, error) {
	var membership model.Membership
	err := s.db.WithContext(ctx).Where("membership_id = ?", membershipID).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: membership %d", model.ErrNotFound, membershipID)
	}
	if err != nil {
		return nil, fmt.Errorf("memberships: load membership %d: %w", membershipID, err)
	}
	return &membership, nil
}

// List returns all memberships ordered by name.
func (s *Service) List(ctx context.Context) ([]model.Membership, error) {
	var memberships []model.Membership
	if err := s.db.WithContext(ctx).Order("membership_name ASC").Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("memberships: list memberships: %w", err)
	}
	return memberships, nil
}

// AddUser attaches the user to the membership. At most one active attachment
// may exist per pair; a duplicate is an invalid association.
func (s *Service) AddUser(ctx context.Context, userID, membershipID int64, effectiveAt *time.Time) (*model.UserMembership, error) {
	start := s.effectiveTime(effectiveAt)
	var attachment model.UserMembership

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &model.User{}, "user_id", userID); err != nil {
			return err
		}
		if err := requireRow(tx, &model.Membership{}, "membership_id", membershipID); err != nil {
			return err
		}

		var activeCount int64
		if err := tx.Model(&model.UserMembership{}).
			Where("user_id = ? AND membership_id = ? AND end_date IS NULL", userID, membershipID).
			Count(&activeCount).Error; err != nil {
			return fmt.Errorf("memberships: check active attachment: %w", err)
		}
		if activeCount > 0 {
			return fmt.Errorf("%w: user %d already attached to membership %d",
				model.ErrInvalidAssociation, userID, membershipID)
		}

		attachment = model.UserMembership{UserID: userID, MembershipID: membershipID, StartDate: start}
		if err := tx.Create(&attachment).Error; err != nil {
			return fmt.Errorf("memberships: attach user %d to membership %d: %w", userID, membershipID, err)
		}
		return history.Transition(tx,
			history.KeyFor("user_membership_id", attachment.UserMembershipID),
			&model.UserMembershipHistory{
				UserMembershipID: attachment.UserMembershipID,
				UserID:           userID,
				MembershipID:     membershipID,
			},
			start)
	})
	if err != nil {
		s.logError("memberships.add_user", err, userID, membershipID)
		return nil, err
	}
	return &attachment, nil
}

// RemoveUser soft-expires the user's active attachment to the membership by
// closing both the association window and its history window.
func (s *Service) RemoveUser(ctx context.Context, userID, membershipID int64, effectiveAt *time.Time) error {
	end := s.effectiveTime(effectiveAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attachment model.UserMembership
		err := tx.Where("user_id = ? AND membership_id = ? AND end_date IS NULL", userID, membershipID).
			First(&attachment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no active attachment of user %d to membership %d",
				model.ErrNotFound, userID, membershipID)
		}
		if err != nil {
			return fmt.Errorf("memberships: load attachment: %w", err)
		}

		if err := tx.Model(&model.UserMembership{}).
			Where("user_membership_id = ?", attachment.UserMembershipID).
			Update("end_date", end).Error; err != nil {
			return fmt.Errorf("memberships: close attachment window: %w", err)
		}
		return history.CloseActive(tx,
			model.UserMembershipHistory{}.TableName(),
			history.KeyFor("user_membership_id", attachment.UserMembershipID),
			end)
	})
	if err != nil {
		s.logError("memberships.remove_user", err, userID, membershipID)
	}
	return err
}

// AddGroup attaches the group to the membership. When the membership is
// another group's roster, the attachment nests the owner inside the attaching
// group, so the cycle guard runs first; the edge is persisted only after
// validation passes, within the same transaction.
func (s *Service) AddGroup(ctx context.Context, groupID, membershipID int64, effectiveAt *time.Time) (*model.GroupMembership, error) {
	start := s.effectiveTime(effectiveAt)
	var attachment model.GroupMembership

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &model.Group{}, "group_id", groupID); err != nil {
			return err
		}
		var membership model.Membership
		err := tx.Where("membership_id = ?", membershipID).First(&membership).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: membership %d", model.ErrNotFound, membershipID)
		}
		if err != nil {
			return fmt.Errorf("memberships: load membership %d: %w", membershipID, err)
		}

		var activeCount int64
		if err := tx.Model(&model.GroupMembership{}).
			Where("group_id = ? AND membership_id = ? AND end_date IS NULL", groupID, membershipID).
			Count(&activeCount).Error; err != nil {
			return fmt.Errorf("memberships: check active attachment: %w", err)
		}
		if activeCount > 0 {
			return fmt.Errorf("%w: group %d already attached to membership %d",
				model.ErrInvalidAssociation, groupID, membershipID)
		}

		if membership.OwnerGroupID != nil && *membership.OwnerGroupID != groupID {
			if err := s.resolver.WithTx(tx).ValidateNoCycle(ctx, groupID, *membership.OwnerGroupID); err != nil {
				return err
			}
		}

		attachment = model.GroupMembership{GroupID: groupID, MembershipID: membershipID, StartDate: start}
		if err := tx.Create(&attachment).Error; err != nil {
			return fmt.Errorf("memberships: attach group %d to membership %d: %w", groupID, membershipID, err)
		}
		return history.Transition(tx,
			history.KeyFor("group_membership_id", attachment.GroupMembershipID),
			&model.GroupMembershipHistory{
				GroupMembershipID: attachment.GroupMembershipID,
				GroupID:           groupID,
				MembershipID:      membershipID,
			},
			start)
	})
	if err != nil {
		s.logError("memberships.add_group", err, groupID, membershipID)
		return nil, err
	}
	return &attachment, nil
}

// RemoveGroup soft-expires the group's active attachment to the membership.
func (s *Service) RemoveGroup(ctx context.Context, groupID, membershipID int64, effectiveAt *time.Time) error {
	end := s.effectiveTime(effectiveAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attachment model.GroupMembership
		err := tx.Where("group_id = ? AND membership_id = ? AND end_date IS NULL", groupID, membershipID).
			First(&attachment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no active attachment of group %d to membership %d",
				model.ErrNotFound, groupID, membershipID)
		}
		if err != nil {
			return fmt.Errorf("memberships: load attachment: %w", err)
		}

		if err := tx.Model(&model.GroupMembership{}).
			Where("group_membership_id = ?", attachment.GroupMembershipID).
			Update("end_date", end).Error; err != nil {
			return fmt.Errorf("memberships: close attachment window: %w", err)
		}
		return history.CloseActive(tx,
			model.GroupMembershipHistory{}.TableName(),
			history.KeyFor("group_membership_id", attachment.GroupMembershipID),
			end)
	})
	if err != nil {
		s.logError("memberships.remove_group", err, groupID, membershipID)
	}
	return err
}

// UserMemberships returns the user's attachment windows, active ones only
// unless historical windows are requested.
func (s *Service) UserMemberships(ctx context.Context, userID int64, includeHistorical bool) ([]model.UserMembershipHistory, error) {
	if err := requireRow(s.db.WithContext(ctx), &model.User{}, "user_id", userID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeHistorical {
		now := s.clock().UTC()
		query = query.Where("end_date IS NULL OR end_date > ?", now)
	}
	var records []model.UserMembershipHistory
	if err := query.Order("start_date DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("memberships: load user %d attachments: %w", userID, err)
	}
	return records, nil
}

// GroupMemberships returns the group's attachment windows.
func (s *Service) GroupMemberships(ctx context.Context, groupID int64, includeHistorical bool) ([]model.GroupMembershipHistory, error) {
	if err := requireRow(s.db.WithContext(ctx), &model.Group{}, "group_id", groupID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("group_id = ?", groupID)
	if !includeHistorical {
		now := s.clock().UTC()
		query = query.Where("end_date IS NULL OR end_date > ?", now)
	}
	var records []model.GroupMembershipHistory
	if err := query.Order("start_date DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("memberships: load group %d attachments: %w", groupID, err)
	}
	return records, nil
}

func (s *Service) effectiveTime(effectiveAt *time.Time) time.Time {
	if effectiveAt != nil {
		return effectiveAt.UTC()
	}
	return s.clock().UTC()
}

func (s *Service) logError(operation string, err error, subjectID, membershipID int64) {
	s.logger.Error("membership operation failed",
		zap.String("operation", operation),
		zap.Int64("subject_id", subjectID),
		zap.Int64("membership_id", membershipID),
		zap.Error(err))
}

func requireRow(tx *gorm.DB, probe any, column string, id int64) error {
	var count int64
	if err := tx.Model(probe).Where(column+" = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("memberships: look up %s %d: %w", column, id, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %d", model.ErrNotFound, column, id)
	}
	return nil
}
