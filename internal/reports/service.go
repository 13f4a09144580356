// Package reports materializes point-in-time views of the membership graph
// into immutable snapshot batches and compares them for audit.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/graph"
	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("reports: database handle is required")
	errMissingResolver = errors.New("reports: graph resolver is required")
	// ErrInvalidReport indicates a malformed generation or comparison request.
	ErrInvalidReport = errors.New("reports: invalid report request")
	// ErrReportNotCompleted indicates a comparison against a report that never completed.
	ErrReportNotCompleted = errors.New("reports: report not completed")
)

// IDProvider issues reference identifiers for reports.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ServiceConfig describes the dependencies of the report service.
type ServiceConfig struct {
	Database   *gorm.DB
	Resolver   *graph.Resolver
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service generates and compares membership reports. A report's status moves
// pending to completed exactly once; a failed batch is rolled back entirely so
// a completed report always carries its full snapshot set.
type Service struct {
	db         *gorm.DB
	resolver   *graph.Resolver
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger

	// beforeSnapshot, when set, runs before each snapshot insert. Test seam
	// for exercising mid-batch failures.
	beforeSnapshot func() error
}

// NewService constructs the report service.
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
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		resolver:   cfg.Resolver,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// GenerateInput describes a report request.
type GenerateInput struct {
	Type       model.ReportType
	TargetID   *int64
	Properties model.Properties
}

func (in GenerateInput) validate() error {
	switch in.Type {
	case model.ReportTypeFull:
		return nil
	case model.ReportTypeGroup, model.ReportTypeUser, model.ReportTypeMembership:
		if in.TargetID == nil {
			return fmt.Errorf("%w: report type %q requires a target id", ErrInvalidReport, in.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown report type %q", ErrInvalidReport, in.Type)
	}
}

// Generate creates the report in pending state, captures its snapshot batch
// from the live graph, and flips it to completed. Any failure rolls the whole
// batch back and marks the report failed; a partial batch is never visible.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (*model.Report, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	reportUID, err := s.idProvider.NewID()
	if err != nil {
		return nil, fmt.Errorf("reports: issue report uid: %w", err)
	}

	properties := input.Properties
	if properties == nil {
		properties = model.Properties{}
	}
	report := model.Report{
		ReportUID:  reportUID,
		ReportType: input.Type,
		TargetID:   input.TargetID,
		Status:     model.ReportStatusPending,
		Properties: properties,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, fmt.Errorf("reports: create pending report: %w", err)
	}

	genErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snapshotTime := s.clock().UTC()
		resolver := s.resolver.WithTx(tx)

		switch input.Type {
		case model.ReportTypeFull:
			if err := s.captureFullReport(ctx, tx, resolver, report.ReportID, snapshotTime); err != nil {
				return err
			}
		case model.ReportTypeGroup:
			if err := s.captureGroupSnapshot(ctx, tx, resolver, report.ReportID, *input.TargetID, snapshotTime); err != nil {
				return err
			}
		case model.ReportTypeUser:
			if err := s.captureUserSnapshot(ctx, tx, resolver, report.ReportID, *input.TargetID, snapshotTime); err != nil {
				return err
			}
		case model.ReportTypeMembership:
			if err := s.captureMembershipSnapshot(ctx, tx, report.ReportID, *input.TargetID, snapshotTime); err != nil {
				return err
			}
		}

		completedAt := s.clock().UTC()
		return tx.Model(&model.Report{}).
			Where("report_id = ?", report.ReportID).
			Updates(map[string]any{
				"status":       model.ReportStatusCompleted,
				"completed_at": completedAt,
			}).Error
	})
	if genErr != nil {
		s.logger.Error("report generation failed",
			zap.String("report_uid", report.ReportUID),
			zap.String("report_type", string(report.ReportType)),
			zap.Error(genErr))
		if err := s.db.WithContext(ctx).Model(&model.Report{}).
			Where("report_id = ?", report.ReportID).
			Update("status", model.ReportStatusFailed).Error; err != nil {
			s.logger.Error("failed to mark report failed",
				zap.String("report_uid", report.ReportUID),
				zap.Error(err))
		}
		return nil, genErr
	}

	refreshed, err := s.Get(ctx, report.ReportID)
	if err != nil {
		return nil, err
	}
	return &refreshed.Report, nil
}

func (s *Service) captureFullReport(ctx context.Context, tx *gorm.DB, resolver *graph.Resolver, reportID int64, snapshotTime time.Time) error {
	var groups []model.Group
	if err := tx.Order("group_name ASC").Find(&groups).Error; err != nil {
		return fmt.Errorf("reports: list groups: %w", err)
	}
	for _, group := range groups {
		if err := s.captureGroupSnapshot(ctx, tx, resolver, reportID, group.GroupID, snapshotTime); err != nil {
			return err
		}
	}

	var users []model.User
	if err := tx.Order("user_name ASC").Find(&users).Error; err != nil {
		return fmt.Errorf("reports: list users: %w", err)
	}
	for _, user := range users {
		if err := s.captureUserSnapshot(ctx, tx, resolver, reportID, user.UserID, snapshotTime); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) captureGroupSnapshot(ctx context.Context, tx *gorm.DB, resolver *graph.Resolver, reportID, groupID int64, snapshotTime time.Time) error {
	var group model.Group
	if err := tx.Where("group_id = ?", groupID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: group %d", model.ErrNotFound, groupID)
		}
		return fmt.Errorf("reports: load group %d: %w", groupID, err)
	}

	direct, err := resolver.DirectMembers(ctx, groupID)
	if err != nil {
		return err
	}
	nested, err := resolver.NestedMembers(ctx, groupID)
	if err != nil {
		return err
	}
	memberOf, err := resolver.MemberOf(ctx, groupID)
	if err != nil {
		return err
	}
	ancestors, err := resolver.AncestorGroups(ctx, groupID)
	if err != nil {
		return err
	}

	if err := s.runSnapshotHook(); err != nil {
		return err
	}
	snapshot := model.GroupSnapshot{
		ReportID:        reportID,
		GroupName:       group.GroupName,
		Description:     group.Description,
		DirectMembers:   direct,
		NestedMembers:   nested,
		MemberOf:        memberOf,
		AllParentGroups: ancestors,
		Properties:      group.Properties,
		SnapshotTime:    snapshotTime,
	}
	if err := tx.Create(&snapshot).Error; err != nil {
		return fmt.Errorf("reports: capture group snapshot for %q: %w", group.GroupName, err)
	}
	return nil
}

func (s *Service) captureUserSnapshot(ctx context.Context, tx *gorm.DB, resolver *graph.Resolver, reportID, userID int64, snapshotTime time.Time) error {
	var user model.User
	if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
		}
		return fmt.Errorf("reports: load user %d: %w", userID, err)
	}

	direct, err := resolver.DirectGroups(ctx, userID)
	if err != nil {
		return err
	}
	effective, err := resolver.EffectiveGroups(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.runSnapshotHook(); err != nil {
		return err
	}
	snapshot := model.UserSnapshot{
		ReportID:        reportID,
		UserName:        user.UserName,
		Email:           user.Email,
		FullName:        user.FullName,
		PrincipalName:   user.PrincipalName,
		DirectGroups:    direct,
		EffectiveGroups: effective,
		Properties:      user.Properties,
		SnapshotTime:    snapshotTime,
	}
	if err := tx.Create(&snapshot).Error; err != nil {
		return fmt.Errorf("reports: capture user snapshot for %q: %w", user.UserName, err)
	}
	return nil
}

func (s *Service) captureMembershipSnapshot(ctx context.Context, tx *gorm.DB, reportID, membershipID int64, snapshotTime time.Time) error {
	var membership model.Membership
	if err := tx.Where("membership_id = ?", membershipID).First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: membership %d", model.ErrNotFound, membershipID)
		}
		return fmt.Errorf("reports: load membership %d: %w", membershipID, err)
	}

	now := s.clock().UTC()
	var users []string
	if err := tx.Table("user_memberships").
		Joins("JOIN users ON users.user_id = user_memberships.user_id").
		Where("user_memberships.membership_id = ?", membershipID).
		Where("user_memberships.start_date <= ? AND (user_memberships.end_date IS NULL OR user_memberships.end_date > ?)", now, now).
		Order("users.user_name ASC").
		Pluck("users.user_name", &users).Error; err != nil {
		return fmt.Errorf("reports: list membership %d users: %w", membershipID, err)
	}

	var groups []string
	if err := tx.Table("group_memberships").
		Joins("JOIN groups ON groups.group_id = group_memberships.group_id").
		Where("group_memberships.membership_id = ?", membershipID).
		Where("group_memberships.start_date <= ? AND (group_memberships.end_date IS NULL OR group_memberships.end_date > ?)", now, now).
		Order("groups.group_name ASC").
		Pluck("groups.group_name", &groups).Error; err != nil {
		return fmt.Errorf("reports: list membership %d groups: %w", membershipID, err)
	}

	ownerName := ""
	if membership.OwnerGroupID != nil {
		var owner model.Group
		if err := tx.Where("group_id = ?", *membership.OwnerGroupID).First(&owner).Error; err != nil {
			return fmt.Errorf("reports: load owner of membership %d: %w", membershipID, err)
		}
		ownerName = owner.GroupName
	}

	if err := s.runSnapshotHook(); err != nil {
		return err
	}
	snapshot := model.MembershipSnapshot{
		ReportID:       reportID,
		MembershipName: membership.MembershipName,
		OwnerGroupName: ownerName,
		UserCount:      int64(len(users)),
		GroupCount:     int64(len(groups)),
		Users:          users,
		Groups:         groups,
		SnapshotTime:   snapshotTime,
	}
	if err := tx.Create(&snapshot).Error; err != nil {
		return fmt.Errorf("reports: capture membership snapshot for %q: %w", membership.MembershipName, err)
	}
	return nil
}

func (s *Service) runSnapshotHook() error {
	if s.beforeSnapshot == nil {
		return nil
	}
	return s.beforeSnapshot()
}

// Detail bundles a report with its captured snapshots.
type Detail struct {
	Report              model.Report
	GroupSnapshots      []model.GroupSnapshot
	UserSnapshots       []model.UserSnapshot
	MembershipSnapshots []model.MembershipSnapshot
}

// Get loads a report and its snapshot batch.
func (s *Service) Get(ctx context.Context, reportID int64) (*Detail, error) {
	var report model.Report
	err := s.db.WithContext(ctx).Where("report_id = ?", reportID).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: report %d", model.ErrNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("reports: load report %d: %w", reportID, err)
	}

	detail := Detail{Report: report}
	if err := s.db.WithContext(ctx).Where("report_id = ?", reportID).
		Order("group_name ASC").Find(&detail.GroupSnapshots).Error; err != nil {
		return nil, fmt.Errorf("reports: load group snapshots: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("report_id = ?", reportID).
		Order("user_name ASC").Find(&detail.UserSnapshots).Error; err != nil {
		return nil, fmt.Errorf("reports: load user snapshots: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("report_id = ?", reportID).
		Order("membership_name ASC").Find(&detail.MembershipSnapshots).Error; err != nil {
		return nil, fmt.Errorf("reports: load membership snapshots: %w", err)
	}
	return &detail, nil
}

// List returns all reports, newest first.
func (s *Service) List(ctx context.Context) ([]model.Report, error) {
	var reports []model.Report
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("reports: list reports: %w", err)
	}
	return reports, nil
}
