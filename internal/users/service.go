// Package users manages directory user records and their version history.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/history"
	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("users: database handle is required")
	// ErrInvalidUser indicates that user input failed field validation.
	ErrInvalidUser = errors.New("users: invalid user")
)

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns user mutations; every meaningful change runs through the
// history ledger inside the same transaction.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// CreateUserInput carries the fields for a new user.
type CreateUserInput struct {
	UserName      string
	Email         string
	FullName      string
	PrincipalName string
	Properties    model.Properties
}

func (in CreateUserInput) validate() error {
	if strings.TrimSpace(in.UserName) == "" {
		return fmt.Errorf("%w: user name is required", ErrInvalidUser)
	}
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	if strings.TrimSpace(in.PrincipalName) == "" {
		return fmt.Errorf("%w: principal name is required", ErrInvalidUser)
	}
	return nil
}

// Create inserts the user and opens its first history window atomically.
func (s *Service) Create(ctx context.Context, input CreateUserInput) (*model.User, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	properties := input.Properties
	if properties == nil {
		properties = model.Properties{}
	}
	user := model.User{
		UserName:      strings.TrimSpace(input.UserName),
		Email:         strings.TrimSpace(input.Email),
		FullName:      strings.TrimSpace(input.FullName),
		PrincipalName: strings.TrimSpace(input.PrincipalName),
		Properties:    properties,
		CreatedAt:     now,
		ModifiedAt:    now,
		Version:       1,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("users: create user %q: %w", user.UserName, err)
		}
		return history.Transition(tx,
			history.KeyFor("user_id", user.UserID),
			&model.UserHistory{UserID: user.UserID, UserName: user.UserName},
			now)
	})
	if err != nil {
		s.logger.Error("user create failed", zap.String("user_name", user.UserName), zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// UpdateUserInput carries a partial update; nil fields are left untouched.
type UpdateUserInput struct {
	UserName      *string
	Email         *string
	FullName      *string
	PrincipalName *string
	Properties    model.Properties
}

// Update applies the partial update. The history ledger only records a
// transition, and the version counter only advances, when a non-bookkeeping
// field actually changed.
func (s *Service) Update(ctx context.Context, userID int64, input UpdateUserInput) (*model.User, error) {
	var updated model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
			}
			return fmt.Errorf("users: load user %d: %w", userID, err)
		}

		before := user.Fields()
		if input.UserName != nil {
			user.UserName = strings.TrimSpace(*input.UserName)
		}
		if input.Email != nil {
			user.Email = strings.TrimSpace(*input.Email)
		}
		if input.FullName != nil {
			user.FullName = strings.TrimSpace(*input.FullName)
		}
		if input.PrincipalName != nil {
			user.PrincipalName = strings.TrimSpace(*input.PrincipalName)
		}
		if input.Properties != nil {
			user.Properties = input.Properties
		}

		if !history.Changed(before, user.Fields()) {
			updated = user
			return nil
		}

		now := s.clock().UTC()
		user.ModifiedAt = now
		user.Version++
		if err := tx.Save(&user).Error; err != nil {
			return fmt.Errorf("users: save user %d: %w", userID, err)
		}
		if err := history.Transition(tx,
			history.KeyFor("user_id", user.UserID),
			&model.UserHistory{UserID: user.UserID, UserName: user.UserName},
			now); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		s.logger.Error("user update failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &updated, nil
}

// Get returns the current state of a user.
func (s *Service) Get(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("users: load user %d: %w", userID, err)
	}
	return &user, nil
}

// List returns all users ordered by name.
func (s *Service) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("user_name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("users: list users: %w", err)
	}
	return users, nil
}

// History returns the user's version windows, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]model.UserHistory, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	var records []model.UserHistory
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("users: load history for user %d: %w", userID, err)
	}
	return records, nil
}

// AsOf returns the user's state at the given past instant.
func (s *Service) AsOf(ctx context.Context, userID int64, at time.Time) (*model.UserHistory, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	var record model.UserHistory
	if err := history.FindAsOf(s.db.WithContext(ctx), history.KeyFor("user_id", userID), at, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// MembershipHistory returns the user's attachment windows, newest first.
func (s *Service) MembershipHistory(ctx context.Context, userID int64) ([]model.UserMembershipHistory, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	var records []model.UserMembershipHistory
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("users: load membership history for user %d: %w", userID, err)
	}
	return records, nil
}
