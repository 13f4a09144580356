// Package database owns the SQLite connection, schema migrations and the
// optional sample-data seed.
package database

import (
	"fmt"

	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&model.User{},
		&model.Group{},
		&model.Membership{},
		&model.UserMembership{},
		&model.GroupMembership{},
		&model.UserHistory{},
		&model.GroupHistory{},
		&model.MembershipHistory{},
		&model.UserMembershipHistory{},
		&model.GroupMembershipHistory{},
		&model.Report{},
		&model.GroupSnapshot{},
		&model.UserSnapshot{},
		&model.MembershipSnapshot{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
