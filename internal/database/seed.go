package database

import (
	"context"
	"fmt"

	"github.com/OrgGraphLabs/orggraph/backend/internal/graph"
	"github.com/OrgGraphLabs/orggraph/backend/internal/groups"
	"github.com/OrgGraphLabs/orggraph/backend/internal/memberships"
	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"github.com/OrgGraphLabs/orggraph/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SeedSampleData loads the demonstration hierarchy through the services so
// every entity gets proper history windows. It is idempotent: a database that
// already holds any group is left untouched.
func SeedSampleData(ctx context.Context, db *gorm.DB, logger *zap.Logger) error {
	var groupCount int64
	if err := db.WithContext(ctx).Model(&model.Group{}).Count(&groupCount).Error; err != nil {
		return fmt.Errorf("database: inspect groups before seeding: %w", err)
	}
	if groupCount > 0 {
		return nil
	}

	resolver, err := graph.NewResolver(graph.Config{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	groupService, err := groups.NewService(groups.ServiceConfig{Database: db, Resolver: resolver, Logger: logger})
	if err != nil {
		return err
	}
	membershipService, err := memberships.NewService(memberships.ServiceConfig{Database: db, Resolver: resolver, Logger: logger})
	if err != nil {
		return err
	}

	chain := []struct {
		name        string
		description string
	}{
		{"Organization", "Top-level organization"},
		{"IT", "Information technology division"},
		{"IT_Development", "Software development department"},
		{"Senior_Developers", "Senior development staff"},
	}

	groupIDs := make(map[string]int64, len(chain))
	for _, entry := range chain {
		group, err := groupService.Create(ctx, groups.CreateGroupInput{
			GroupName:   entry.name,
			Description: entry.description,
			Properties:  model.Properties{},
		})
		if err != nil {
			return fmt.Errorf("database: seed group %q: %w", entry.name, err)
		}
		groupIDs[entry.name] = group.GroupID
	}

	// Nest each group inside its predecessor by attaching the parent to the
	// child's roster.
	for i := 1; i < len(chain); i++ {
		parent := groupIDs[chain[i-1].name]
		child := groupIDs[chain[i].name]
		roster, err := groupService.Roster(ctx, child)
		if err != nil {
			return fmt.Errorf("database: seed nesting under %q: %w", chain[i-1].name, err)
		}
		if _, err := membershipService.AddGroup(ctx, parent, roster.MembershipID, nil); err != nil {
			return fmt.Errorf("database: seed nesting under %q: %w", chain[i-1].name, err)
		}
	}

	leadDev, err := userService.Create(ctx, users.CreateUserInput{
		UserName:      "lead_dev",
		Email:         "lead_dev@example.com",
		FullName:      "Lead Developer",
		PrincipalName: "lead_dev@corp",
		Properties:    model.Properties{},
	})
	if err != nil {
		return fmt.Errorf("database: seed user lead_dev: %w", err)
	}

	seniorRoster, err := groupService.Roster(ctx, groupIDs["Senior_Developers"])
	if err != nil {
		return err
	}
	if _, err := membershipService.AddUser(ctx, leadDev.UserID, seniorRoster.MembershipID, nil); err != nil {
		return fmt.Errorf("database: seed lead_dev attachment: %w", err)
	}

	if logger != nil {
		logger.Info("sample data seeded",
			zap.Int("groups", len(chain)),
			zap.Int("users", 1))
	}
	return nil
}
