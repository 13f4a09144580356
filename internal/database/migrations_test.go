package database

import (
	"path/filepath"
	"testing"

	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsEmptyProperties(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&model.User{}, &model.Group{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := database.Exec(
		"INSERT INTO users (user_name, email, full_name, principal_name, properties, created_at, modified_at, version)" +
			" VALUES ('legacy_user', 'legacy@example.com', 'Legacy User', 'legacy@corp', '', datetime('now'), datetime('now'), 1)",
	).Error; err != nil {
		testContext.Fatalf("failed to insert legacy row: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored model.User
	if err := database.Where("user_name = ?", "legacy_user").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if len(stored.Properties) != 0 {
		testContext.Fatalf("expected empty properties bag, got %v", stored.Properties)
	}
	var raw string
	if err := database.Raw("SELECT properties FROM users WHERE user_name = 'legacy_user'").Scan(&raw).Error; err != nil {
		testContext.Fatalf("failed to read raw properties: %v", err)
	}
	if raw != "{}" {
		testContext.Fatalf("expected normalized properties column, got %q", raw)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillEmptyProperties).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsIsIdempotent(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "idempotent.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&model.User{}, &model.Group{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := applyMigrations(database, zap.NewNop()); err != nil {
			testContext.Fatalf("apply migrations run %d failed: %v", i+1, err)
		}
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected one migration record, got %d", count)
	}
}
