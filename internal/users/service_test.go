package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *tickingClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.UserHistory{}, &model.UserMembershipHistory{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &tickingClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db, clock
}

func createAlice(t *testing.T, service *Service) *model.User {
	t.Helper()
	user, err := service.Create(context.Background(), CreateUserInput{
		UserName:      "alice",
		Email:         "alice@example.com",
		FullName:      "Alice Liddell",
		PrincipalName: "alice@corp.example.com",
		Properties:    model.Properties{"department": "IT"},
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestCreateOpensInitialHistoryWindow(t *testing.T) {
	service, db, _ := newTestService(t)
	user := createAlice(t, service)

	if user.Version != 1 {
		t.Fatalf("expected version 1, got %d", user.Version)
	}

	var windows []model.UserHistory
	if err := db.Where("user_id = ?", user.UserID).Find(&windows).Error; err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 history window, got %d", len(windows))
	}
	if windows[0].UserName != "alice" || windows[0].EndDate != nil {
		t.Fatalf("unexpected initial window: %+v", windows[0])
	}
}

func TestCreateRejectsMissingFields(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Create(context.Background(), CreateUserInput{UserName: " "})
	if !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected invalid user error, got %v", err)
	}
}

func TestUpdateRecordsTransitionAndBumpsVersion(t *testing.T) {
	service, db, _ := newTestService(t)
	user := createAlice(t, service)

	renamed := "alice_wonder"
	updated, err := service.Update(context.Background(), user.UserID, UpdateUserInput{UserName: &renamed})
	if err != nil {
		t.Fatalf("failed to update user: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	var windows []model.UserHistory
	if err := db.Where("user_id = ?", user.UserID).Order("start_date ASC").Find(&windows).Error; err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 history windows, got %d", len(windows))
	}
	if windows[0].EndDate == nil {
		t.Fatalf("expected first window closed")
	}
	if windows[1].UserName != "alice_wonder" || windows[1].EndDate != nil {
		t.Fatalf("unexpected active window: %+v", windows[1])
	}
}

func TestNoOpUpdateOpensNoWindow(t *testing.T) {
	service, db, _ := newTestService(t)
	user := createAlice(t, service)

	sameName := "alice"
	updated, err := service.Update(context.Background(), user.UserID, UpdateUserInput{
		UserName:   &sameName,
		Properties: model.Properties{"department": "IT"},
	})
	if err != nil {
		t.Fatalf("failed to update user: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("no-op save must not bump version, got %d", updated.Version)
	}

	var windowCount int64
	if err := db.Model(&model.UserHistory{}).Where("user_id = ?", user.UserID).Count(&windowCount).Error; err != nil {
		t.Fatalf("failed to count history: %v", err)
	}
	if windowCount != 1 {
		t.Fatalf("no-op save must not open a window, got %d windows", windowCount)
	}
}

func TestAsOfTracksRenames(t *testing.T) {
	service, _, clock := newTestService(t)
	user := createAlice(t, service)

	first := "alice_wonder"
	if _, err := service.Update(context.Background(), user.UserID, UpdateUserInput{UserName: &first}); err != nil {
		t.Fatalf("failed to rename user: %v", err)
	}
	afterFirst := clock.now

	second := "alice_liddell"
	if _, err := service.Update(context.Background(), user.UserID, UpdateUserInput{UserName: &second}); err != nil {
		t.Fatalf("failed to rename user: %v", err)
	}
	afterSecond := clock.now

	record, err := service.AsOf(context.Background(), user.UserID, afterFirst)
	if err != nil {
		t.Fatalf("failed to read as-of state: %v", err)
	}
	if record.UserName != "alice_wonder" {
		t.Fatalf("expected alice_wonder between renames, got %q", record.UserName)
	}

	record, err = service.AsOf(context.Background(), user.UserID, afterFirst.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("failed to read as-of state: %v", err)
	}
	if record.UserName != "alice" {
		t.Fatalf("expected alice before first rename, got %q", record.UserName)
	}

	record, err = service.AsOf(context.Background(), user.UserID, afterSecond.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to read as-of state: %v", err)
	}
	if record.UserName != "alice_liddell" {
		t.Fatalf("expected alice_liddell after second rename, got %q", record.UserName)
	}
}

func TestGetUnknownUserFails(t *testing.T) {
	service, _, _ := newTestService(t)

	if _, err := service.Get(context.Background(), 404); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.Update(context.Background(), 404, UpdateUserInput{}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
