package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/auth"
	"github.com/OrgGraphLabs/orggraph/backend/internal/graph"
	"github.com/OrgGraphLabs/orggraph/backend/internal/groups"
	"github.com/OrgGraphLabs/orggraph/backend/internal/memberships"
	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"github.com/OrgGraphLabs/orggraph/backend/internal/reports"
	"github.com/OrgGraphLabs/orggraph/backend/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{}, &model.Group{}, &model.Membership{},
		&model.UserMembership{}, &model.GroupMembership{},
		&model.UserHistory{}, &model.GroupHistory{}, &model.MembershipHistory{},
		&model.UserMembershipHistory{}, &model.GroupMembershipHistory{},
		&model.Report{}, &model.GroupSnapshot{}, &model.UserSnapshot{}, &model.MembershipSnapshot{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	resolver, err := graph.NewResolver(graph.Config{Database: db})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	groupService, err := groups.NewService(groups.ServiceConfig{Database: db, Resolver: resolver})
	if err != nil {
		t.Fatalf("failed to build group service: %v", err)
	}
	membershipService, err := memberships.NewService(memberships.ServiceConfig{Database: db, Resolver: resolver})
	if err != nil {
		t.Fatalf("failed to build membership service: %v", err)
	}
	reportService, err := reports.NewService(reports.ServiceConfig{Database: db, Resolver: resolver})
	if err != nil {
		t.Fatalf("failed to build report service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		ClientSecret:  []byte("test-client-secret"),
		Issuer:        "orggraph-auth",
		Audience:      "orggraph-api",
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:      issuer,
		UserService:       userService,
		GroupService:      groupService,
		MembershipService: membershipService,
		ReportService:     reportService,
		Resolver:          resolver,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	env := &testEnv{t: t, handler: handler}
	env.token = env.exchangeToken("test-client", "test-client-secret")
	return env
}

func (e *testEnv) exchangeToken(clientID, clientSecret string) string {
	e.t.Helper()
	recorder := e.do(http.MethodPost, "/auth/token", map[string]any{
		"client_id":     clientID,
		"client_secret": clientSecret,
	}, false)
	if recorder.Code != http.StatusOK {
		e.t.Fatalf("token exchange failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		e.t.Fatalf("failed to decode token response: %v", err)
	}
	return payload.AccessToken
}

func (e *testEnv) do(method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if authorized {
		request.Header.Set("Authorization", "Bearer "+e.token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e *testEnv) decode(recorder *httptest.ResponseRecorder, out any) {
	e.t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		e.t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func (e *testEnv) createGroup(name string) int64 {
	e.t.Helper()
	recorder := e.do(http.MethodPost, "/groups", map[string]any{"group_name": name}, true)
	if recorder.Code != http.StatusCreated {
		e.t.Fatalf("group create failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var group struct {
		GroupID int64 `json:"GroupID"`
	}
	e.decode(recorder, &group)
	return group.GroupID
}

func (e *testEnv) createUser(name string) int64 {
	e.t.Helper()
	recorder := e.do(http.MethodPost, "/users", map[string]any{
		"user_name":      name,
		"email":          name + "@example.com",
		"principal_name": name + "@corp",
	}, true)
	if recorder.Code != http.StatusCreated {
		e.t.Fatalf("user create failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var user struct {
		UserID int64 `json:"UserID"`
	}
	e.decode(recorder, &user)
	return user.UserID
}

func (e *testEnv) rosterOf(groupID int64) int64 {
	e.t.Helper()
	recorder := e.do(http.MethodGet, fmt.Sprintf("/groups/%d/roster", groupID), nil, true)
	if recorder.Code != http.StatusOK {
		e.t.Fatalf("roster lookup failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var roster struct {
		MembershipID int64 `json:"MembershipID"`
	}
	e.decode(recorder, &roster)
	if roster.MembershipID == 0 {
		e.t.Fatalf("expected the group to own a roster membership")
	}
	return roster.MembershipID
}

func TestTokenExchangeRejectsWrongSecret(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(http.MethodPost, "/auth/token", map[string]any{
		"client_id":     "test-client",
		"client_secret": "guess",
	}, false)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(http.MethodGet, "/users", nil, false)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser("lead_dev")

	recorder := env.do(http.MethodPatch, fmt.Sprintf("/users/%d", userID), map[string]any{
		"full_name": "Lead Developer",
	}, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("user update failed with status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = env.do(http.MethodGet, fmt.Sprintf("/users/%d/history", userID), nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("user history failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var historyPayload struct {
		History []json.RawMessage `json:"history"`
	}
	env.decode(recorder, &historyPayload)
	if len(historyPayload.History) != 2 {
		t.Fatalf("expected two history windows after rename, got %d", len(historyPayload.History))
	}

	recorder = env.do(http.MethodGet, "/users/404", nil, true)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", recorder.Code)
	}
}

func TestUserHistoryRejectsMalformedAsOf(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser("lead_dev")

	recorder := env.do(http.MethodGet, fmt.Sprintf("/users/%d/history?asof=yesterday", userID), nil, true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed asof, got %d", recorder.Code)
	}
}

func TestMembershipGraphOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	rootID := env.createGroup("Organization")
	middleID := env.createGroup("IT")
	leafID := env.createGroup("IT_Development")
	userID := env.createUser("dev_one")

	// Organization contains IT contains IT_Development; dev_one sits in the leaf.
	recorder := env.do(http.MethodPost, fmt.Sprintf("/memberships/%d/groups", env.rosterOf(middleID)), map[string]any{
		"group_id": rootID,
	}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("group nesting failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	leafRoster := env.rosterOf(leafID)
	recorder = env.do(http.MethodPost, fmt.Sprintf("/memberships/%d/groups", leafRoster), map[string]any{
		"group_id": middleID,
	}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("group nesting failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	recorder = env.do(http.MethodPost, fmt.Sprintf("/memberships/%d/users", leafRoster), map[string]any{
		"user_id": userID,
	}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("user attachment failed with status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = env.do(http.MethodGet, fmt.Sprintf("/groups/%d/members", rootID), nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("members lookup failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var membersPayload struct {
		DirectMembers []string `json:"direct_members"`
		NestedMembers []string `json:"nested_members"`
	}
	env.decode(recorder, &membersPayload)
	if len(membersPayload.DirectMembers) != 0 {
		t.Fatalf("expected no direct members on the root, got %v", membersPayload.DirectMembers)
	}
	if len(membersPayload.NestedMembers) != 1 || membersPayload.NestedMembers[0] != "dev_one" {
		t.Fatalf("expected nested member dev_one, got %v", membersPayload.NestedMembers)
	}

	recorder = env.do(http.MethodGet, fmt.Sprintf("/users/%d/groups", userID), nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("user groups lookup failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var groupsPayload struct {
		DirectGroups    []string `json:"direct_groups"`
		EffectiveGroups []string `json:"effective_groups"`
	}
	env.decode(recorder, &groupsPayload)
	if len(groupsPayload.EffectiveGroups) != 3 {
		t.Fatalf("expected three effective groups, got %v", groupsPayload.EffectiveGroups)
	}
}

func TestCycleRejectionMapsToConflict(t *testing.T) {
	env := newTestEnv(t)
	parentID := env.createGroup("Organization")
	childID := env.createGroup("IT")

	childRoster := env.rosterOf(childID)
	recorder := env.do(http.MethodPost, fmt.Sprintf("/memberships/%d/groups", childRoster), map[string]any{
		"group_id": parentID,
	}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("group nesting failed with status %d: %s", recorder.Code, recorder.Body.String())
	}

	parentRoster := env.rosterOf(parentID)
	recorder = env.do(http.MethodPost, fmt.Sprintf("/memberships/%d/groups", parentRoster), map[string]any{
		"group_id": childID,
	}, true)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for cycle, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestDuplicateAttachmentMapsToConflict(t *testing.T) {
	env := newTestEnv(t)
	groupID := env.createGroup("QA_Team")
	userID := env.createUser("qa_one")
	roster := env.rosterOf(groupID)

	for i := 0; i < 2; i++ {
		recorder := env.do(http.MethodPost, fmt.Sprintf("/memberships/%d/users", roster), map[string]any{
			"user_id": userID,
		}, true)
		switch i {
		case 0:
			if recorder.Code != http.StatusCreated {
				t.Fatalf("first attachment failed with status %d: %s", recorder.Code, recorder.Body.String())
			}
		case 1:
			if recorder.Code != http.StatusConflict {
				t.Fatalf("expected 409 for duplicate attachment, got %d", recorder.Code)
			}
		}
	}
}

func TestReportGenerationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	groupID := env.createGroup("IT")
	userID := env.createUser("dev_one")
	roster := env.rosterOf(groupID)
	recorder := env.do(http.MethodPost, fmt.Sprintf("/memberships/%d/users", roster), map[string]any{
		"user_id": userID,
	}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("user attachment failed with status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = env.do(http.MethodPost, "/reports", map[string]any{"report_type": "full"}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("report generation failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var report struct {
		ReportID int64  `json:"ReportID"`
		Status   string `json:"Status"`
	}
	env.decode(recorder, &report)
	if report.Status != "completed" {
		t.Fatalf("expected completed report, got %q", report.Status)
	}

	recorder = env.do(http.MethodGet, fmt.Sprintf("/reports/%d", report.ReportID), nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("report lookup failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var detail struct {
		GroupSnapshots []json.RawMessage `json:"group_snapshots"`
		UserSnapshots  []json.RawMessage `json:"user_snapshots"`
	}
	env.decode(recorder, &detail)
	if len(detail.GroupSnapshots) != 1 || len(detail.UserSnapshots) != 1 {
		t.Fatalf("expected one group and one user snapshot, got %d/%d",
			len(detail.GroupSnapshots), len(detail.UserSnapshots))
	}

	recorder = env.do(http.MethodPost, "/reports", map[string]any{"report_type": "group_specific"}, true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for scoped report without target, got %d", recorder.Code)
	}
}

func TestCORSPreflightAllowsConfiguredMethods(t *testing.T) {
	env := newTestEnv(t)

	request := httptest.NewRequest(http.MethodOptions, "/users", nil)
	request.Header.Set("Origin", "https://directory.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected preflight status: %d", recorder.Code)
	}
	if allow := recorder.Header().Get("Access-Control-Allow-Origin"); allow != "*" {
		t.Fatalf("unexpected allow-origin header: %q", allow)
	}
}
