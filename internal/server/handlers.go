package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/groups"
	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"github.com/OrgGraphLabs/orggraph/backend/internal/reports"
	"github.com/OrgGraphLabs/orggraph/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type createUserPayload struct {
	UserName      string           `json:"user_name"`
	Email         string           `json:"email"`
	FullName      string           `json:"full_name"`
	PrincipalName string           `json:"principal_name"`
	Properties    model.Properties `json:"properties"`
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request createUserPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.users.Create(c.Request.Context(), users.CreateUserInput{
		UserName:      request.UserName,
		Email:         request.Email,
		FullName:      request.FullName,
		PrincipalName: request.PrincipalName,
		Properties:    request.Properties,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateUserPayload struct {
	UserName      *string          `json:"user_name"`
	Email         *string          `json:"email"`
	FullName      *string          `json:"full_name"`
	PrincipalName *string          `json:"principal_name"`
	Properties    model.Properties `json:"properties"`
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request updateUserPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.users.Update(c.Request.Context(), userID, users.UpdateUserInput{
		UserName:      request.UserName,
		Email:         request.Email,
		FullName:      request.FullName,
		PrincipalName: request.PrincipalName,
		Properties:    request.Properties,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleUserGroups(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	direct, err := h.resolver.DirectGroups(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	effective, err := h.resolver.EffectiveGroups(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"direct_groups": direct, "effective_groups": effective})
}

func (h *httpHandler) handleUserHistory(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	asOf, ok := asOfParam(c)
	if !ok {
		return
	}
	if asOf != nil {
		record, err := h.users.AsOf(c.Request.Context(), userID, *asOf)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
		return
	}
	records, err := h.users.History(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (h *httpHandler) handleUserMemberships(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	includeHistorical := c.Query("include_historical") == "true"
	records, err := h.memberships.UserMemberships(c.Request.Context(), userID, includeHistorical)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberships": records})
}

type createGroupPayload struct {
	GroupName   string           `json:"group_name"`
	Description string           `json:"description"`
	Properties  model.Properties `json:"properties"`
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request createGroupPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	group, err := h.groups.Create(c.Request.Context(), groups.CreateGroupInput{
		GroupName:   request.GroupName,
		Description: request.Description,
		Properties:  request.Properties,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *httpHandler) handleListGroups(c *gin.Context) {
	list, err := h.groups.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": list})
}

func (h *httpHandler) handleGetGroup(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	group, err := h.groups.Get(c.Request.Context(), groupID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

type updateGroupPayload struct {
	GroupName   *string          `json:"group_name"`
	Description *string          `json:"description"`
	Properties  model.Properties `json:"properties"`
}

func (h *httpHandler) handleUpdateGroup(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request updateGroupPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	group, err := h.groups.Update(c.Request.Context(), groupID, groups.UpdateGroupInput{
		GroupName:   request.GroupName,
		Description: request.Description,
		Properties:  request.Properties,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *httpHandler) handleGroupMembers(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	members, err := h.groups.Members(c.Request.Context(), groupID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"direct_members": members.Direct,
		"nested_members": members.Nested,
	})
}

func (h *httpHandler) handleGroupHistory(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	asOf, ok := asOfParam(c)
	if !ok {
		return
	}
	if asOf != nil {
		record, err := h.groups.AsOf(c.Request.Context(), groupID, *asOf)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
		return
	}
	records, err := h.groups.History(c.Request.Context(), groupID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (h *httpHandler) handleGroupMemberships(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	includeHistorical := c.Query("include_historical") == "true"
	records, err := h.memberships.GroupMemberships(c.Request.Context(), groupID, includeHistorical)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberships": records})
}

func (h *httpHandler) handleGroupRoster(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	roster, err := h.groups.Roster(c.Request.Context(), groupID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roster)
}

type createMembershipPayload struct {
	MembershipName string `json:"membership_name"`
}

func (h *httpHandler) handleCreateMembership(c *gin.Context) {
	var request createMembershipPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	membership, err := h.memberships.Create(c.Request.Context(), request.MembershipName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func (h *httpHandler) handleListMemberships(c *gin.Context) {
	list, err := h.memberships.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberships": list})
}

func (h *httpHandler) handleGetMembership(c *gin.Context) {
	membershipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	membership, err := h.memberships.Get(c.Request.Context(), membershipID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

type attachmentPayload struct {
	UserID      int64      `json:"user_id"`
	GroupID     int64      `json:"group_id"`
	EffectiveAt *time.Time `json:"effective_at"`
}

func (h *httpHandler) handleAddUserToMembership(c *gin.Context) {
	membershipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request attachmentPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	attachment, err := h.memberships.AddUser(c.Request.Context(), request.UserID, membershipID, request.EffectiveAt)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

func (h *httpHandler) handleRemoveUserFromMembership(c *gin.Context) {
	membershipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := h.memberships.RemoveUser(c.Request.Context(), userID, membershipID, nil); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAddGroupToMembership(c *gin.Context) {
	membershipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request attachmentPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.GroupID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	attachment, err := h.memberships.AddGroup(c.Request.Context(), request.GroupID, membershipID, request.EffectiveAt)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

func (h *httpHandler) handleRemoveGroupFromMembership(c *gin.Context) {
	membershipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	groupID, ok := pathID(c, "groupID")
	if !ok {
		return
	}
	if err := h.memberships.RemoveGroup(c.Request.Context(), groupID, membershipID, nil); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type generateReportPayload struct {
	ReportType string           `json:"report_type"`
	TargetID   *int64           `json:"target_id"`
	Properties model.Properties `json:"properties"`
}

func (h *httpHandler) handleGenerateReport(c *gin.Context) {
	var request generateReportPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ReportType) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	report, err := h.reports.Generate(c.Request.Context(), reports.GenerateInput{
		Type:       model.ReportType(request.ReportType),
		TargetID:   request.TargetID,
		Properties: request.Properties,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *httpHandler) handleListReports(c *gin.Context) {
	list, err := h.reports.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list})
}

func (h *httpHandler) handleGetReport(c *gin.Context) {
	reportID, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.reports.Get(c.Request.Context(), reportID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":               detail.Report,
		"group_snapshots":      detail.GroupSnapshots,
		"user_snapshots":       detail.UserSnapshots,
		"membership_snapshots": detail.MembershipSnapshots,
	})
}

func (h *httpHandler) handleCompareReports(c *gin.Context) {
	leftID, ok := pathID(c, "id")
	if !ok {
		return
	}
	rightID, ok := pathID(c, "otherID")
	if !ok {
		return
	}
	diff, err := h.reports.Compare(c.Request.Context(), leftID, rightID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, diff)
}
