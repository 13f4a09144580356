// Package server exposes the directory over HTTP: entity CRUD, membership
// mutations, graph queries, history lookups and report generation.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/graph"
	"github.com/OrgGraphLabs/orggraph/backend/internal/groups"
	"github.com/OrgGraphLabs/orggraph/backend/internal/memberships"
	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"github.com/OrgGraphLabs/orggraph/backend/internal/reports"
	"github.com/OrgGraphLabs/orggraph/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const clientIDContextKey = "orggraph_client_id"

var (
	errMissingTokenManager      = errors.New("token manager dependency required")
	errMissingUserService       = errors.New("user service dependency required")
	errMissingGroupService      = errors.New("group service dependency required")
	errMissingMembershipService = errors.New("membership service dependency required")
	errMissingReportService     = errors.New("report service dependency required")
	errMissingResolver          = errors.New("graph resolver dependency required")
	errInvalidAuthorization     = errors.New("authorization header missing or invalid")
)

// ServiceTokenManager exchanges client credentials for bearer tokens and
// validates presented ones.
type ServiceTokenManager interface {
	IssueServiceToken(ctx context.Context, clientID, clientSecret string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the services behind the HTTP surface.
type Dependencies struct {
	TokenManager      ServiceTokenManager
	UserService       *users.Service
	GroupService      *groups.Service
	MembershipService *memberships.Service
	ReportService     *reports.Service
	Resolver          *graph.Resolver
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router with CORS, recovery and bearer auth on
// everything under the protected group.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UserService == nil {
		return nil, errMissingUserService
	}
	if deps.GroupService == nil {
		return nil, errMissingGroupService
	}
	if deps.MembershipService == nil {
		return nil, errMissingMembershipService
	}
	if deps.ReportService == nil {
		return nil, errMissingReportService
	}
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:      deps.TokenManager,
		users:       deps.UserService,
		groups:      deps.GroupService,
		memberships: deps.MembershipService,
		reports:     deps.ReportService,
		resolver:    deps.Resolver,
		logger:      logger,
	}

	router.POST("/auth/token", handler.handleTokenExchange)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/users", handler.handleCreateUser)
	protected.GET("/users", handler.handleListUsers)
	protected.GET("/users/:id", handler.handleGetUser)
	protected.PATCH("/users/:id", handler.handleUpdateUser)
	protected.GET("/users/:id/groups", handler.handleUserGroups)
	protected.GET("/users/:id/history", handler.handleUserHistory)
	protected.GET("/users/:id/memberships", handler.handleUserMemberships)

	protected.POST("/groups", handler.handleCreateGroup)
	protected.GET("/groups", handler.handleListGroups)
	protected.GET("/groups/:id", handler.handleGetGroup)
	protected.PATCH("/groups/:id", handler.handleUpdateGroup)
	protected.GET("/groups/:id/members", handler.handleGroupMembers)
	protected.GET("/groups/:id/history", handler.handleGroupHistory)
	protected.GET("/groups/:id/memberships", handler.handleGroupMemberships)
	protected.GET("/groups/:id/roster", handler.handleGroupRoster)

	protected.POST("/memberships", handler.handleCreateMembership)
	protected.GET("/memberships", handler.handleListMemberships)
	protected.GET("/memberships/:id", handler.handleGetMembership)
	protected.POST("/memberships/:id/users", handler.handleAddUserToMembership)
	protected.DELETE("/memberships/:id/users/:userID", handler.handleRemoveUserFromMembership)
	protected.POST("/memberships/:id/groups", handler.handleAddGroupToMembership)
	protected.DELETE("/memberships/:id/groups/:groupID", handler.handleRemoveGroupFromMembership)

	protected.POST("/reports", handler.handleGenerateReport)
	protected.GET("/reports", handler.handleListReports)
	protected.GET("/reports/:id", handler.handleGetReport)
	protected.GET("/reports/:id/compare/:otherID", handler.handleCompareReports)

	return router, nil
}

type httpHandler struct {
	tokens      ServiceTokenManager
	users       *users.Service
	groups      *groups.Service
	memberships *memberships.Service
	reports     *reports.Service
	resolver    *graph.Resolver
	logger      *zap.Logger
}

type tokenRequestPayload struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleTokenExchange(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ClientID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.IssueServiceToken(c.Request.Context(), request.ClientID, request.ClientSecret)
	if err != nil {
		h.logger.Warn("token exchange rejected", zap.String("client_id", request.ClientID), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expired tokens are routine renewals, not attacks.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(clientIDContextKey, subject)
	c.Next()
}

// respondError maps the service error taxonomy onto HTTP status codes.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": err.Error()})
	case errors.Is(err, model.ErrCyclicRelationship):
		c.JSON(http.StatusConflict, gin.H{"error": "cyclic_relationship", "detail": err.Error()})
	case errors.Is(err, model.ErrInvalidAssociation):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_association", "detail": err.Error()})
	case errors.Is(err, model.ErrIntegrityViolation):
		h.logger.Error("history integrity violation surfaced", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "integrity_violation"})
	case errors.Is(err, users.ErrInvalidUser),
		errors.Is(err, groups.ErrInvalidGroup),
		errors.Is(err, memberships.ErrInvalidMembership),
		errors.Is(err, reports.ErrInvalidReport),
		errors.Is(err, reports.ErrReportNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

// asOfParam parses the optional ?asof=RFC3339 query parameter.
func asOfParam(c *gin.Context) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query("asof"))
	if raw == "" {
		return nil, true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_asof", "detail": "asof must be RFC 3339"})
		return nil, false
	}
	return &at, true
}
