// Package graph answers membership queries over the group-membership-user
// hypergraph and guards nesting edges against cycles before they are persisted.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database handle is required")

// Config describes the dependencies required by the resolver.
type Config struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Resolver traverses the association graph. It never mutates it: reads have no
// side effects, and the cycle check is pure validation for the caller to act on.
type Resolver struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("graph: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{db: cfg.Database, clock: clock, logger: logger}, nil
}

// WithTx returns a resolver bound to the given transaction handle, so graph
// reads issued during a mutation observe that transaction's state.
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	return &Resolver{db: tx, clock: r.clock, logger: r.logger}
}

// DirectMembers returns the usernames attached, through any membership the
// group holds, via an active user attachment.
func (r *Resolver) DirectMembers(ctx context.Context, groupID int64) ([]string, error) {
	if err := r.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := r.directMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return sortedSet(members), nil
}

// NestedMembers returns the group's direct members plus, recursively, the
// members of every group nested inside it. Groups reachable along multiple
// paths are counted once; a pre-existing cycle in stored data terminates the
// traversal instead of failing it.
func (r *Resolver) NestedMembers(ctx context.Context, groupID int64) ([]string, error) {
	if err := r.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}

	members := map[string]struct{}{}
	visited := map[int64]struct{}{}
	if err := r.collectNested(ctx, groupID, visited, members); err != nil {
		return nil, err
	}
	return sortedSet(members), nil
}

func (r *Resolver) collectNested(ctx context.Context, groupID int64, visited map[int64]struct{}, members map[string]struct{}) error {
	if _, seen := visited[groupID]; seen {
		return nil
	}
	visited[groupID] = struct{}{}

	direct, err := r.directMembers(ctx, groupID)
	if err != nil {
		return err
	}
	for name := range direct {
		members[name] = struct{}{}
	}

	children, err := r.childGroupIDs(ctx, groupID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := r.collectNested(ctx, child, visited, members); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveGroups returns the names of every group the user belongs to,
// directly or through nesting, deduplicated.
func (r *Resolver) EffectiveGroups(ctx context.Context, userID int64) ([]string, error) {
	if err := r.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	direct, err := r.directGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	effective := map[int64]struct{}{}
	for _, groupID := range direct {
		if err := r.collectAncestors(ctx, groupID, effective); err != nil {
			return nil, err
		}
	}
	return r.groupNames(ctx, effective)
}

// DirectGroups returns the names of the groups attached to the user's active
// memberships, without the nesting closure.
func (r *Resolver) DirectGroups(ctx context.Context, userID int64) ([]string, error) {
	if err := r.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	direct, err := r.directGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := map[int64]struct{}{}
	for _, id := range direct {
		set[id] = struct{}{}
	}
	return r.groupNames(ctx, set)
}

// MemberOf returns the names of the groups directly nesting the given group.
func (r *Resolver) MemberOf(ctx context.Context, groupID int64) ([]string, error) {
	if err := r.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	parents, err := r.parentGroupIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	set := map[int64]struct{}{}
	for _, id := range parents {
		set[id] = struct{}{}
	}
	return r.groupNames(ctx, set)
}

// AncestorGroups returns the names of every group nesting the given group,
// transitively.
func (r *Resolver) AncestorGroups(ctx context.Context, groupID int64) ([]string, error) {
	if err := r.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	ancestors := map[int64]struct{}{}
	if err := r.collectAncestors(ctx, groupID, ancestors); err != nil {
		return nil, err
	}
	delete(ancestors, groupID)
	return r.groupNames(ctx, ancestors)
}

func (r *Resolver) collectAncestors(ctx context.Context, groupID int64, reached map[int64]struct{}) error {
	if _, seen := reached[groupID]; seen {
		return nil
	}
	reached[groupID] = struct{}{}

	parents, err := r.parentGroupIDs(ctx, groupID)
	if err != nil {
		return err
	}
	for _, parent := range parents {
		if err := r.collectAncestors(ctx, parent, reached); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNoCycle rejects nesting the child group inside the parent group when
// the parent is already reachable from the child along existing nesting edges.
// It is pure validation: the caller commits the edge only after it passes.
// The search carries a path-local visited set, pushed on enter and popped on
// exit, so independent sibling branches do not shadow each other.
func (r *Resolver) ValidateNoCycle(ctx context.Context, parentGroupID, childGroupID int64) error {
	if parentGroupID == childGroupID {
		return fmt.Errorf("%w: group %d cannot nest itself", model.ErrCyclicRelationship, parentGroupID)
	}

	onPath := map[int64]struct{}{}
	var walk func(groupID int64) error
	walk = func(groupID int64) error {
		if groupID == parentGroupID {
			return fmt.Errorf("%w: group %d is already nested inside group %d",
				model.ErrCyclicRelationship, parentGroupID, childGroupID)
		}
		if _, revisited := onPath[groupID]; revisited {
			return fmt.Errorf("%w: existing nesting path revisits group %d",
				model.ErrCyclicRelationship, groupID)
		}
		onPath[groupID] = struct{}{}
		defer delete(onPath, groupID)

		children, err := r.childGroupIDs(ctx, groupID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(childGroupID)
}

// directMembers returns the set of usernames with an active attachment to any
// membership the group actively holds.
func (r *Resolver) directMembers(ctx context.Context, groupID int64) (map[string]struct{}, error) {
	now := r.clock().UTC()
	var names []string
	err := r.db.WithContext(ctx).
		Table("user_memberships").
		Joins("JOIN group_memberships ON group_memberships.membership_id = user_memberships.membership_id").
		Joins("JOIN users ON users.user_id = user_memberships.user_id").
		Where("group_memberships.group_id = ?", groupID).
		Where(activeWindow("group_memberships"), now, now).
		Where(activeWindow("user_memberships"), now, now).
		Distinct().
		Pluck("users.user_name", &names).Error
	if err != nil {
		r.logger.Error("graph read failed",
			zap.String("operation", "graph.direct_members"),
			zap.Int64("group_id", groupID),
			zap.Error(err))
		return nil, fmt.Errorf("graph: resolve direct members of group %d: %w", groupID, err)
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}

// childGroupIDs returns the groups nested inside the given group: owners of
// the rosters the group actively holds.
func (r *Resolver) childGroupIDs(ctx context.Context, groupID int64) ([]int64, error) {
	now := r.clock().UTC()
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("group_memberships").
		Joins("JOIN memberships ON memberships.membership_id = group_memberships.membership_id").
		Where("group_memberships.group_id = ?", groupID).
		Where(activeWindow("group_memberships"), now, now).
		Where("memberships.owner_group_id IS NOT NULL").
		Where("memberships.owner_group_id <> ?", groupID).
		Distinct().
		Pluck("memberships.owner_group_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("graph: resolve nested groups of group %d: %w", groupID, err)
	}
	return ids, nil
}

// parentGroupIDs returns the groups nesting the given group: holders of the
// group's own rosters.
func (r *Resolver) parentGroupIDs(ctx context.Context, groupID int64) ([]int64, error) {
	now := r.clock().UTC()
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("group_memberships").
		Joins("JOIN memberships ON memberships.membership_id = group_memberships.membership_id").
		Where("memberships.owner_group_id = ?", groupID).
		Where("group_memberships.group_id <> ?", groupID).
		Where(activeWindow("group_memberships"), now, now).
		Distinct().
		Pluck("group_memberships.group_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("graph: resolve parent groups of group %d: %w", groupID, err)
	}
	return ids, nil
}

// directGroupIDs returns the groups attached to the user's active memberships.
func (r *Resolver) directGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	now := r.clock().UTC()
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("user_memberships").
		Joins("JOIN group_memberships ON group_memberships.membership_id = user_memberships.membership_id").
		Where("user_memberships.user_id = ?", userID).
		Where(activeWindow("user_memberships"), now, now).
		Where(activeWindow("group_memberships"), now, now).
		Distinct().
		Pluck("group_memberships.group_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("graph: resolve direct groups of user %d: %w", userID, err)
	}
	return ids, nil
}

func (r *Resolver) groupNames(ctx context.Context, ids map[int64]struct{}) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	flat := make([]int64, 0, len(ids))
	for id := range ids {
		flat = append(flat, id)
	}
	var names []string
	if err := r.db.WithContext(ctx).
		Model(&model.Group{}).
		Where("group_id IN ?", flat).
		Pluck("group_name", &names).Error; err != nil {
		return nil, fmt.Errorf("graph: resolve group names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Resolver) requireGroup(ctx context.Context, groupID int64) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Group{}).Where("group_id = ?", groupID).Count(&count).Error; err != nil {
		return fmt.Errorf("graph: look up group %d: %w", groupID, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: group %d", model.ErrNotFound, groupID)
	}
	return nil
}

func (r *Resolver) requireUser(ctx context.Context, userID int64) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("graph: look up user %d: %w", userID, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}
	return nil
}

func activeWindow(table string) string {
	return table + ".start_date <= ? AND (" + table + ".end_date IS NULL OR " + table + ".end_date > ?)"
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
