package access

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/clinova/accessd/internal/audit"
)

// RepositoryPort defines data access methods for assignments and overrides.
type RepositoryPort interface {
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	OverridesForUser(ctx context.Context, userID int64) ([]Override, error)
	ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) ([]int64, error)
	ReplaceOverrides(ctx context.Context, userID int64, overrides []resolvedOverride) ([]Override, error)
	CopyAccess(ctx context.Context, targetID, sourceID int64) error
}

// UserRecord is the slice of the externally owned user this core consumes.
type UserRecord struct {
	ID     int64
	Active bool
}

// UserDirectory looks up externally owned users by id. Implementations
// return ErrNotFound for unknown ids.
type UserDirectory interface {
	Lookup(ctx context.Context, userID int64) (UserRecord, error)
}

// CatalogPort maps permission codes to catalog ids; unknown codes are
// simply absent from the result.
type CatalogPort interface {
	LookupCodes(ctx context.Context, codes []string) (map[string]int64, error)
}

// OverrideInput is one (permission, effect) pair in a replace batch.
type OverrideInput struct {
	PermissionCode string
	Effect         Effect
}

// Service orchestrates user-role assignment and override management.
// Every mutation is a full replace; callers wanting deltas read first.
type Service struct {
	repo     RepositoryPort
	users    UserDirectory
	catalog  CatalogPort
	resolver *Resolver
	audit    audit.Recorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, users UserDirectory, cat CatalogPort, resolver *Resolver, recorder audit.Recorder) *Service {
	return &Service{repo: repo, users: users, catalog: cat, resolver: resolver, audit: recorder}
}

// Profile returns the user's roles and overrides together.
func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	if _, err := s.users.Lookup(ctx, userID); err != nil {
		return Profile{}, err
	}
	roles, err := s.repo.RolesForUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	overrides, err := s.repo.OverridesForUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{UserID: userID, Roles: roles, Overrides: overrides}, nil
}

// RolesForUser returns the roles assigned to the user.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.RolesForUser(ctx, userID)
}

// OverridesForUser returns the user's permission overrides.
func (s *Service) OverridesForUser(ctx context.Context, userID int64) ([]Override, error) {
	return s.repo.OverridesForUser(ctx, userID)
}

// AssignRoles replaces the user's role set. Duplicate ids in the input are
// deduplicated; unknown ids fail the whole call with ErrUnknownRole.
func (s *Service) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, err := s.users.Lookup(ctx, userID); err != nil {
		return err
	}
	roleIDs = dedupeIDs(roleIDs)
	prior, err := s.repo.ReplaceRoles(ctx, userID, roleIDs)
	if err != nil {
		return err
	}
	s.resolver.Bump(ctx)
	s.record(ctx, "access.assign_roles", userID, map[string]any{"role_ids": prior}, map[string]any{"role_ids": roleIDs})
	return nil
}

// SetOverrides replaces the user's entire override set. The same code
// appearing twice is ambiguous and rejects the whole batch.
func (s *Service) SetOverrides(ctx context.Context, userID int64, inputs []OverrideInput) error {
	if _, err := s.users.Lookup(ctx, userID); err != nil {
		return err
	}
	codes := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		code := strings.TrimSpace(in.PermissionCode)
		if !in.Effect.Valid() {
			return fmt.Errorf("access: effect %q: %w", in.Effect, ErrUnknownPermission)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("access: permission %q listed twice: %w", code, ErrDuplicatePermission)
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	ids, err := s.catalog.LookupCodes(ctx, codes)
	if err != nil {
		return err
	}
	for _, code := range codes {
		if _, ok := ids[code]; !ok {
			return fmt.Errorf("access: permission %q: %w", code, ErrUnknownPermission)
		}
	}

	resolved := make([]resolvedOverride, 0, len(inputs))
	for i, in := range inputs {
		resolved = append(resolved, resolvedOverride{PermissionID: ids[codes[i]], Effect: in.Effect})
	}
	prior, err := s.repo.ReplaceOverrides(ctx, userID, resolved)
	if err != nil {
		return err
	}
	s.resolver.Bump(ctx)
	s.record(ctx, "access.set_overrides", userID,
		map[string]any{"overrides": overrideSummary(prior)},
		map[string]any{"overrides": inputSummary(inputs)})
	return nil
}

// CopyAccess replaces the target's roles and overrides with the source's.
// Self-copy is a no-op success.
func (s *Service) CopyAccess(ctx context.Context, targetID, sourceID int64) error {
	if _, err := s.users.Lookup(ctx, targetID); err != nil {
		return err
	}
	if _, err := s.users.Lookup(ctx, sourceID); err != nil {
		return err
	}
	if targetID == sourceID {
		return nil
	}

	priorRoles, err := s.repo.RolesForUser(ctx, targetID)
	if err != nil {
		return err
	}
	priorOverrides, err := s.repo.OverridesForUser(ctx, targetID)
	if err != nil {
		return err
	}

	if err := s.repo.CopyAccess(ctx, targetID, sourceID); err != nil {
		return err
	}
	s.resolver.Bump(ctx)
	s.record(ctx, "access.copy", targetID,
		map[string]any{"roles": roleNames(priorRoles), "overrides": overrideSummary(priorOverrides)},
		map[string]any{"copied_from": sourceID})
	return nil
}

func (s *Service) record(ctx context.Context, action string, userID int64, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Action:   action,
		Entity:   "user_access",
		EntityID: strconv.FormatInt(userID, 10),
		Before:   before,
		After:    after,
	})
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func roleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

func overrideSummary(overrides []Override) []string {
	out := make([]string, 0, len(overrides))
	for _, ov := range overrides {
		out = append(out, ov.PermissionCode+":"+string(ov.Effect))
	}
	return out
}

func inputSummary(inputs []OverrideInput) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, in.PermissionCode+":"+string(in.Effect))
	}
	return out
}
