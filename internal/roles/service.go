package roles

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/clinova/accessd/internal/audit"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (RoleWithPermissions, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// CatalogPort maps permission codes to catalog ids; unknown codes are
// simply absent from the result.
type CatalogPort interface {
	LookupCodes(ctx context.Context, codes []string) (map[string]int64, error)
}

// ResolutionCache is bumped whenever a mutation can change any user's
// effective permissions.
type ResolutionCache interface {
	Bump(ctx context.Context)
}

// Service handles role business logic.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	cache   ResolutionCache
	audit   audit.Recorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cat CatalogPort, cache ResolutionCache, recorder audit.Recorder) *Service {
	return &Service{repo: repo, catalog: cat, cache: cache, audit: recorder}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role with its permission codes.
func (s *Service) GetRole(ctx context.Context, id int64) (RoleWithPermissions, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new custom role. Names collide case-insensitively.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: role name required")
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "roles.create", role.ID, nil, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole changes name and/or description. System roles cannot be
// renamed; their description stays editable.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return Role{}, fmt.Errorf("roles: role name required")
		}
		name = &trimmed
	}
	prior, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, name, description)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "roles.update", id,
		map[string]any{"name": prior.Name, "description": prior.Description},
		map[string]any{"name": role.Name, "description": role.Description})
	return role, nil
}

// DeleteRole removes a custom role. Assignments referencing it are
// cascaded away, shrinking affected users' resolved permissions.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	prior, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	s.record(ctx, "roles.delete", id, map[string]any{"name": prior.Name, "permissions": prior.Permissions}, nil)
	return nil
}

// SetRolePermissions replaces the role's permission set. This works on
// system roles too; only name and existence are protected.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, codes []string) (RoleWithPermissions, error) {
	codes = dedupeCodes(codes)
	ids, err := s.catalog.LookupCodes(ctx, codes)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	for _, code := range codes {
		if _, ok := ids[code]; !ok {
			return RoleWithPermissions{}, fmt.Errorf("roles: permission %q: %w", code, ErrUnknownPermission)
		}
	}
	prior, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	permissionIDs := make([]int64, 0, len(codes))
	for _, code := range codes {
		permissionIDs = append(permissionIDs, ids[code])
	}
	if err := s.repo.ReplacePermissions(ctx, roleID, permissionIDs); err != nil {
		return RoleWithPermissions{}, err
	}
	s.bump(ctx)
	s.record(ctx, "roles.set_permissions", roleID,
		map[string]any{"permissions": prior.Permissions},
		map[string]any{"permissions": codes})
	return s.repo.GetRole(ctx, roleID)
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		s.cache.Bump(ctx)
	}
}

func (s *Service) record(ctx context.Context, action string, roleID int64, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Before:   before,
		After:    after,
	})
}

func dedupeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
