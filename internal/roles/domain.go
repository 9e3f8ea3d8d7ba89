package roles

import (
	"errors"
	"time"
)

// Role is a named bundle of permissions. System roles keep their name and
// existence protected while their permission set stays editable.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleWithPermissions pairs a role with its permission codes.
type RoleWithPermissions struct {
	Role
	Permissions []string
}

var (
	// ErrNotFound indicates that the requested role does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrDuplicateName indicates an existing role already uses the name,
	// compared case-insensitively.
	ErrDuplicateName = errors.New("roles: duplicate name")
	// ErrSystemRoleImmutable indicates a forbidden mutation on a system role.
	ErrSystemRoleImmutable = errors.New("roles: system role immutable")
	// ErrUnknownPermission indicates a code outside the permission catalog.
	ErrUnknownPermission = errors.New("roles: unknown permission")
)
