package access

import "errors"

// Effect of a per-user permission override.
type Effect string

const (
	// EffectGrant adds a permission the user's roles do not provide.
	EffectGrant Effect = "grant"
	// EffectRevoke removes a permission regardless of role membership.
	EffectRevoke Effect = "revoke"
)

// Valid reports whether the effect is one of the two known values.
func (e Effect) Valid() bool {
	return e == EffectGrant || e == EffectRevoke
}

// Override is a per-user exception to role-derived permissions. A user has
// at most one override per permission code.
type Override struct {
	PermissionCode string
	Effect         Effect
}

// Role is the assignment store's view of a role.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
}

// Profile bundles a user's roles and overrides for the consumer surface.
type Profile struct {
	UserID    int64
	Roles     []Role
	Overrides []Override
}

var (
	// ErrNotFound indicates an unknown user reference.
	ErrNotFound = errors.New("access: user not found")
	// ErrUnknownRole indicates a role id outside the role store.
	ErrUnknownRole = errors.New("access: unknown role")
	// ErrUnknownPermission indicates a code outside the permission catalog.
	ErrUnknownPermission = errors.New("access: unknown permission")
	// ErrDuplicatePermission indicates the same code twice in one override batch.
	ErrDuplicatePermission = errors.New("access: duplicate permission in input")
)
