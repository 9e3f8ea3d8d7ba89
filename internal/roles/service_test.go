package roles

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRolesRepo struct {
	roles  map[int64]Role
	perms  map[int64][]string
	nextID int64
}

func newMemoryRolesRepo() *memoryRolesRepo {
	return &memoryRolesRepo{
		roles: make(map[int64]Role),
		perms: make(map[int64][]string),
	}
}

func (r *memoryRolesRepo) add(name string, system bool, codes ...string) int64 {
	r.nextID++
	r.roles[r.nextID] = Role{ID: r.nextID, Name: name, IsSystem: system}
	r.perms[r.nextID] = codes
	return r.nextID
}

func (r *memoryRolesRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRolesRepo) GetRole(ctx context.Context, id int64) (RoleWithPermissions, error) {
	role, ok := r.roles[id]
	if !ok {
		return RoleWithPermissions{}, ErrNotFound
	}
	return RoleWithPermissions{Role: role, Permissions: append([]string(nil), r.perms[id]...)}, nil
}

func (r *memoryRolesRepo) nameTaken(name string, exceptID int64) bool {
	for id, role := range r.roles {
		if id != exceptID && strings.EqualFold(role.Name, name) {
			return true
		}
	}
	return false
}

func (r *memoryRolesRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	if r.nameTaken(name, 0) {
		return Role{}, ErrDuplicateName
	}
	r.nextID++
	role := Role{ID: r.nextID, Name: name, Description: description}
	r.roles[r.nextID] = role
	return role, nil
}

func (r *memoryRolesRepo) UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	if name != nil && !strings.EqualFold(role.Name, *name) {
		if role.IsSystem {
			return Role{}, ErrSystemRoleImmutable
		}
		if r.nameTaken(*name, id) {
			return Role{}, ErrDuplicateName
		}
		role.Name = *name
	}
	if description != nil {
		role.Description = *description
	}
	r.roles[id] = role
	return role, nil
}

func (r *memoryRolesRepo) DeleteRole(ctx context.Context, id int64) error {
	role, ok := r.roles[id]
	if !ok {
		return ErrNotFound
	}
	if role.IsSystem {
		return ErrSystemRoleImmutable
	}
	delete(r.roles, id)
	delete(r.perms, id)
	return nil
}

func (r *memoryRolesRepo) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, ok := r.roles[roleID]; !ok {
		return ErrNotFound
	}
	codes := make([]string, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		codes = append(codes, codeByID[id])
	}
	r.perms[roleID] = codes
	return nil
}

var codeByID = map[int64]string{
	10: "billing.read",
	11: "billing.write",
	12: "vedika.read",
}

type rolesCatalogStub struct{}

func (rolesCatalogStub) LookupCodes(ctx context.Context, codes []string) (map[string]int64, error) {
	known := map[string]int64{"billing.read": 10, "billing.write": 11, "vedika.read": 12}
	out := make(map[string]int64, len(codes))
	for _, code := range codes {
		if id, ok := known[code]; ok {
			out[code] = id
		}
	}
	return out, nil
}

type bumpCounter struct {
	n int
}

func (b *bumpCounter) Bump(ctx context.Context) { b.n++ }

func newRolesFixture() (*Service, *memoryRolesRepo, *bumpCounter) {
	repo := newMemoryRolesRepo()
	bumps := &bumpCounter{}
	service := NewService(repo, rolesCatalogStub{}, bumps, nil)
	return service, repo, bumps
}

func TestCreateRoleTrimsAndRecords(t *testing.T) {
	service, _, _ := newRolesFixture()

	role, err := service.CreateRole(context.Background(), "  Perawat  ", " Ward nurse ")
	require.NoError(t, err)
	require.Equal(t, "Perawat", role.Name)
	require.Equal(t, "Ward nurse", role.Description)
	require.False(t, role.IsSystem)
}

func TestCreateRoleEmptyName(t *testing.T) {
	service, _, _ := newRolesFixture()

	_, err := service.CreateRole(context.Background(), "   ", "")
	require.Error(t, err)
}

func TestCreateRoleDuplicateNameCaseInsensitive(t *testing.T) {
	service, repo, _ := newRolesFixture()
	repo.add("kasir", true)

	_, err := service.CreateRole(context.Background(), "KASIR", "")
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestUpdateRoleRename(t *testing.T) {
	service, _, _ := newRolesFixture()
	created, err := service.CreateRole(context.Background(), "perawat", "")
	require.NoError(t, err)

	name := "perawat senior"
	updated, err := service.UpdateRole(context.Background(), created.ID, &name, nil)
	require.NoError(t, err)
	require.Equal(t, "perawat senior", updated.Name)
}

func TestUpdateSystemRoleRenameRejected(t *testing.T) {
	service, repo, _ := newRolesFixture()
	id := repo.add("kasir", true)

	name := "cashier"
	_, err := service.UpdateRole(context.Background(), id, &name, nil)
	require.ErrorIs(t, err, ErrSystemRoleImmutable)
}

func TestUpdateSystemRoleDescriptionAllowed(t *testing.T) {
	service, repo, _ := newRolesFixture()
	id := repo.add("kasir", true)

	desc := "Front desk cashier"
	updated, err := service.UpdateRole(context.Background(), id, nil, &desc)
	require.NoError(t, err)
	require.Equal(t, "Front desk cashier", updated.Description)
}

func TestDeleteSystemRoleRejected(t *testing.T) {
	service, repo, bumps := newRolesFixture()
	id := repo.add("administrator", true)

	err := service.DeleteRole(context.Background(), id)
	require.ErrorIs(t, err, ErrSystemRoleImmutable)
	require.Zero(t, bumps.n)
}

func TestDeleteCustomRoleBumpsResolution(t *testing.T) {
	service, repo, bumps := newRolesFixture()
	created, err := service.CreateRole(context.Background(), "perawat", "")
	require.NoError(t, err)

	require.NoError(t, service.DeleteRole(context.Background(), created.ID))
	_, ok := repo.roles[created.ID]
	require.False(t, ok)
	require.Equal(t, 1, bumps.n)
}

func TestDeleteUnknownRole(t *testing.T) {
	service, _, _ := newRolesFixture()
	require.ErrorIs(t, service.DeleteRole(context.Background(), 404), ErrNotFound)
}

func TestSetRolePermissionsReplacesSet(t *testing.T) {
	service, repo, bumps := newRolesFixture()
	id := repo.add("kasir", true, "billing.read")

	updated, err := service.SetRolePermissions(context.Background(), id, []string{"billing.read", "billing.write", "billing.read"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"billing.read", "billing.write"}, updated.Permissions)
	require.Equal(t, 1, bumps.n)
}

func TestSetRolePermissionsOnSystemRoleAllowed(t *testing.T) {
	// Only name and existence are protected on system roles.
	service, repo, _ := newRolesFixture()
	id := repo.add("administrator", true, "billing.read", "billing.write")

	updated, err := service.SetRolePermissions(context.Background(), id, []string{"vedika.read"})
	require.NoError(t, err)
	require.Equal(t, []string{"vedika.read"}, updated.Permissions)
}

func TestSetRolePermissionsUnknownCode(t *testing.T) {
	service, repo, bumps := newRolesFixture()
	id := repo.add("kasir", true, "billing.read")

	_, err := service.SetRolePermissions(context.Background(), id, []string{"nosuch.code"})
	require.ErrorIs(t, err, ErrUnknownPermission)
	require.Zero(t, bumps.n)
	require.Equal(t, []string{"billing.read"}, repo.perms[id])
}

func TestSetRolePermissionsEmptySetAllowed(t *testing.T) {
	service, repo, _ := newRolesFixture()
	id := repo.add("kasir", true, "billing.read")

	updated, err := service.SetRolePermissions(context.Background(), id, nil)
	require.NoError(t, err)
	require.Empty(t, updated.Permissions)
	require.Empty(t, repo.perms[id])
}
