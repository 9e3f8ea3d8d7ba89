package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinova/accessd/internal/audit"
)

type memoryAccessRepo struct {
	roles     map[int64]Role
	userRoles map[int64][]int64
	overrides map[int64][]resolvedOverride
	codeByID  map[int64]string
}

func newMemoryAccessRepo() *memoryAccessRepo {
	return &memoryAccessRepo{
		roles:     make(map[int64]Role),
		userRoles: make(map[int64][]int64),
		overrides: make(map[int64][]resolvedOverride),
		codeByID:  make(map[int64]string),
	}
}

func (r *memoryAccessRepo) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	out := make([]Role, 0, len(r.userRoles[userID]))
	for _, id := range r.userRoles[userID] {
		out = append(out, r.roles[id])
	}
	return out, nil
}

func (r *memoryAccessRepo) OverridesForUser(ctx context.Context, userID int64) ([]Override, error) {
	out := make([]Override, 0, len(r.overrides[userID]))
	for _, ov := range r.overrides[userID] {
		out = append(out, Override{PermissionCode: r.codeByID[ov.PermissionID], Effect: ov.Effect})
	}
	return out, nil
}

func (r *memoryAccessRepo) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) ([]int64, error) {
	for _, id := range roleIDs {
		if _, ok := r.roles[id]; !ok {
			return nil, ErrUnknownRole
		}
	}
	prior := r.userRoles[userID]
	r.userRoles[userID] = append([]int64(nil), roleIDs...)
	return prior, nil
}

func (r *memoryAccessRepo) ReplaceOverrides(ctx context.Context, userID int64, overrides []resolvedOverride) ([]Override, error) {
	prior, _ := r.OverridesForUser(ctx, userID)
	r.overrides[userID] = append([]resolvedOverride(nil), overrides...)
	return prior, nil
}

func (r *memoryAccessRepo) CopyAccess(ctx context.Context, targetID, sourceID int64) error {
	r.userRoles[targetID] = append([]int64(nil), r.userRoles[sourceID]...)
	r.overrides[targetID] = append([]resolvedOverride(nil), r.overrides[sourceID]...)
	return nil
}

func (r *memoryAccessRepo) Snapshot(ctx context.Context, userID int64) ([]string, []Override, error) {
	overrides, _ := r.OverridesForUser(ctx, userID)
	return nil, overrides, nil
}

type directoryStub struct {
	users map[int64]UserRecord
}

func (d directoryStub) Lookup(ctx context.Context, userID int64) (UserRecord, error) {
	u, ok := d.users[userID]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return u, nil
}

type catalogStub struct {
	ids map[string]int64
}

func (c catalogStub) LookupCodes(ctx context.Context, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))
	for _, code := range codes {
		if id, ok := c.ids[code]; ok {
			out[code] = id
		}
	}
	return out, nil
}

type recorderStub struct {
	events []audit.Event
}

func (r *recorderStub) Record(ctx context.Context, e audit.Event) {
	r.events = append(r.events, e)
}

func newAccessFixture() (*Service, *memoryAccessRepo, *recorderStub) {
	repo := newMemoryAccessRepo()
	repo.roles[1] = Role{ID: 1, Name: "kasir", IsSystem: true}
	repo.roles[2] = Role{ID: 2, Name: "dokter", IsSystem: true}
	repo.codeByID = map[int64]string{10: "billing.read", 11: "billing.write", 12: "vedika.read"}

	directory := directoryStub{users: map[int64]UserRecord{
		7: {ID: 7, Active: true},
		8: {ID: 8, Active: true},
		9: {ID: 9, Active: false},
	}}
	catalog := catalogStub{ids: map[string]int64{"billing.read": 10, "billing.write": 11, "vedika.read": 12}}
	recorder := &recorderStub{}
	resolver := NewResolver(repo, nil, time.Minute, nil)
	service := NewService(repo, directory, catalog, resolver, recorder)
	return service, repo, recorder
}

func TestAssignRolesReplacesAndDedupes(t *testing.T) {
	service, repo, recorder := newAccessFixture()
	ctx := context.Background()

	require.NoError(t, service.AssignRoles(ctx, 7, []int64{1, 2, 1}))
	require.Equal(t, []int64{1, 2}, repo.userRoles[7])

	require.NoError(t, service.AssignRoles(ctx, 7, []int64{2}))
	require.Equal(t, []int64{2}, repo.userRoles[7])
	require.Len(t, recorder.events, 2)
	require.Equal(t, "access.assign_roles", recorder.events[0].Action)
}

func TestAssignRolesUnknownUser(t *testing.T) {
	service, _, _ := newAccessFixture()

	err := service.AssignRoles(context.Background(), 404, []int64{1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAssignRolesUnknownRole(t *testing.T) {
	service, repo, _ := newAccessFixture()
	ctx := context.Background()
	require.NoError(t, service.AssignRoles(ctx, 7, []int64{1}))

	err := service.AssignRoles(ctx, 7, []int64{1, 99})
	require.ErrorIs(t, err, ErrUnknownRole)
	// Failed replace leaves the previous assignment intact.
	require.Equal(t, []int64{1}, repo.userRoles[7])
}

func TestAssignRolesEmptySetAllowed(t *testing.T) {
	service, repo, _ := newAccessFixture()
	ctx := context.Background()
	require.NoError(t, service.AssignRoles(ctx, 7, []int64{1, 2}))

	require.NoError(t, service.AssignRoles(ctx, 7, nil))
	require.Empty(t, repo.userRoles[7])
}

func TestSetOverridesReplacesWholeSet(t *testing.T) {
	service, repo, recorder := newAccessFixture()
	ctx := context.Background()

	require.NoError(t, service.SetOverrides(ctx, 7, []OverrideInput{
		{PermissionCode: "billing.read", Effect: EffectGrant},
		{PermissionCode: "billing.write", Effect: EffectRevoke},
	}))
	require.Len(t, repo.overrides[7], 2)

	require.NoError(t, service.SetOverrides(ctx, 7, []OverrideInput{
		{PermissionCode: "vedika.read", Effect: EffectGrant},
	}))
	require.Len(t, repo.overrides[7], 1)
	require.Equal(t, int64(12), repo.overrides[7][0].PermissionID)
	require.Len(t, recorder.events, 2)
}

func TestSetOverridesDuplicateCodeRejected(t *testing.T) {
	service, repo, _ := newAccessFixture()

	err := service.SetOverrides(context.Background(), 7, []OverrideInput{
		{PermissionCode: "billing.read", Effect: EffectGrant},
		{PermissionCode: "billing.read", Effect: EffectRevoke},
	})
	require.ErrorIs(t, err, ErrDuplicatePermission)
	require.Empty(t, repo.overrides[7])
}

func TestSetOverridesUnknownPermission(t *testing.T) {
	service, _, _ := newAccessFixture()

	err := service.SetOverrides(context.Background(), 7, []OverrideInput{
		{PermissionCode: "nosuch.code", Effect: EffectGrant},
	})
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestSetOverridesInvalidEffect(t *testing.T) {
	service, _, _ := newAccessFixture()

	err := service.SetOverrides(context.Background(), 7, []OverrideInput{
		{PermissionCode: "billing.read", Effect: Effect("deny")},
	})
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestCopyAccessReplacesTarget(t *testing.T) {
	service, repo, recorder := newAccessFixture()
	ctx := context.Background()
	require.NoError(t, service.AssignRoles(ctx, 7, []int64{1}))
	require.NoError(t, service.SetOverrides(ctx, 7, []OverrideInput{
		{PermissionCode: "vedika.read", Effect: EffectGrant},
	}))
	require.NoError(t, service.AssignRoles(ctx, 8, []int64{2}))

	require.NoError(t, service.CopyAccess(ctx, 8, 7))
	require.Equal(t, []int64{1}, repo.userRoles[8])
	require.Len(t, repo.overrides[8], 1)
	require.Equal(t, "access.copy", recorder.events[len(recorder.events)-1].Action)
}

func TestCopyAccessSelfCopyNoop(t *testing.T) {
	service, repo, recorder := newAccessFixture()
	ctx := context.Background()
	require.NoError(t, service.AssignRoles(ctx, 7, []int64{1}))
	before := len(recorder.events)

	require.NoError(t, service.CopyAccess(ctx, 7, 7))
	require.Equal(t, []int64{1}, repo.userRoles[7])
	require.Len(t, recorder.events, before)
}

func TestCopyAccessUnknownUsers(t *testing.T) {
	service, _, _ := newAccessFixture()
	ctx := context.Background()

	require.ErrorIs(t, service.CopyAccess(ctx, 404, 7), ErrNotFound)
	require.ErrorIs(t, service.CopyAccess(ctx, 7, 404), ErrNotFound)
}

func TestProfileBundlesRolesAndOverrides(t *testing.T) {
	service, _, _ := newAccessFixture()
	ctx := context.Background()
	require.NoError(t, service.AssignRoles(ctx, 7, []int64{1}))
	require.NoError(t, service.SetOverrides(ctx, 7, []OverrideInput{
		{PermissionCode: "billing.write", Effect: EffectRevoke},
	}))

	profile, err := service.Profile(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), profile.UserID)
	require.Len(t, profile.Roles, 1)
	require.Equal(t, "kasir", profile.Roles[0].Name)
	require.Len(t, profile.Overrides, 1)
	require.Equal(t, EffectRevoke, profile.Overrides[0].Effect)
}
