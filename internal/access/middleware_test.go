package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinova/accessd/internal/platform/httpx"
	"github.com/clinova/accessd/internal/shared"
)

type gateSnapshot struct {
	codesByUser map[int64][]string
}

func (s gateSnapshot) Snapshot(ctx context.Context, userID int64) ([]string, []Override, error) {
	return s.codesByUser[userID], nil, nil
}

func newTestGate() Gate {
	snapshot := gateSnapshot{codesByUser: map[int64][]string{
		7: {"billing.read", "usermanagement.read"},
		8: {"billing.read"},
	}}
	directory := directoryStub{users: map[int64]UserRecord{
		7: {ID: 7, Active: true},
		8: {ID: 8, Active: true},
		9: {ID: 9, Active: false},
	}}
	return Gate{
		Resolver: NewResolver(snapshot, nil, time.Minute, nil),
		Users:    directory,
	}
}

func performGate(t *testing.T, gate Gate, userID string, mw func(http.Handler) http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler = gate.Authenticate(mw(handler))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if userID != "" {
		req.Header.Set(IdentityHeader, userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGateMissingIdentityRejected(t *testing.T) {
	gate := newTestGate()
	rec := performGate(t, gate, "", gate.RequireAll("billing.read"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateMalformedIdentityRejected(t *testing.T) {
	gate := newTestGate()
	rec := performGate(t, gate, "not-a-number", gate.RequireAll("billing.read"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateUnknownUserRejected(t *testing.T) {
	gate := newTestGate()
	rec := performGate(t, gate, "404", gate.RequireAll("billing.read"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateInactiveUserDenied(t *testing.T) {
	gate := newTestGate()
	rec := performGate(t, gate, "9", gate.RequireAll("billing.read"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), httpx.DenyInactive)
}

func TestGateAllowsWithPermission(t *testing.T) {
	gate := newTestGate()
	rec := performGate(t, gate, "7", gate.RequireAll("billing.read"))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGateDeniesWithoutNamingPermission(t *testing.T) {
	gate := newTestGate()
	rec := performGate(t, gate, "8", gate.RequireAll("usermanagement.write"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), httpx.DenyNoPermission)
	require.NotContains(t, rec.Body.String(), "usermanagement.write")
}

func TestGateRequireAnySemantics(t *testing.T) {
	gate := newTestGate()
	rec := performGate(t, gate, "8", gate.RequireAny("usermanagement.read", "billing.read"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = performGate(t, gate, "8", gate.RequireAny("usermanagement.read", "rolemanagement.read"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGateAuthenticateStoresPrincipal(t *testing.T) {
	gate := newTestGate()
	var got *shared.Principal
	handler := gate.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(IdentityHeader, "7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, int64(7), got.UserID)
	require.True(t, got.Active)
}

func TestGateAuthorizeDecisions(t *testing.T) {
	gate := newTestGate()
	ctx := context.Background()

	decision, err := gate.Authorize(ctx, 7, "billing.read", "usermanagement.read")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = gate.Authorize(ctx, 8, "billing.read", "usermanagement.read")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, httpx.DenyNoPermission, decision.Reason)

	decision, err = gate.Authorize(ctx, 9, "billing.read")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, httpx.DenyInactive, decision.Reason)

	decision, err = gate.AuthorizeAny(ctx, 8, "usermanagement.read", "billing.read")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = gate.Authorize(ctx, 404, "billing.read")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, httpx.DenyNoPermission, decision.Reason)
}
