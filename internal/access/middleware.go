package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/clinova/accessd/internal/platform/httpx"
	"github.com/clinova/accessd/internal/shared"
)

// IdentityHeader carries the user id asserted by the identity gateway in
// front of this service. Requests without it are unauthenticated.
const IdentityHeader = "X-Auth-User"

// Decision is the terminal outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate is the single enforcement point: every protected route goes through
// it before a handler runs.
type Gate struct {
	Resolver *Resolver
	Users    UserDirectory
	Logger   *slog.Logger
}

// Authorize checks that the user is active and holds every required
// permission. Inactive users are denied before resolution is attempted.
// The reason never names a missing permission.
func (g Gate) Authorize(ctx context.Context, userID int64, required ...string) (Decision, error) {
	return g.authorize(ctx, userID, required, true)
}

// AuthorizeAny is Authorize with OR semantics over the required set.
func (g Gate) AuthorizeAny(ctx context.Context, userID int64, required ...string) (Decision, error) {
	return g.authorize(ctx, userID, required, false)
}

func (g Gate) authorize(ctx context.Context, userID int64, required []string, all bool) (Decision, error) {
	rec, err := g.Users.Lookup(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Decision{Reason: httpx.DenyNoPermission}, nil
		}
		return Decision{}, err
	}
	if !rec.Active {
		return Decision{Reason: httpx.DenyInactive}, nil
	}
	if len(required) == 0 {
		return Decision{Allowed: true}, nil
	}
	var ok bool
	if all {
		ok, err = g.Resolver.HasAllPermissions(ctx, userID, required)
	} else {
		ok, err = g.Resolver.HasAnyPermission(ctx, userID, required)
	}
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Reason: httpx.DenyNoPermission}, nil
	}
	return Decision{Allowed: true}, nil
}

// Authenticate resolves the identity header into a request principal.
// Requests without a usable identity are rejected before any handler runs.
func (g Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(IdentityHeader))
		if raw == "" {
			httpx.Unauthorized(w)
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Unauthorized(w)
			return
		}
		rec, err := g.Users.Lookup(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				httpx.Unauthorized(w)
				return
			}
			g.logError("lookup principal", err)
			httpx.Internal(w)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: rec.ID, Active: rec.Active})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAll ensures the principal holds every listed permission.
func (g Gate) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return g.require(perms, true)
}

// RequireAny ensures the principal holds at least one listed permission.
func (g Gate) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return g.require(perms, false)
}

func (g Gate) require(perms []string, all bool) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				httpx.Unauthorized(w)
				return
			}
			if !p.Active {
				httpx.Deny(w, httpx.DenyInactive)
				return
			}
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			var ok bool
			var err error
			if all {
				ok, err = g.Resolver.HasAllPermissions(r.Context(), p.UserID, normalized)
			} else {
				ok, err = g.Resolver.HasAnyPermission(r.Context(), p.UserID, normalized)
			}
			if err != nil {
				g.logError("gate check", err)
				httpx.Internal(w)
				return
			}
			if !ok {
				httpx.Deny(w, httpx.DenyNoPermission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Gate) logError(msg string, err error) {
	if g.Logger != nil {
		g.Logger.Error(msg, slog.Any("error", err))
	}
}

func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
