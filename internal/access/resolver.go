package access

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheGenKey = "access:gen"

// Resolve combines role-derived permission codes with per-user overrides
// into the effective permission set: (roles ∪ grants) \ revokes. Revoke
// always wins, including over permissions granted by several roles.
func Resolve(roleCodes []string, overrides []Override) map[string]struct{} {
	effective := make(map[string]struct{}, len(roleCodes))
	for _, code := range roleCodes {
		effective[code] = struct{}{}
	}
	for _, ov := range overrides {
		if ov.Effect == EffectGrant {
			effective[ov.PermissionCode] = struct{}{}
		}
	}
	for _, ov := range overrides {
		if ov.Effect == EffectRevoke {
			delete(effective, ov.PermissionCode)
		}
	}
	return effective
}

// SnapshotPort reads a consistent view of a user's role-derived codes and
// overrides. A user absent from every table yields two empty sets.
type SnapshotPort interface {
	Snapshot(ctx context.Context, userID int64) (roleCodes []string, overrides []Override, err error)
}

// Resolver computes effective permission sets, memoised in Redis and
// deduplicated with singleflight. The cache is optional; without a client
// every call reads through to the store.
type Resolver struct {
	repo   SnapshotPort
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver constructs a Resolver. cache may be nil.
func NewResolver(repo SnapshotPort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// EffectivePermissions resolves the user's effective permission set.
// Resolution has no error path of its own; only storage failures surface.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) (map[string]struct{}, error) {
	if r.cache == nil {
		return r.resolve(ctx, userID)
	}

	key := r.cacheKey(ctx, userID)
	if codes, ok := r.cachedSet(ctx, key); ok {
		return codes, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if codes, ok := r.cachedSet(ctx, key); ok {
			return codes, nil
		}
		effective, err := r.resolve(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.storeSet(ctx, key, effective)
		return effective, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

// HasPermission reports whether the code is in the user's effective set.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, code string) (bool, error) {
	effective, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := effective[code]
	return ok, nil
}

// HasAnyPermission reports whether at least one code is effective.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID int64, codes []string) (bool, error) {
	effective, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, code := range codes {
		if _, ok := effective[code]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether every code is effective.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID int64, codes []string) (bool, error) {
	effective, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, code := range codes {
		if _, ok := effective[code]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Bump advances the cache generation after a mutation. Entries written
// under the previous generation become unreachable and age out by TTL.
func (r *Resolver) Bump(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Incr(ctx, cacheGenKey).Err(); err != nil && r.logger != nil {
		r.logger.Warn("access: bump cache generation", slog.Any("error", err))
	}
}

func (r *Resolver) resolve(ctx context.Context, userID int64) (map[string]struct{}, error) {
	roleCodes, overrides, err := r.repo.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Resolve(roleCodes, overrides), nil
}

func (r *Resolver) cacheKey(ctx context.Context, userID int64) string {
	gen, err := r.cache.Get(ctx, cacheGenKey).Int64()
	if err != nil && r.logger != nil && err != redis.Nil {
		r.logger.Warn("access: read cache generation", slog.Any("error", err))
	}
	return fmt.Sprintf("access:perms:%d:%d", gen, userID)
}

func (r *Resolver) cachedSet(ctx context.Context, key string) (map[string]struct{}, bool) {
	payload, err := r.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var codes []string
	if err := json.Unmarshal(payload, &codes); err != nil {
		return nil, false
	}
	effective := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		effective[code] = struct{}{}
	}
	return effective, true
}

func (r *Resolver) storeSet(ctx context.Context, key string, effective map[string]struct{}) {
	codes := make([]string, 0, len(effective))
	for code := range effective {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	payload, err := json.Marshal(codes)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, payload, r.ttl).Err(); err != nil && r.logger != nil {
		r.logger.Warn("access: store resolved set", slog.Any("error", err))
	}
}
