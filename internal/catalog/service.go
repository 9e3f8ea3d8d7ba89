package catalog

import (
	"context"
	"sort"
	"strings"
)

// RepositoryPort defines data access methods for the permission catalog.
type RepositoryPort interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetByCode(ctx context.Context, code string) (Permission, error)
	IDsForCodes(ctx context.Context, codes []string) (map[string]int64, error)
}

// Service exposes the runtime-immutable permission catalog.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListPermissions returns the catalog ordered by domain then code.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetByCode fetches a permission by code. Returns ErrNotFound when the
// code is not in the catalog.
func (s *Service) GetByCode(ctx context.Context, code string) (Permission, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

// LookupCodes maps permission codes to catalog ids. Codes absent from the
// catalog are missing from the result; write paths treat that as a
// validation failure so resolution never has to re-validate at read time.
func (s *Service) LookupCodes(ctx context.Context, codes []string) (map[string]int64, error) {
	return s.repo.IDsForCodes(ctx, codes)
}

// GroupByDomain buckets permissions by their domain, preserving the
// per-domain code order and sorting domains lexically.
func GroupByDomain(perms []Permission) []DomainGroup {
	byDomain := make(map[string][]Permission)
	for _, p := range perms {
		byDomain[p.Domain] = append(byDomain[p.Domain], p)
	}
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	groups := make([]DomainGroup, 0, len(domains))
	for _, d := range domains {
		bucket := byDomain[d]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].Code < bucket[j].Code })
		groups = append(groups, DomainGroup{Domain: d, Permissions: bucket})
	}
	return groups
}
