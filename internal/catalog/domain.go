package catalog

// Permission represents an atomic capability. Codes are namespaced as
// domain.action, e.g. "usermanagement.write".
type Permission struct {
	ID          int64
	Code        string
	Domain      string
	Description string
}

// DomainGroup bundles the permissions sharing one domain, for display and
// select-all-in-domain bulk operations.
type DomainGroup struct {
	Domain      string
	Permissions []Permission
}
