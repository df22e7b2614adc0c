// Package scope computes and validates per-user object key access scopes.
//
// An AccessScope is an immutable value computed once from an authenticated
// profile. All paths handled here are relative to the global root prefix
// (they never include it) and use "/" separators. Every permitted prefix
// ends with "/".
package scope

import (
	"errors"
	"fmt"
	"strings"
)

// Roles recognized by the access scheme.
const (
	RoleSuperAdmin   = "super_admin"
	RoleCompanyAdmin = "company_admin"
	RoleUser         = "user"
	RoleHR           = "hr"
)

// Profile statuses.
const (
	StatusActive            = "active"
	StatusInactive          = "inactive"
	StatusPendingActivation = "pending_activation"
)

// ErrAccessDenied is returned when a path is outside the computed scope.
var ErrAccessDenied = errors.New("access denied")

// Profile is the authenticated identity an AccessScope is derived from.
type Profile struct {
	UserID       string
	Role         string
	CompanyID    string
	DepartmentID string
	PositionID   string
	Status       string
}

// AccessScope is the set of key prefixes a profile may read and write.
// The zero value denies everything; use Compute.
type AccessScope struct {
	role         string
	companyID    string
	userID       string
	prefixes     []string
	defaultPath  string
	unrestricted bool
}

// Compute derives the scope for a profile.
// super_admin is unrestricted; company_admin gets the company root plus the
// shared and admin subtrees; user and hr get their personal subtree plus the
// company shared subtree.
func Compute(p Profile) AccessScope {
	s := AccessScope{
		role:      p.Role,
		companyID: p.CompanyID,
		userID:    p.UserID,
	}

	switch p.Role {
	case RoleSuperAdmin:
		s.unrestricted = true
		s.defaultPath = ""
	case RoleCompanyAdmin:
		s.prefixes = []string{
			CompanyBasePath(p.CompanyID),
			CompanySharedPath(p.CompanyID),
			CompanyAdminPath(p.CompanyID),
		}
		s.defaultPath = CompanyBasePath(p.CompanyID)
	default: // user, hr
		s.prefixes = []string{
			UserPersonalPath(p.CompanyID, p.UserID),
			CompanySharedPath(p.CompanyID),
		}
		s.defaultPath = UserPersonalPath(p.CompanyID, p.UserID)
	}

	return s
}

// Role returns the role the scope was computed for.
func (s AccessScope) Role() string { return s.role }

// CompanyID returns the tenant the scope was computed for ("" for super_admin
// without a tenant).
func (s AccessScope) CompanyID() string { return s.companyID }

// DefaultPath returns the landing prefix for the role.
func (s AccessScope) DefaultPath() string { return s.defaultPath }

// Prefixes returns a copy of the permitted prefixes.
func (s AccessScope) Prefixes() []string {
	out := make([]string, len(s.prefixes))
	copy(out, s.prefixes)
	return out
}

// ValidatePath reports whether the requested path is within the scope.
// Containment is segment-based, so a grant on "company-1/" never matches
// "company-10/...". Traversal segments ("..", ".") are always rejected.
func (s AccessScope) ValidatePath(path string) error {
	segs := splitSegments(path)
	for _, seg := range segs {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%w: traversal segment in %q", ErrAccessDenied, path)
		}
	}

	if s.unrestricted {
		return nil
	}

	for _, prefix := range s.prefixes {
		if segmentsHavePrefix(segs, splitSegments(prefix)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is outside the permitted scope", ErrAccessDenied, path)
}

// CompanyBasePath returns the tenant root prefix.
func CompanyBasePath(companyID string) string {
	return "company-" + companyID + "/"
}

// CompanySharedPath returns the tenant shared subtree prefix.
func CompanySharedPath(companyID string) string {
	return "company-" + companyID + "/shared/"
}

// CompanyAdminPath returns the tenant admin-only subtree prefix.
func CompanyAdminPath(companyID string) string {
	return "company-" + companyID + "/admin/"
}

// UserPersonalPath returns a user's personal subtree prefix.
func UserPersonalPath(companyID, userID string) string {
	return "company-" + companyID + "/users/" + userID + "/"
}

// ValidFileName reports whether a name is usable as a single key segment.
// Separators and traversal names would create keys invisible to one-level
// listings.
func ValidFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// TenantOf extracts the company ID from a key or path, or "" when the first
// segment is not a company prefix.
func TenantOf(path string) string {
	segs := splitSegments(path)
	if len(segs) == 0 {
		return ""
	}
	if rest, ok := strings.CutPrefix(segs[0], "company-"); ok && rest != "" {
		return rest
	}
	return ""
}

// ParentPath returns the containing folder of a key or folder path, with a
// trailing "/". The parent of a top-level entry is "".
func ParentPath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

func splitSegments(path string) []string {
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

func segmentsHavePrefix(segs, prefix []string) bool {
	if len(segs) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if segs[i] != p {
			return false
		}
	}
	return true
}
