package auth

import (
	"fmt"
	"regexp"
	"strings"
)

// Prefix constants for Casbin identifiers. Policies, groupings and requests
// all go through the helpers below so the prefixes never drift.
const (
	PrefixUser = "user:"
	PrefixRole = "role:"
	PrefixApp  = "app:"
)

// AnySubject is the policy subject that matches every authorized user.
// Apps without a required role are published under it.
const AnySubject = "*"

// AnyObject is the policy object used by label-scoped grants.
const AnyObject = "*"

// ActionView is the only action the catalog knows about.
const ActionView = "view"

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// UserID creates a Casbin user identifier with the standard prefix
// Example: UserID("Alice@Example.com") → "user:alice@example.com"
func UserID(email string) string {
	return PrefixUser + strings.ToLower(strings.TrimSpace(email))
}

// RoleID creates a Casbin role identifier with the standard prefix
// Example: RoleID("Admin") → "role:admin"
func RoleID(name string) string {
	return PrefixRole + strings.ToLower(strings.TrimSpace(name))
}

// AppID creates a Casbin object identifier for a catalog entry.
// Example: AppID("Sales Dashboard") → "app:sales-dashboard"
func AppID(name string) string {
	return PrefixApp + Slug(name)
}

// Slug lower-cases name and collapses every run of non-alphanumerics to "-".
func Slug(name string) string {
	s := slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(s, "-")
}

// ExtractRoleID extracts the role name from a Casbin principal identifier
// Example: ExtractRoleID("role:admin") → "admin", nil
func ExtractRoleID(principal string) (string, error) {
	if !strings.HasPrefix(principal, PrefixRole) {
		return "", fmt.Errorf("invalid role principal: %s (expected prefix %s)", principal, PrefixRole)
	}
	return strings.TrimPrefix(principal, PrefixRole), nil
}
