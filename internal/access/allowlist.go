package access

import (
	"sort"
	"strings"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

// Allowlist is the set of explicitly permitted emails and email domains.
type Allowlist struct {
	Emails  map[string]struct{}
	Domains []string
	// DenyWhenEmpty flips the empty-list policy from allow-all to deny-all.
	DenyWhenEmpty bool
}

// NewAllowlist builds an Allowlist from raw entries, normalizing each one.
func NewAllowlist(emails, domains []string) Allowlist {
	list := Allowlist{Emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		if e = NormalizeEmail(e); e != "" {
			list.Emails[e] = struct{}{}
		}
	}
	for _, d := range domains {
		if d = strings.TrimPrefix(NormalizeEmail(d), "@"); d != "" {
			list.Domains = append(list.Domains, d)
		}
	}
	return list
}

// AllowlistFrom derives the allowlist from configuration.
func AllowlistFrom(cfg *config.AuthConfig) Allowlist {
	if cfg == nil {
		return NewAllowlist(nil, nil)
	}
	list := NewAllowlist(cfg.AllowedEmails, cfg.AllowedDomains)
	list.DenyWhenEmpty = cfg.EmptyAllowlist == config.EmptyAllowlistDeny
	return list
}

// Empty reports whether neither emails nor domains were configured.
func (a Allowlist) Empty() bool {
	return len(a.Emails) == 0 && len(a.Domains) == 0
}

// IsAllowed reports whether email passes the allowlist. An empty email never
// passes; an empty allowlist passes every email unless DenyWhenEmpty is set.
func IsAllowed(email string, list Allowlist) bool {
	email = NormalizeEmail(email)
	if email == "" {
		return false
	}
	if list.Empty() {
		return !list.DenyWhenEmpty
	}
	if _, ok := list.Emails[email]; ok {
		return true
	}
	for _, domain := range list.Domains {
		if strings.HasSuffix(email, "@"+domain) {
			return true
		}
	}
	return false
}

// RoleTable maps role names to the emails holding them.
type RoleTable map[string]map[string]struct{}

// NewRoleTable builds a RoleTable, normalizing role names and emails.
func NewRoleTable(roles map[string][]string) RoleTable {
	table := make(RoleTable, len(roles))
	for role, members := range roles {
		role = NormalizeRole(role)
		if role == "" {
			continue
		}
		set := table[role]
		if set == nil {
			set = make(map[string]struct{}, len(members))
			table[role] = set
		}
		for _, m := range members {
			if m = NormalizeEmail(m); m != "" {
				set[m] = struct{}{}
			}
		}
	}
	return table
}

// RoleTableFrom derives the role table from configuration.
func RoleTableFrom(cfg *config.AuthConfig) RoleTable {
	if cfg == nil {
		return RoleTable{}
	}
	return NewRoleTable(cfg.Roles)
}

// RolesOf returns the sorted role names email holds.
func (t RoleTable) RolesOf(email string) []string {
	email = NormalizeEmail(email)
	var roles []string
	for role, members := range t {
		if _, ok := members[email]; ok {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles
}

// HasRole reports whether email holds role. An empty role is always satisfied.
func HasRole(email, role string, table RoleTable) bool {
	role = NormalizeRole(role)
	if role == "" {
		return true
	}
	email = NormalizeEmail(email)
	if email == "" {
		return false
	}
	_, ok := table[role][email]
	return ok
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRole lower-cases and trims a role name.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
