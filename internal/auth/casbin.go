package auth

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

//go:embed model.conf
var casbinModelContent string

// InitEnforcer builds an in-memory Casbin enforcer for one config snapshot.
//
// Policies:
//   - every app is published to role:<required_role>, or to "*" when it has none
//   - every grant publishes all apps matching its filter to role:<role>
//
// Groupings map user:<email> to role:<name> for each entry of the role table.
func InitEnforcer(portal config.PortalConfig, roles access.RoleTable) (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	// Register custom bexprMatch function for label-scoped grants
	enforcer.AddFunction("bexprMatch", BexprMatchFunction())

	for _, app := range portal.Apps {
		sub := AnySubject
		if role := access.NormalizeRole(app.RequiredRole); role != "" {
			sub = RoleID(role)
		}
		if _, err := enforcer.AddPolicy(sub, AppID(app.Name), ActionView, ""); err != nil {
			return nil, fmt.Errorf("add policy for app %q: %w", app.Name, err)
		}
	}

	for i, grant := range portal.Grants {
		role := access.NormalizeRole(grant.Role)
		if role == "" {
			continue
		}
		if grant.Filter != "" {
			if _, err := CompileBexpr(grant.Filter); err != nil {
				return nil, fmt.Errorf("grant %d: %w", i, err)
			}
		}
		if _, err := enforcer.AddPolicy(RoleID(role), AnyObject, ActionView, grant.Filter); err != nil {
			return nil, fmt.Errorf("add grant policy for role %q: %w", role, err)
		}
	}

	names := make([]string, 0, len(roles))
	for role := range roles {
		names = append(names, role)
	}
	sort.Strings(names)
	for _, role := range names {
		members := make([]string, 0, len(roles[role]))
		for email := range roles[role] {
			members = append(members, email)
		}
		sort.Strings(members)
		for _, email := range members {
			if _, err := enforcer.AddGroupingPolicy(UserID(email), RoleID(role)); err != nil {
				return nil, fmt.Errorf("add role %q for %s: %w", role, email, err)
			}
		}
	}

	return enforcer, nil
}

// CanView checks whether email may see app. Enforcement errors deny.
func CanView(enforcer casbin.IEnforcer, email string, app config.AppConfig) (bool, error) {
	labels := make(map[string]any, len(app.Labels))
	for k, v := range app.Labels {
		labels[k] = v
	}
	allowed, err := enforcer.Enforce(UserID(email), AppID(app.Name), ActionView, labels)
	if err != nil {
		return false, fmt.Errorf("enforce view on %s: %w", AppID(app.Name), err)
	}
	return allowed, nil
}
