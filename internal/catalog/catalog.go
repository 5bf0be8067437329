// Package catalog holds the links the portal serves and decides which of them
// a caller may see.
package catalog

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/casbin/casbin/v2"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

// App is a catalog entry as returned by the API.
type App struct {
	Name         string            `json:"name"`
	Slug         string            `json:"slug"`
	URL          string            `json:"url"`
	Host         string            `json:"host"`
	RequiredRole string            `json:"required_role,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`

	source config.AppConfig
}

// Catalog is the immutable app list of one config snapshot together with
// the enforcer that gates it.
type Catalog struct {
	apps     []App
	enforcer casbin.IEnforcer
}

// New validates the configured apps and builds their visibility policies.
func New(portal config.PortalConfig, roles access.RoleTable) (*Catalog, error) {
	apps := make([]App, 0, len(portal.Apps))
	seen := make(map[string]string, len(portal.Apps))

	for i, entry := range portal.Apps {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("app %d: name is required", i)
		}
		u, err := url.Parse(strings.TrimSpace(entry.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("app %q: url must be absolute", name)
		}
		slug := auth.Slug(name)
		if prev, dup := seen[slug]; dup {
			return nil, fmt.Errorf("app %q collides with %q (both become %q)", name, prev, slug)
		}
		seen[slug] = name
		if err := ValidateLabels(entry.Labels); err != nil {
			return nil, fmt.Errorf("app %q: %w", name, err)
		}

		apps = append(apps, App{
			Name:         name,
			Slug:         slug,
			URL:          u.String(),
			Host:         ShortHost(u.String(), portal.HostSuffix),
			RequiredRole: access.NormalizeRole(entry.RequiredRole),
			Labels:       entry.Labels,
			source:       entry,
		})
	}

	enforcer, err := auth.InitEnforcer(portal, roles)
	if err != nil {
		return nil, fmt.Errorf("build catalog policies: %w", err)
	}
	return &Catalog{apps: apps, enforcer: enforcer}, nil
}

// Len returns the number of configured apps.
func (c *Catalog) Len() int {
	return len(c.apps)
}

// All returns every configured app in configuration order.
func (c *Catalog) All() []App {
	return append([]App(nil), c.apps...)
}

// Visible returns the apps email may open, in configuration order.
func (c *Catalog) Visible(email string) ([]App, error) {
	out := make([]App, 0, len(c.apps))
	for _, app := range c.apps {
		ok, err := auth.CanView(c.enforcer, email, app.source)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, app)
		}
	}
	return out, nil
}

// ShortHost returns the host of rawURL with suffix removed, for display.
// Unparseable input is returned unchanged.
func ShortHost(rawURL, suffix string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if suffix == "" {
		return u.Host
	}
	return strings.Replace(u.Host, suffix, "", 1)
}
