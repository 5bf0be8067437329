package access

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

// MinCookieSecretLength matches a urlsafe base64 encoding of 32 random bytes.
const MinCookieSecretLength = 43

const (
	googleHost           = "accounts.google.com"
	googleClientIDSuffix = ".apps.googleusercontent.com"
)

// ProblemNoConfiguration is reported when no provider block yields a candidate.
const ProblemNoConfiguration = "no valid OIDC configuration found"

// Resolution is the outcome of provider discovery. Provider is empty for the
// default provider declared directly under auth.
type Resolution struct {
	Provider string
	// Scope says where Provider was declared; see config.ProviderRef.
	Scope    config.ProviderScope
	Found    bool
	Problems []string
}

// Ref identifies the resolved settings for config.AuthConfig lookups.
func (r Resolution) Ref() config.ProviderRef {
	return config.ProviderRef{Scope: r.Scope, Name: r.Provider}
}

// Default reports whether the candidate is the unnamed root provider.
func (r Resolution) Default() bool {
	return r.Found && r.Provider == ""
}

// Usable reports whether a candidate was found without any recorded problem.
func (r Resolution) Usable() bool {
	return r.Found && len(r.Problems) == 0
}

// ResolveProvider picks the active OIDC provider. It never fails; missing
// sections simply contribute nothing.
//
// Priority: complete root with callback keys, then the first complete named
// provider, then the legacy oidc block, then an incomplete-root candidate.
func ResolveProvider(cfg *config.AuthConfig) Resolution {
	if cfg == nil {
		cfg = &config.AuthConfig{}
	}

	root := cfg.Root
	rootMissing := root.MissingCallbackKeys()
	if root.Complete() && len(rootMissing) == 0 {
		return Resolution{Scope: config.ScopeRoot, Found: true}
	}

	for _, p := range cfg.Providers {
		if !p.Complete() {
			continue
		}
		res := Resolution{Provider: p.Name, Scope: config.ScopeNamed, Found: true}
		if missing := inheritedMissing(p.ProviderSettings, root); len(missing) > 0 {
			res.Problems = append(res.Problems, fmt.Sprintf(
				"provider %q needs %s under [auth]", p.Name, strings.Join(missing, ", ")))
		}
		return res
	}

	var problems []string

	legacy := cfg.Legacy
	if !legacy.Empty() {
		missing := legacy.MissingKeys()
		if len(missing) == 0 {
			return Resolution{Provider: config.LegacyProviderName, Scope: config.ScopeLegacy, Found: true}
		}
		problems = append(problems, fmt.Sprintf("[%s] is missing %s", config.LegacyProviderName, strings.Join(missing, ", ")))
	}

	if root.Complete() {
		problems = append([]string{fmt.Sprintf("[auth] is missing %s", strings.Join(rootMissing, ", "))}, problems...)
		return Resolution{Scope: config.ScopeRoot, Found: true, Problems: problems}
	}
	if !root.Empty() {
		problems = append([]string{fmt.Sprintf("[auth] is missing %s", strings.Join(root.MissingKeys(), ", "))}, problems...)
	}

	if len(problems) == 0 {
		problems = append(problems, ProblemNoConfiguration)
	}
	return Resolution{Problems: problems}
}

// inheritedMissing lists callback keys set neither on the provider nor on the root.
func inheritedMissing(p, root config.ProviderSettings) []string {
	var missing []string
	if p.RedirectURI == "" && root.RedirectURI == "" {
		missing = append(missing, config.KeyRedirectURI)
	}
	if p.CookieSecret == "" && root.CookieSecret == "" {
		missing = append(missing, config.KeyCookieSecret)
	}
	return missing
}

// ValidateProvider reports malformed values in a provider that is otherwise
// complete. Empty values are left to ResolveProvider.
func ValidateProvider(p config.ProviderSettings) []string {
	var problems []string

	var host string
	if p.MetadataURL != "" {
		u, err := url.Parse(p.MetadataURL)
		switch {
		case err != nil || u.Host == "":
			problems = append(problems, fmt.Sprintf("%s is not an absolute URL", config.KeyMetadataURL))
		case u.Scheme != "https":
			problems = append(problems, fmt.Sprintf("%s must use https", config.KeyMetadataURL))
		default:
			host = strings.ToLower(u.Hostname())
		}
	}

	if host == googleHost && p.ClientID != "" && !strings.HasSuffix(p.ClientID, googleClientIDSuffix) {
		problems = append(problems, fmt.Sprintf("%s does not end with %s", config.KeyClientID, googleClientIDSuffix))
	}

	if p.CookieSecret != "" && len(p.CookieSecret) < MinCookieSecretLength {
		problems = append(problems, fmt.Sprintf("%s is shorter than %d characters", config.KeyCookieSecret, MinCookieSecretLength))
	}

	if p.RedirectURI != "" {
		if u, err := url.Parse(p.RedirectURI); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s is not an absolute URL", config.KeyRedirectURI))
		}
	}
	return problems
}
