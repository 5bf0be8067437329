package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Keys a provider scope must carry.
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyMetadataURL  = "server_metadata_url"
	KeyRedirectURI  = "redirect_uri"
	KeyCookieSecret = "cookie_secret"

	// KeyDiscoveryURL is the legacy spelling of KeyMetadataURL.
	KeyDiscoveryURL = "discovery_url"
)

// LegacyProviderName is the provider key reported for the top-level oidc block.
const LegacyProviderName = "oidc"

// Empty allowlist policies.
const (
	EmptyAllowlistAllow = "allow"
	EmptyAllowlistDeny  = "deny"
)

// reservedAuthScopes are mapping-valued keys under auth that are never providers.
var reservedAuthScopes = map[string]bool{
	"local": true,
}

// ProviderSettings is one OIDC credential set after normalization.
// MetadataURL holds whichever of server_metadata_url or discovery_url was supplied.
type ProviderSettings struct {
	ClientID     string
	ClientSecret string
	MetadataURL  string
	RedirectURI  string
	CookieSecret string
}

// Complete reports whether the credential triple needed to talk to the IdP is present.
func (p ProviderSettings) Complete() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.MetadataURL != ""
}

// Empty reports whether no key at all was supplied.
func (p ProviderSettings) Empty() bool {
	return p == ProviderSettings{}
}

// MissingCallbackKeys lists redirect_uri and cookie_secret when absent.
func (p ProviderSettings) MissingCallbackKeys() []string {
	var missing []string
	if p.RedirectURI == "" {
		missing = append(missing, KeyRedirectURI)
	}
	if p.CookieSecret == "" {
		missing = append(missing, KeyCookieSecret)
	}
	return missing
}

// MissingKeys lists every absent key of the five a standalone block needs.
func (p ProviderSettings) MissingKeys() []string {
	var missing []string
	if p.ClientID == "" {
		missing = append(missing, KeyClientID)
	}
	if p.ClientSecret == "" {
		missing = append(missing, KeyClientSecret)
	}
	if p.MetadataURL == "" {
		missing = append(missing, KeyMetadataURL)
	}
	return append(missing, p.MissingCallbackKeys()...)
}

// NamedProvider is a provider declared as a sub-scope of auth.
type NamedProvider struct {
	Name string
	ProviderSettings
}

// LocalUser is a credential declared inline in configuration.
type LocalUser struct {
	PasswordHash string `mapstructure:"password_hash"`
	Email        string `mapstructure:"email"`
}

// LocalAuthConfig controls the username/password mechanism.
type LocalAuthConfig struct {
	Enabled           bool
	AllowDefaultAdmin bool
	// Users is keyed by lower-cased username.
	Users map[string]LocalUser
}

// AuthConfig is the canonical view of the auth, oidc and roles sections.
// It is built once per configuration load and never mutated afterwards.
type AuthConfig struct {
	Root      ProviderSettings
	Providers []NamedProvider
	Legacy    ProviderSettings

	AllowedEmails        []string
	AllowedDomains       []string
	EmptyAllowlist       string
	RequireVerifiedEmail bool

	// Roles maps lower-cased role names to lower-cased emails.
	Roles map[string][]string

	Local LocalAuthConfig
}

// ProviderScope records where a provider's settings were declared.
type ProviderScope int

const (
	// ScopeUnknown looks the provider up by name alone.
	ScopeUnknown ProviderScope = iota
	ScopeRoot
	ScopeNamed
	ScopeLegacy
)

// ProviderRef identifies one provider scope. The name "oidc" alone is
// ambiguous: it is both a valid name under auth and the legacy top-level block.
type ProviderRef struct {
	Scope ProviderScope
	Name  string
}

// Provider returns the settings ref points at. A ref without a scope resolves
// the empty name to the root, then named providers, then the legacy block.
func (a *AuthConfig) Provider(ref ProviderRef) (ProviderSettings, bool) {
	if a == nil {
		return ProviderSettings{}, false
	}
	switch ref.Scope {
	case ScopeRoot:
		return a.Root, a.Root.Complete()
	case ScopeNamed:
		return a.named(ref.Name)
	case ScopeLegacy:
		return a.Legacy, !a.Legacy.Empty()
	}

	if ref.Name == "" {
		return a.Root, a.Root.Complete()
	}
	if p, ok := a.named(ref.Name); ok {
		return p, true
	}
	if ref.Name == LegacyProviderName && !a.Legacy.Empty() {
		return a.Legacy, true
	}
	return ProviderSettings{}, false
}

func (a *AuthConfig) named(name string) (ProviderSettings, bool) {
	for _, p := range a.Providers {
		if p.Name == name {
			return p.ProviderSettings, true
		}
	}
	return ProviderSettings{}, false
}

// CallbackSettings returns the provider with redirect_uri and cookie_secret
// inherited from the root scope when the provider does not carry them itself.
func (a *AuthConfig) CallbackSettings(ref ProviderRef) (ProviderSettings, bool) {
	p, ok := a.Provider(ref)
	if !ok {
		return p, false
	}
	if p.RedirectURI == "" {
		p.RedirectURI = a.Root.RedirectURI
	}
	if p.CookieSecret == "" {
		p.CookieSecret = a.Root.CookieSecret
	}
	return p, true
}

type rawProvider struct {
	ClientID          string `mapstructure:"client_id"`
	ClientSecret      string `mapstructure:"client_secret"`
	ServerMetadataURL string `mapstructure:"server_metadata_url"`
	DiscoveryURL      string `mapstructure:"discovery_url"`
	RedirectURI       string `mapstructure:"redirect_uri"`
	CookieSecret      string `mapstructure:"cookie_secret"`
}

func (r rawProvider) normalize() ProviderSettings {
	metadata := strings.TrimSpace(r.ServerMetadataURL)
	if metadata == "" {
		metadata = strings.TrimSpace(r.DiscoveryURL)
	}
	return ProviderSettings{
		ClientID:     strings.TrimSpace(r.ClientID),
		ClientSecret: strings.TrimSpace(r.ClientSecret),
		MetadataURL:  metadata,
		RedirectURI:  strings.TrimSpace(r.RedirectURI),
		CookieSecret: strings.TrimSpace(r.CookieSecret),
	}
}

// ParseAuth normalizes a raw settings tree into an AuthConfig.
// Missing or malformed sections are read as empty. order carries the
// document order of the keys under auth; unknown names are appended sorted.
func ParseAuth(settings map[string]any, order []string) *AuthConfig {
	authTree := asMap(settings["auth"])

	cfg := &AuthConfig{
		Root:                 decodeProvider(authTree),
		Legacy:               decodeProvider(asMap(settings[LegacyProviderName])),
		AllowedEmails:        normalizeList(authTree["allowed_emails"], normalizeEmail),
		AllowedDomains:       normalizeList(authTree["allowed_domains"], normalizeDomain),
		EmptyAllowlist:       EmptyAllowlistAllow,
		RequireVerifiedEmail: true,
		Roles:                map[string][]string{},
	}

	if policy := strings.ToLower(strings.TrimSpace(stringValue(authTree["empty_allowlist"]))); policy == EmptyAllowlistDeny {
		cfg.EmptyAllowlist = EmptyAllowlistDeny
	}
	if v, ok := authTree["require_verified_email"]; ok {
		cfg.RequireVerifiedEmail = boolValue(v, true)
	}

	for _, name := range subScopeNames(authTree, order) {
		cfg.Providers = append(cfg.Providers, NamedProvider{
			Name:             name,
			ProviderSettings: decodeProvider(asMap(authTree[name])),
		})
	}

	for role, members := range asMap(settings["roles"]) {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		cfg.Roles[role] = normalizeList(members, normalizeEmail)
	}

	cfg.Local = parseLocal(asMap(authTree["local"]))
	return cfg
}

func parseLocal(tree map[string]any) LocalAuthConfig {
	local := LocalAuthConfig{
		Enabled: true,
		Users:   map[string]LocalUser{},
	}
	if v, ok := tree["enabled"]; ok {
		local.Enabled = boolValue(v, true)
	}
	local.AllowDefaultAdmin = boolValue(tree["allow_default_admin"], false)

	for name, raw := range asMap(tree["users"]) {
		var u LocalUser
		if err := decodeWeak(raw, &u); err != nil {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		u.PasswordHash = strings.TrimSpace(u.PasswordHash)
		u.Email = normalizeEmail(u.Email)
		local.Users[name] = u
	}
	return local
}

func decodeProvider(tree map[string]any) ProviderSettings {
	var raw rawProvider
	if err := decodeWeak(tree, &raw); err != nil {
		return ProviderSettings{}
	}
	return raw.normalize()
}

func decodeWeak(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	return dec.Decode(input)
}

// subScopeNames returns the mapping-valued keys of tree, following order first.
func subScopeNames(tree map[string]any, order []string) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if seen[name] || reservedAuthScopes[name] {
			return
		}
		if _, ok := tree[name].(map[string]any); !ok {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, name := range order {
		add(strings.ToLower(name))
	}
	var rest []string
	for name := range tree {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		add(name)
	}
	return names
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return map[string]any{}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func boolValue(v any, fallback bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

// normalizeList accepts a YAML list or a comma separated string (env form).
func normalizeList(v any, norm func(string) string) []string {
	var items []string
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			items = append(items, stringValue(item))
		}
	case []string:
		items = list
	case string:
		items = strings.Split(list, ",")
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = norm(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeDomain(s string) string {
	return strings.TrimPrefix(normalizeEmail(s), "@")
}
