package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	httphelper "github.com/zitadel/oidc/v3/pkg/http"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

const (
	// WellKnownSuffix is stripped from a metadata URL to obtain the issuer.
	WellKnownSuffix = "/.well-known/openid-configuration"

	// NextCookieName remembers where to send the browser after the callback.
	NextCookieName = "portal.next"

	relyingPartyCacheSize = 16
	cookieKeyInfo         = "portal oidc cookie keys"
)

// DefaultScopes are requested from every provider.
var DefaultScopes = []string{"openid", "email", "profile"}

// PartyBuilder creates a relying party for one provider's settings.
type PartyBuilder func(ctx context.Context, settings config.ProviderSettings, secure bool) (rp.RelyingParty, error)

// RelyingParties builds zitadel relying parties on demand and caches them per
// provider and config version, so a reload never serves a stale client.
type RelyingParties struct {
	cache    *lru.Cache[string, rp.RelyingParty]
	log      *zap.Logger
	newParty PartyBuilder
}

// NewRelyingParties creates an empty relying-party cache.
func NewRelyingParties(log *zap.Logger) (*RelyingParties, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.New[string, rp.RelyingParty](relyingPartyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create relying party cache: %w", err)
	}
	return &RelyingParties{cache: cache, log: log, newParty: NewRelyingParty}, nil
}

// SetBuilder replaces discovery-based construction, typically in tests.
func (p *RelyingParties) SetBuilder(b PartyBuilder) {
	p.newParty = b
}

// Get returns the relying party for provider under config version, running
// discovery the first time the pair is seen.
func (p *RelyingParties) Get(ctx context.Context, version uint64, provider string, settings config.ProviderSettings, secure bool) (rp.RelyingParty, error) {
	key := fmt.Sprintf("%d/%s/%t", version, provider, secure)
	if party, ok := p.cache.Get(key); ok {
		return party, nil
	}

	party, err := p.newParty(ctx, settings, secure)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", provider, err)
	}
	p.cache.Add(key, party)
	p.log.Info("oidc relying party ready",
		zap.String("provider", provider),
		zap.Uint64("config_version", version),
		zap.String("issuer", party.Issuer()))
	return party, nil
}

// NewRelyingParty runs discovery against settings.MetadataURL and returns a
// relying party whose state and PKCE cookies are sealed with keys derived
// from the provider's cookie secret.
func NewRelyingParty(ctx context.Context, settings config.ProviderSettings, secure bool) (rp.RelyingParty, error) {
	hashKey, blockKey, err := CookieKeys(settings.CookieSecret)
	if err != nil {
		return nil, err
	}

	var cookieOpts []httphelper.CookieHandlerOpt
	if !secure {
		cookieOpts = append(cookieOpts, httphelper.WithUnsecure())
	}
	cookieHandler := httphelper.NewCookieHandler(hashKey, blockKey, cookieOpts...)

	options := []rp.Option{
		rp.WithCookieHandler(cookieHandler),
		rp.WithVerifierOpts(rp.WithIssuedAtMaxAge(time.Minute)),
		rp.WithPKCE(cookieHandler),
	}
	issuer, custom := IssuerFromMetadataURL(settings.MetadataURL)
	if custom {
		// Only the document knows the issuer of a non-standard URL; a path
		// such as a Keycloak realm cannot be derived from the URL itself.
		issuer, err = DiscoverIssuer(ctx, httphelper.DefaultHTTPClient, settings.MetadataURL)
		if err != nil {
			return nil, err
		}
		options = append(options, rp.WithCustomDiscoveryUrl(settings.MetadataURL))
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, issuer, settings.ClientID, settings.ClientSecret,
		settings.RedirectURI, DefaultScopes, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC relying party: %w", err)
	}
	return relyingParty, nil
}

// IssuerFromMetadataURL derives the issuer from a discovery document URL.
// custom is true when the URL is not the standard well-known location and
// must be passed to discovery explicitly. For custom URLs the returned issuer
// is only scheme and host; use DiscoverIssuer for the declared one.
func IssuerFromMetadataURL(metadataURL string) (issuer string, custom bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(metadataURL), "/")
	if strings.HasSuffix(trimmed, WellKnownSuffix) {
		return strings.TrimSuffix(trimmed, WellKnownSuffix), false
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return trimmed, true
	}
	return u.Scheme + "://" + u.Host, true
}

// DiscoverIssuer fetches the discovery document at metadataURL and returns
// the issuer it declares.
func DiscoverIssuer(ctx context.Context, client *http.Client, metadataURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return "", fmt.Errorf("build discovery request: %w", err)
	}
	var doc oidc.DiscoveryConfiguration
	if err := httphelper.HttpRequest(client, req, &doc); err != nil {
		return "", errors.Join(oidc.ErrDiscoveryFailed, err)
	}
	if doc.Issuer == "" {
		return "", fmt.Errorf("%w: %s declares no issuer", oidc.ErrDiscoveryFailed, metadataURL)
	}
	return doc.Issuer, nil
}

// CookieKeys derives the 32-byte hash and block keys for the OIDC cookie
// handler from a provider's cookie secret.
func CookieKeys(secret string) (hashKey, blockKey []byte, err error) {
	if secret == "" {
		return nil, nil, fmt.Errorf("cookie secret is empty")
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(cookieKeyInfo))
	hashKey = make([]byte, 32)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, fmt.Errorf("derive cookie hash key: %w", err)
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, fmt.Errorf("derive cookie block key: %w", err)
	}
	return hashKey, blockKey, nil
}

// GenerateNonce generates a random nonce string.
func GenerateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetNextCookie stores the post-login destination for the SSO flow.
// Anything but a local path is ignored.
func SetNextCookie(w http.ResponseWriter, r *http.Request, next string) {
	if !IsLocalPath(next) {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     NextCookieName,
		Value:    next,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// TakeNextCookie returns and clears the post-login destination, defaulting to "/".
func TakeNextCookie(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(NextCookieName)
	if err != nil {
		return "/"
	}
	ClearCookie(w, r, NextCookieName)
	if !IsLocalPath(cookie.Value) {
		return "/"
	}
	return cookie.Value
}

// IsLocalPath reports whether p is an absolute path on this host.
func IsLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}
