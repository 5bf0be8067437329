package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

func TestIssuerFromMetadataURL(t *testing.T) {
	tests := []struct {
		url    string
		issuer string
		custom bool
	}{
		{"https://accounts.google.com/.well-known/openid-configuration", "https://accounts.google.com", false},
		{"https://login.example.com/realms/x/.well-known/openid-configuration/", "https://login.example.com/realms/x", false},
		{"https://idp.example.com/oidc/discovery.json", "https://idp.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			issuer, custom := IssuerFromMetadataURL(tt.url)
			assert.Equal(t, tt.issuer, issuer)
			assert.Equal(t, tt.custom, custom)
		})
	}
}

// discoveryServer serves a discovery document at a non-standard path whose
// issuer carries a realm path, the way Keycloak does.
func discoveryServer(t *testing.T, declareIssuer bool) (*httptest.Server, string) {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oidc/discovery.json" {
			http.NotFound(w, r)
			return
		}
		doc := map[string]any{
			"authorization_endpoint": srv.URL + "/realms/lab/auth",
			"token_endpoint":         srv.URL + "/realms/lab/token",
			"jwks_uri":               srv.URL + "/realms/lab/certs",
		}
		if declareIssuer {
			doc["issuer"] = srv.URL + "/realms/lab"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv, srv.URL + "/oidc/discovery.json"
}

func TestDiscoverIssuer(t *testing.T) {
	srv, metadataURL := discoveryServer(t, true)

	issuer, err := DiscoverIssuer(context.Background(), srv.Client(), metadataURL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/realms/lab", issuer)

	_, err = DiscoverIssuer(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.ErrorIs(t, err, oidc.ErrDiscoveryFailed)

	bare, bareURL := discoveryServer(t, false)
	_, err = DiscoverIssuer(context.Background(), bare.Client(), bareURL)
	assert.ErrorIs(t, err, oidc.ErrDiscoveryFailed)
}

func TestNewRelyingParty_CustomDiscoveryWithIssuerPath(t *testing.T) {
	srv, metadataURL := discoveryServer(t, true)

	party, err := NewRelyingParty(context.Background(), config.ProviderSettings{
		ClientID:     "portal",
		ClientSecret: "secret",
		MetadataURL:  metadataURL,
		RedirectURI:  "http://localhost:8080/auth/callback",
		CookieSecret: "0123456789012345678901234567890123456789abc",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/realms/lab", party.Issuer())
	assert.Equal(t, srv.URL+"/realms/lab/auth", party.OAuthConfig().Endpoint.AuthURL)
}

func TestCookieKeys(t *testing.T) {
	hashKey, blockKey, err := CookieKeys("0123456789012345678901234567890123456789abc")
	require.NoError(t, err)
	assert.Len(t, hashKey, 32)
	assert.Len(t, blockKey, 32)
	assert.NotEqual(t, hashKey, blockKey)

	again, _, err := CookieKeys("0123456789012345678901234567890123456789abc")
	require.NoError(t, err)
	assert.Equal(t, hashKey, again, "derivation is deterministic across restarts")

	other, _, err := CookieKeys("another-secret-another-secret-another-secret")
	require.NoError(t, err)
	assert.NotEqual(t, hashKey, other)

	_, _, err = CookieKeys("")
	assert.Error(t, err)
}

func TestRelyingParties_CachePerVersion(t *testing.T) {
	parties, err := NewRelyingParties(nil)
	require.NoError(t, err)

	calls := 0
	parties.SetBuilder(func(_ context.Context, s config.ProviderSettings, _ bool) (rp.RelyingParty, error) {
		calls++
		return rp.NewRelyingPartyOAuth(&oauth2.Config{
			ClientID:    s.ClientID,
			RedirectURL: s.RedirectURI,
			Endpoint:    oauth2.Endpoint{AuthURL: "https://idp.example.com/auth", TokenURL: "https://idp.example.com/token"},
		})
	})

	settings := config.ProviderSettings{ClientID: "id", RedirectURI: "https://portal.example.com/auth/callback"}
	ctx := context.Background()

	first, err := parties.Get(ctx, 1, "google", settings, true)
	require.NoError(t, err)
	second, err := parties.Get(ctx, 1, "google", settings, true)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	_, err = parties.Get(ctx, 2, "google", settings, true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a new config version rebuilds the client")

	parties.SetBuilder(func(context.Context, config.ProviderSettings, bool) (rp.RelyingParty, error) {
		return nil, errors.New("discovery failed")
	})
	_, err = parties.Get(ctx, 3, "google", settings, true)
	assert.ErrorContains(t, err, "discovery failed")
}

func TestNextCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetNextCookie(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil), "/apps?q=x")

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	assert.Equal(t, "/apps?q=x", TakeNextCookie(httptest.NewRecorder(), req))
	assert.Equal(t, "/", TakeNextCookie(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))

	rec = httptest.NewRecorder()
	SetNextCookie(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil), "https://evil.example.com")
	assert.Empty(t, rec.Result().Cookies(), "only local paths are remembered")
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, IsLocalPath("/"))
	assert.True(t, IsLocalPath("/apps"))
	assert.False(t, IsLocalPath(""))
	assert.False(t, IsLocalPath("//evil.example.com"))
	assert.False(t, IsLocalPath(`/\evil.example.com`))
	assert.False(t, IsLocalPath("https://evil.example.com"))
}
