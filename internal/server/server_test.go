package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	httphelper "github.com/zitadel/oidc/v3/pkg/http"
	"golang.org/x/oauth2"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/migrations"
	portalmw "github.com/MarioNunes35/Portal-de-aplicativos/internal/middleware"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/telemetry"
)

const testCookieSecret = "0123456789012345678901234567890123456789abc"

type testPortal struct {
	router http.Handler
	store  *config.Store
	users  *repository.BunUserRepository
	portal *Portal
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := access.HashPassword("s3cret", 4)
	require.NoError(t, err)

	return &config.Config{
		Portal: config.PortalConfig{
			Title:      "Portal de Aplicativos",
			HostSuffix: ".streamlit.app",
			Apps: []config.AppConfig{
				{Name: "Histograms", URL: "https://apphistograms.streamlit.app", Labels: map[string]string{"team": "lab"}},
				{Name: "Column 3D", URL: "https://column3d.streamlit.app", Labels: map[string]string{"team": "lab"}},
				{Name: "Admin Console", URL: "https://admin.example.com", RequiredRole: "admin"},
			},
		},
		Auth: &config.AuthConfig{
			AllowedDomains:       []string{"example.com"},
			RequireVerifiedEmail: true,
			Roles:                map[string][]string{"admin": {"alice@example.com"}},
			Local: config.LocalAuthConfig{
				Enabled: true,
				Users: map[string]config.LocalUser{
					"alice": {PasswordHash: hash, Email: "Alice@Example.com"},
				},
			},
		},
	}
}

func oidcSettings() config.ProviderSettings {
	return config.ProviderSettings{
		ClientID:     "portal",
		ClientSecret: "secret",
		MetadataURL:  "https://idp.example.com/.well-known/openid-configuration",
		RedirectURI:  "https://portal.example.com/auth/callback",
		CookieSecret: testCookieSecret,
	}
}

// offlineParty builds an OAuth-only relying party so no discovery request is made.
func offlineParty(_ context.Context, s config.ProviderSettings, _ bool) (rp.RelyingParty, error) {
	hashKey, blockKey, err := auth.CookieKeys(s.CookieSecret)
	if err != nil {
		return nil, err
	}
	handler := httphelper.NewCookieHandler(hashKey, blockKey, httphelper.WithUnsecure())
	return rp.NewRelyingPartyOAuth(&oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURI,
		Scopes:       auth.DefaultScopes,
		Endpoint:     oauth2.Endpoint{AuthURL: "https://idp.example.com/authorize", TokenURL: "https://idp.example.com/token"},
	}, rp.WithCookieHandler(handler), rp.WithPKCE(handler))
}

func newTestPortal(t *testing.T, cfg *config.Config) *testPortal {
	t.Helper()

	db, err := bunx.NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Apply(context.Background(), db)
	require.NoError(t, err)

	parties, err := auth.NewRelyingParties(nil)
	require.NoError(t, err)
	parties.SetBuilder(offlineParty)

	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	store := config.NewStore(cfg)
	users := repository.NewBunUserRepository(db)
	p, err := NewPortal(Deps{
		Dependencies: portalmw.Dependencies{
			Store:    store,
			Resolver: access.NewResolver(nil),
			Sessions: auth.NewSessions(repository.NewBunSessionRepository(db), 0),
		},
		Parties: parties,
		Users:   users,
		Metrics: metrics,
	})
	require.NoError(t, err)

	return &testPortal{router: NewRouter(p), store: store, users: users, portal: p}
}

func (tp *testPortal) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	tp.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) []*http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return []*http.Cookie{c}
		}
	}
	t.Fatalf("no %s cookie in response", auth.SessionCookieName)
	return nil
}

func TestHealth(t *testing.T) {
	tp := newTestPortal(t, testConfig(t))

	rec := tp.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["oidc_usable"])
}

func TestStatus(t *testing.T) {
	cfg := testConfig(t)
	tp := newTestPortal(t, cfg)

	status := decode[StatusResponse](t, tp.do(t, http.MethodGet, "/auth/status", nil, nil))
	assert.False(t, status.ProviderFound)
	assert.False(t, status.OIDCUsable)
	assert.Contains(t, status.Problems, access.ProblemNoConfiguration)
	assert.True(t, status.LocalLogin)
	assert.Equal(t, config.EmptyAllowlistAllow, status.EmptyAllowlist)
	assert.Equal(t, uint64(1), status.ConfigVersion)

	next := testConfig(t)
	next.Auth.Root = oidcSettings()
	next.Auth.Root.CookieSecret = "short"
	tp.store.Swap(next)

	status = decode[StatusResponse](t, tp.do(t, http.MethodGet, "/auth/status", nil, nil))
	assert.True(t, status.ProviderFound)
	assert.Empty(t, status.Problems)
	assert.False(t, status.OIDCUsable, "validation problems make the provider unusable")
	require.Len(t, status.Validation, 1)
	assert.Contains(t, status.Validation[0], config.KeyCookieSecret)
	assert.Equal(t, uint64(2), status.ConfigVersion)
}

func TestLocalLoginFlow(t *testing.T) {
	tp := newTestPortal(t, testConfig(t))

	rec := tp.do(t, http.MethodGet, "/api/apps", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(access.OutcomeAuthenticateLocal), decode[map[string]any](t, rec)["action"])

	rec = tp.do(t, http.MethodPost, "/auth/local", LocalLoginRequest{Username: "alice", Password: "s3creT"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = tp.do(t, http.MethodPost, "/auth/local", LocalLoginRequest{Username: "Alice", Password: "s3cret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[LoginResponse](t, rec)
	assert.Equal(t, "alice@example.com", login.Email)
	assert.Equal(t, "local", login.Method)
	cookies := sessionCookie(t, rec)

	rec = tp.do(t, http.MethodGet, "/api/apps", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	apps := decode[AppsResponse](t, rec)
	assert.Equal(t, "Portal de Aplicativos", apps.Title)
	assert.Equal(t, 3, apps.Count, "admin sees the role-gated app")
	assert.Equal(t, "apphistograms", apps.Apps[0].Host)

	rec = tp.do(t, http.MethodGet, "/api/apps?q=3d", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[AppsResponse](t, rec).Count)

	rec = tp.do(t, http.MethodGet, `/api/apps?filter=labels.team+%3D%3D+%22lab%22`, nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[AppsResponse](t, rec).Count)

	rec = tp.do(t, http.MethodGet, "/api/apps?filter=labels.team+%3D%3D", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	me := decode[MeResponse](t, tp.do(t, http.MethodGet, "/api/me", nil, cookies))
	assert.Equal(t, "alice@example.com", me.Identity.Email)
	assert.Equal(t, []string{"admin"}, me.Identity.Roles)
	assert.Equal(t, access.OutcomeAllow, me.Decision.Action)

	rec = tp.do(t, http.MethodPost, "/auth/logout", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = tp.do(t, http.MethodGet, "/api/apps", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "revoked session no longer authenticates")
}

func TestLocalLogin_DatabaseUser(t *testing.T) {
	tp := newTestPortal(t, testConfig(t))
	hash, err := access.HashPassword("hunter2", 4)
	require.NoError(t, err)
	require.NoError(t, tp.users.Create(context.Background(), &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: hash}))

	rec := tp.do(t, http.MethodPost, "/auth/local", LocalLoginRequest{Username: "bob", Password: "hunter2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := sessionCookie(t, rec)
	rec = tp.do(t, http.MethodGet, "/api/apps", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[AppsResponse](t, rec).Count, "bob has no admin role")

	user, err := tp.users.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.NotNil(t, user.LastLoginAt)
}

func TestLocalLogin_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Local.Enabled = false
	tp := newTestPortal(t, cfg)

	rec := tp.do(t, http.MethodPost, "/auth/local", LocalLoginRequest{Username: "alice", Password: "s3cret"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = tp.do(t, http.MethodPost, "/auth/local", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocalLogin_BadBody(t *testing.T) {
	tp := newTestPortal(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/auth/local", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	tp.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocalLogin_DefaultAdmin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Local.Users = nil
	cfg.Auth.Local.AllowDefaultAdmin = true
	tp := newTestPortal(t, cfg)

	rec := tp.do(t, http.MethodPost, "/auth/local", LocalLoginRequest{Username: "admin", Password: "admin"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, access.DefaultAdminEmail, decode[LoginResponse](t, rec).Email)

	// A real account retires the built-in admin.
	hash, err := access.HashPassword("pw", 4)
	require.NoError(t, err)
	require.NoError(t, tp.users.Create(context.Background(), &models.User{Username: "carol", Email: "carol@example.com", PasswordHash: hash}))

	rec = tp.do(t, http.MethodPost, "/auth/local", LocalLoginRequest{Username: "admin", Password: "admin"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOIDCLogin(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		tp := newTestPortal(t, testConfig(t))

		rec := tp.do(t, http.MethodGet, "/auth/login", nil, nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.Equal(t, ErrOIDCUnavailable.Error(), body["error"])
		assert.NotEmpty(t, body["problems"])
	})

	t.Run("redirects to provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.Root = oidcSettings()
		tp := newTestPortal(t, cfg)

		rec := tp.do(t, http.MethodGet, "/auth/login?next=/apps", nil, nil)
		require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
		location := rec.Header().Get("Location")
		assert.True(t, strings.HasPrefix(location, "https://idp.example.com/authorize?"), location)
		assert.Contains(t, location, "code_challenge=")

		names := map[string]bool{}
		for _, c := range rec.Result().Cookies() {
			names[c.Name] = true
		}
		assert.True(t, names[auth.NextCookieName])
		assert.True(t, names["state"])
	})

	t.Run("named oidc provider is used over the legacy block", func(t *testing.T) {
		named := oidcSettings()
		named.ClientID = "named-client"
		named.RedirectURI, named.CookieSecret = "", ""

		cfg := testConfig(t)
		cfg.Auth.Root = config.ProviderSettings{RedirectURI: oidcSettings().RedirectURI, CookieSecret: testCookieSecret}
		cfg.Auth.Providers = []config.NamedProvider{{Name: config.LegacyProviderName, ProviderSettings: named}}
		cfg.Auth.Legacy = config.ProviderSettings{ClientID: "stale-legacy-client", ClientSecret: "old", MetadataURL: named.MetadataURL}
		tp := newTestPortal(t, cfg)

		rec := tp.do(t, http.MethodGet, "/auth/login", nil, nil)
		require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
		location := rec.Header().Get("Location")
		assert.Contains(t, location, "client_id=named-client")
		assert.NotContains(t, location, "stale-legacy-client")
	})

	t.Run("state generation failure stops the redirect", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.Root = oidcSettings()
		tp := newTestPortal(t, cfg)
		tp.portal.newState = func() (string, error) { return "", errors.New("entropy exhausted") }

		rec := tp.do(t, http.MethodGet, "/auth/login", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("anonymous api request points at oidc", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.Root = oidcSettings()
		tp := newTestPortal(t, cfg)

		rec := tp.do(t, http.MethodGet, "/api/apps", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.Equal(t, string(access.OutcomeAuthenticateOIDC), body["action"])
		assert.Equal(t, "/auth/login", body["login"])
	})
}

func TestMe_Anonymous(t *testing.T) {
	tp := newTestPortal(t, testConfig(t))

	rec := tp.do(t, http.MethodGet, "/api/me", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[MeResponse](t, rec)
	assert.Empty(t, me.Identity.Email)
	assert.Equal(t, []string{}, me.Identity.Roles)
	assert.Equal(t, access.OutcomeAuthenticateLocal, me.Decision.Action)
}

func TestCatalogFollowsReload(t *testing.T) {
	tp := newTestPortal(t, testConfig(t))

	first, err := tp.portal.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 3, first.Len())

	next := testConfig(t)
	next.Portal.Apps = next.Portal.Apps[:1]
	tp.store.Swap(next)

	second, err := tp.portal.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 1, second.Len())
}
