package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/migrations"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
)

type fixture struct {
	deps    Dependencies
	handler http.Handler
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	db, err := bunx.NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Apply(context.Background(), db)
	require.NoError(t, err)

	deps := Dependencies{
		Store:    config.NewStore(cfg),
		Resolver: access.NewResolver(nil),
		Sessions: auth.NewSessions(repository.NewBunSessionRepository(db), 0),
	}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.GetPrincipalFromContext(r.Context())
		require.True(t, ok)
		RespondJSON(w, http.StatusOK, map[string]any{
			"email":   principal.Decision.Email,
			"outcome": principal.Decision.Outcome,
			"roles":   principal.Roles,
		})
	})
	return &fixture{
		deps:    deps,
		handler: NewSessionMiddleware(deps)(NewAccessMiddleware(deps, nil)(final)),
	}
}

// login starts a session for email and returns a request carrying its cookie.
func (f *fixture) login(t *testing.T, email string, verified bool) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := f.deps.Sessions.Start(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), auth.SessionInfo{
		Identity: access.Identity{Email: email, Method: access.MethodOIDC, Provider: "google", EmailVerified: &verified},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/apps", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func (f *fixture) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func baseConfig() *config.Config {
	return &config.Config{
		Portal: config.PortalConfig{RequiredRole: ""},
		Auth: &config.AuthConfig{
			AllowedDomains:       []string{"example.com"},
			RequireVerifiedEmail: true,
			Roles:                map[string][]string{"admin": {"boss@example.com"}},
			Local:                config.LocalAuthConfig{Enabled: true},
		},
	}
}

func TestAccess_AnonymousFallsBackToLocal(t *testing.T) {
	f := newFixture(t, baseConfig())

	rec, body := f.do(httptest.NewRequest(http.MethodGet, "/api/apps", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(access.OutcomeAuthenticateLocal), body["action"])
	assert.Equal(t, "/auth/local", body["login"])
	assert.NotEmpty(t, body["problems"], "the OIDC configuration problem is reported")
}

func TestAccess_AnonymousWithOIDC(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.Root = config.ProviderSettings{
		ClientID:     "id.apps.googleusercontent.com",
		ClientSecret: "secret",
		MetadataURL:  "https://accounts.google.com/.well-known/openid-configuration",
		RedirectURI:  "https://portal.example.com/auth/callback",
		CookieSecret: "0123456789012345678901234567890123456789abc",
	}
	f := newFixture(t, cfg)

	rec, body := f.do(httptest.NewRequest(http.MethodGet, "/api/apps", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(access.OutcomeAuthenticateOIDC), body["action"])
	assert.Equal(t, "/auth/login", body["login"])
}

func TestAccess_NoLoginMethod(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.Local.Enabled = false
	f := newFixture(t, cfg)

	rec, body := f.do(httptest.NewRequest(http.MethodGet, "/api/apps", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(access.OutcomeDeny), body["action"])
	assert.Equal(t, access.ReasonNoLoginMethod, body["reason"])
}

func TestAccess_SessionAllowed(t *testing.T) {
	f := newFixture(t, baseConfig())

	rec, body := f.do(f.login(t, "Boss@Example.com", true))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boss@example.com", body["email"])
	assert.Equal(t, string(access.OutcomeAllow), body["outcome"])
	assert.Equal(t, []any{"admin"}, body["roles"])
}

func TestAccess_Denied(t *testing.T) {
	f := newFixture(t, baseConfig())

	rec, body := f.do(f.login(t, "eve@elsewhere.org", true))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, access.ReasonNotAllowlisted, body["reason"])

	rec, body = f.do(f.login(t, "carol@example.com", false))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, access.ReasonEmailNotVerified, body["reason"])
}

func TestAccess_RequiredRoleFollowsReload(t *testing.T) {
	f := newFixture(t, baseConfig())
	req := f.login(t, "carol@example.com", true)

	rec, _ := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := baseConfig()
	cfg.Portal.RequiredRole = "admin"
	f.deps.Store.Swap(cfg)

	rec, body := f.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "missing role admin", body["reason"])
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, access.Capabilities{OIDCLogin: true}, Capabilities(nil))
	assert.True(t, Capabilities(baseConfig()).LocalLogin)
}
