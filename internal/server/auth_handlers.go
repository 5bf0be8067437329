package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	portalmw "github.com/MarioNunes35/Portal-de-aplicativos/internal/middleware"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
)

const maxLoginBody = 1 << 16

// StatusResponse describes how the current config lets people log in.
type StatusResponse struct {
	ConfigVersion  uint64   `json:"config_version"`
	Provider       string   `json:"provider"`
	ProviderFound  bool     `json:"provider_found"`
	OIDCUsable     bool     `json:"oidc_usable"`
	Problems       []string `json:"problems"`
	Validation     []string `json:"validation"`
	LocalLogin     bool     `json:"local_login"`
	EmptyAllowlist string   `json:"empty_allowlist"`
}

// LocalLoginRequest is the body of POST /auth/local
type LocalLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful local login
type LoginResponse struct {
	Email     string `json:"email"`
	Method    string `json:"method"`
	ExpiresAt int64  `json:"expires_at"`
}

// IdentityResponse represents the caller in API responses
type IdentityResponse struct {
	Email         string   `json:"email,omitempty"`
	Method        string   `json:"method,omitempty"`
	Provider      string   `json:"provider,omitempty"`
	EmailVerified *bool    `json:"email_verified,omitempty"`
	Roles         []string `json:"roles"`
}

// MeResponse is returned by GET /api/me
type MeResponse struct {
	Identity IdentityResponse          `json:"identity"`
	Decision portalmw.DecisionResponse `json:"decision"`
}

// oidcTarget is the provider a login would use right now.
type oidcTarget struct {
	snap     *config.Snapshot
	provider string
	settings config.ProviderSettings
}

// resolveOIDC resolves and validates the active provider. On failure the
// returned problems explain why.
func (p *Portal) resolveOIDC(snap *config.Snapshot) (*oidcTarget, []string) {
	u := p.deps.Resolver.IsProviderUsable(snap.Auth, portalmw.Capabilities(snap.Config), access.Identity{})
	if !u.Usable {
		return nil, u.Problems
	}
	settings, ok := snap.Auth.CallbackSettings(u.Ref())
	if !ok {
		return nil, []string{access.ProblemNoConfiguration}
	}
	if problems := access.ValidateProvider(settings); len(problems) > 0 {
		return nil, problems
	}
	return &oidcTarget{snap: snap, provider: u.Provider, settings: settings}, nil
}

func (t *oidcTarget) secure() bool {
	return strings.HasPrefix(strings.ToLower(t.settings.RedirectURI), "https://")
}

func (p *Portal) relyingParty(r *http.Request, t *oidcTarget) (rp.RelyingParty, error) {
	return p.deps.Parties.Get(r.Context(), t.snap.Version, t.provider, t.settings, t.secure())
}

// HandleHealth reports liveness and whether OIDC login is currently possible.
func (p *Portal) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	_, problems := p.resolveOIDC(p.deps.Store.Get())
	portalmw.RespondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"oidc_usable": len(problems) == 0,
	})
}

// HandleStatus reports provider resolution, validation problems and login options.
func (p *Portal) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := p.deps.Store.Get()
	res := access.ResolveProvider(snap.Auth)

	resp := StatusResponse{
		ConfigVersion:  snap.Version,
		Provider:       res.Provider,
		ProviderFound:  res.Found,
		Problems:       append([]string{}, res.Problems...),
		Validation:     []string{},
		LocalLogin:     portalmw.Capabilities(snap.Config).LocalLogin,
		EmptyAllowlist: config.EmptyAllowlistAllow,
	}
	if snap.Auth != nil && snap.Auth.EmptyAllowlist != "" {
		resp.EmptyAllowlist = snap.Auth.EmptyAllowlist
	}
	if res.Found {
		if settings, ok := snap.Auth.CallbackSettings(res.Ref()); ok {
			resp.Validation = append(resp.Validation, access.ValidateProvider(settings)...)
		}
	}
	resp.OIDCUsable = res.Usable() && len(resp.Validation) == 0
	portalmw.RespondJSON(w, http.StatusOK, resp)
}

// HandleLogin initiates the OIDC Authorization Code Flow for the resolved provider.
// An optional next query parameter names the local path to return to.
func (p *Portal) HandleLogin(w http.ResponseWriter, r *http.Request) {
	target, problems := p.resolveOIDC(p.deps.Store.Get())
	if target == nil {
		portalmw.RespondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":    ErrOIDCUnavailable.Error(),
			"problems": problems,
		})
		return
	}

	party, err := p.relyingParty(r, target)
	if err != nil {
		p.log.Error("oidc discovery failed", zap.String("provider", target.provider), zap.Error(err))
		portalmw.RespondError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}

	state, err := p.newState()
	if err != nil {
		p.log.Error("generate oidc state", zap.Error(err))
		portalmw.RespondError(w, http.StatusInternalServerError, "could not start login")
		return
	}

	auth.SetNextCookie(w, r, r.URL.Query().Get("next"))

	// The library handler stores state and the PKCE verifier in cookies
	// sealed by the provider's cookie handler, then redirects to the IdP.
	rp.AuthURLHandler(func() string { return state }, party).ServeHTTP(w, r)
}

// HandleCallback exchanges the authorization code, starts a session and
// redirects to the remembered destination.
func (p *Portal) HandleCallback(w http.ResponseWriter, r *http.Request) {
	target, problems := p.resolveOIDC(p.deps.Store.Get())
	if target == nil {
		portalmw.RespondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":    ErrOIDCUnavailable.Error(),
			"problems": problems,
		})
		return
	}

	party, err := p.relyingParty(r, target)
	if err != nil {
		p.log.Error("oidc discovery failed", zap.String("provider", target.provider), zap.Error(err))
		portalmw.RespondError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}

	// CodeExchangeHandler validates state and the PKCE verifier before
	// invoking the callback with verified ID token claims.
	callback := func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], _ string, _ rp.RelyingParty) {
		ctx := r.Context()
		claims := tokens.IDTokenClaims
		if claims == nil || strings.TrimSpace(claims.Email) == "" {
			p.recordLogin(r, "oidc", false)
			portalmw.RespondError(w, http.StatusBadGateway, ErrMissingEmail.Error())
			return
		}

		verified := bool(claims.EmailVerified)
		_, err := p.deps.Sessions.Start(ctx, w, r, auth.SessionInfo{
			Identity: access.Identity{
				Email:         claims.Email,
				Method:        access.MethodOIDC,
				Provider:      target.provider,
				EmailVerified: &verified,
			},
			UserAgent: r.UserAgent(),
			IPAddress: r.RemoteAddr,
		})
		if err != nil {
			p.log.Error("oidc callback: create session", zap.String("email", claims.Email), zap.Error(err))
			portalmw.RespondError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		p.recordLogin(r, "oidc", true)
		p.log.Info("oidc login", zap.String("email", access.NormalizeEmail(claims.Email)), zap.String("provider", target.provider))
		http.Redirect(w, r, auth.TakeNextCookie(w, r), http.StatusFound)
	}
	rp.CodeExchangeHandler(callback, party).ServeHTTP(w, r)
}

// HandleLocalLogin authenticates a username and password and starts a session.
func (p *Portal) HandleLocalLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := p.deps.Store.Get()
	if !portalmw.Capabilities(snap.Config).LocalLogin {
		portalmw.RespondError(w, http.StatusNotFound, ErrLocalLoginDisabled.Error())
		return
	}

	var req LocalLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		portalmw.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, err := p.credentials.Get(snap)
	if err != nil {
		p.log.Error("build credential store", zap.Error(err))
		portalmw.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ok, email := p.deps.Resolver.CheckLocalCredentials(ctx, store, req.Username, req.Password)
	if !ok {
		p.recordLogin(r, "local", false)
		portalmw.RespondError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	var userID *string
	if p.deps.Users != nil {
		user, err := p.deps.Users.GetByUsername(ctx, req.Username)
		switch {
		case err == nil:
			userID = &user.ID
			if err := p.deps.Users.UpdateLastLogin(ctx, user.ID); err != nil {
				p.log.Warn("update last login", zap.String("username", user.Username), zap.Error(err))
			}
		case !errors.Is(err, repository.ErrNotFound):
			p.log.Warn("lookup local user", zap.Error(err))
		}
	}

	session, err := p.deps.Sessions.Start(ctx, w, r, auth.SessionInfo{
		Identity:  access.Identity{Email: email, Method: access.MethodLocal},
		UserID:    userID,
		UserAgent: r.UserAgent(),
		IPAddress: r.RemoteAddr,
	})
	if err != nil {
		p.log.Error("local login: create session", zap.Error(err))
		portalmw.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	p.recordLogin(r, "local", true)
	portalmw.RespondJSON(w, http.StatusOK, LoginResponse{
		Email:     session.Email,
		Method:    session.Method,
		ExpiresAt: session.ExpiresAt.UnixMilli(),
	})
}

// HandleLogout revokes the caller's session and clears the cookie.
func (p *Portal) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := p.deps.Sessions.End(r.Context(), w, r); err != nil {
		p.log.Error("revoke session", zap.Error(err))
		portalmw.RespondError(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}
	portalmw.RespondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// HandleMe returns the caller's identity and the decision for the portal.
func (p *Portal) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.GetPrincipalFromContext(r.Context())
	snap := p.deps.Store.Get()

	decision := p.deps.Resolver.Evaluate(snap.Auth, portalmw.Capabilities(snap.Config), access.Request{
		Identity:     principal.Identity,
		RequiredRole: portalmw.PortalRole(snap.Config),
	})

	roles := principal.Roles
	if roles == nil {
		roles = []string{}
	}
	portalmw.RespondJSON(w, http.StatusOK, MeResponse{
		Identity: IdentityResponse{
			Email:         access.NormalizeEmail(principal.Identity.Email),
			Method:        string(principal.Identity.Method),
			Provider:      principal.Identity.Provider,
			EmailVerified: principal.Identity.EmailVerified,
			Roles:         roles,
		},
		Decision: portalmw.NewDecisionResponse(decision),
	})
}

func (p *Portal) recordLogin(r *http.Request, method string, success bool) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.Auth.RecordAuth(r.Context(), method, success)
	}
}
