package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

// ProblemOIDCUnavailable is reported when the host cannot run an OIDC login.
const ProblemOIDCUnavailable = "OIDC login is not available in this runtime"

// Method is how an identity was established.
type Method string

const (
	MethodNone  Method = ""
	MethodOIDC  Method = "oidc"
	MethodLocal Method = "local"
)

// Capabilities describes which login mechanisms the host can actually run.
type Capabilities struct {
	OIDCLogin  bool
	LocalLogin bool
}

// Identity is who the current request claims to be.
type Identity struct {
	Email    string
	Method   Method
	Provider string
	// EmailVerified is nil when the identity source does not report it.
	EmailVerified *bool
}

// LoggedIn reports whether any mechanism established the identity.
func (i Identity) LoggedIn() bool {
	return i.Method != MethodNone
}

// Request is the input to a single access evaluation.
type Request struct {
	Identity
	RequiredRole string
}

// Outcome is the action the host should take.
type Outcome string

const (
	OutcomeAuthenticateOIDC  Outcome = "authenticate_oidc"
	OutcomeAuthenticateLocal Outcome = "authenticate_local"
	OutcomeAllow             Outcome = "allow"
	OutcomeDeny              Outcome = "deny"
)

// State is where the request ended up in the authentication chain.
type State string

const (
	StateUnauthenticated           State = "unauthenticated"
	StateAuthenticatedUnauthorized State = "authenticated_unauthorized"
	StateAuthenticatedAuthorized   State = "authenticated_authorized"
)

// Deny reasons.
const (
	ReasonEmailNotVerified = "email not verified"
	ReasonNotAllowlisted   = "not on allowlist"
	ReasonNoLoginMethod    = "no login method available"
)

// Decision is the result of Evaluate.
type Decision struct {
	Outcome  Outcome
	State    State
	Provider string
	Email    string
	Reason   string
	Problems []string
	Err      error
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// Usability is the result of IsProviderUsable.
type Usability struct {
	Resolution
	Usable bool
	Err    error
}

// Resolver evaluates access for a single request. It holds no mutable state;
// every call derives allowlists and role tables from the config it is given.
type Resolver struct {
	log *zap.Logger
}

// NewResolver creates a Resolver that reports diagnostics to log.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log}
}

// IsProviderUsable reports whether an OIDC login can be started right now.
func (r *Resolver) IsProviderUsable(cfg *config.AuthConfig, caps Capabilities, id Identity) (u Usability) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("provider resolution panicked", zap.Any("panic", rec))
			u = Usability{
				Resolution: Resolution{Problems: []string{fmt.Sprintf("unexpected failure resolving provider: %v", rec)}},
				Err:        ErrUnexpectedFailure,
			}
		}
	}()

	if id.Method == MethodOIDC {
		return Usability{Resolution: Resolution{Provider: id.Provider, Found: true}, Usable: true}
	}
	if !caps.OIDCLogin {
		return Usability{
			Resolution: Resolution{Problems: []string{ProblemOIDCUnavailable}},
			Err:        ErrAuthenticationUnavailable,
		}
	}

	res := ResolveProvider(cfg)
	u = Usability{Resolution: res, Usable: res.Usable()}
	if !u.Usable {
		u.Err = fmt.Errorf("%w: %s", ErrConfigurationIncomplete, strings.Join(res.Problems, "; "))
	}
	return u
}

// CheckLocalCredentials verifies a username and password against store.
// It only ever signals success or failure; the email is returned on success.
func (r *Resolver) CheckLocalCredentials(ctx context.Context, store CredentialStore, username, password string) (bool, string) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" || store == nil {
		return false, ""
	}

	cred, err := store.LookupCredential(ctx, username)
	if err != nil {
		r.log.Warn("local credential lookup failed", zap.String("username", username), zap.Error(err))
		burnCompare(password)
		return false, ""
	}
	if cred == nil {
		burnCompare(password)
		return false, ""
	}
	if !VerifyPassword(cred.PasswordHash, password) {
		return false, ""
	}
	return true, NormalizeEmail(cred.Email)
}

// Evaluate runs the full chain for one request: pick a login mechanism for
// anonymous requests, then allowlist and role checks for identified ones.
func (r *Resolver) Evaluate(cfg *config.AuthConfig, caps Capabilities, req Request) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("access evaluation panicked", zap.Any("panic", rec))
			d = Decision{
				Outcome:  OutcomeDeny,
				State:    StateUnauthenticated,
				Reason:   "internal error",
				Problems: []string{fmt.Sprintf("unexpected failure evaluating access: %v", rec)},
				Err:      ErrUnexpectedFailure,
			}
		}
	}()

	if cfg == nil {
		cfg = &config.AuthConfig{}
	}

	if !req.LoggedIn() {
		return r.chooseLogin(cfg, caps, req.Identity)
	}

	email := NormalizeEmail(req.Email)
	d = Decision{State: StateAuthenticatedUnauthorized, Provider: req.Provider, Email: email}

	if cfg.RequireVerifiedEmail && req.EmailVerified != nil && !*req.EmailVerified {
		return deny(d, ReasonEmailNotVerified)
	}
	if !IsAllowed(email, AllowlistFrom(cfg)) {
		return deny(d, ReasonNotAllowlisted)
	}
	if !HasRole(email, req.RequiredRole, RoleTableFrom(cfg)) {
		return deny(d, fmt.Sprintf("missing role %s", NormalizeRole(req.RequiredRole)))
	}

	d.Outcome = OutcomeAllow
	d.State = StateAuthenticatedAuthorized
	return d
}

func (r *Resolver) chooseLogin(cfg *config.AuthConfig, caps Capabilities, id Identity) Decision {
	u := r.IsProviderUsable(cfg, caps, id)
	if u.Usable {
		return Decision{
			Outcome:  OutcomeAuthenticateOIDC,
			State:    StateUnauthenticated,
			Provider: u.Provider,
		}
	}

	d := Decision{
		State:    StateUnauthenticated,
		Problems: u.Problems,
		Err:      u.Err,
	}
	if caps.LocalLogin {
		d.Outcome = OutcomeAuthenticateLocal
		if !errors.Is(d.Err, ErrUnexpectedFailure) {
			d.Err = fmt.Errorf("%w: falling back to local credentials", ErrAuthenticationUnavailable)
		}
		return d
	}

	d.Outcome = OutcomeDeny
	d.Reason = ReasonNoLoginMethod
	if d.Err == nil {
		d.Err = ErrAuthenticationUnavailable
	}
	return d
}

func deny(d Decision, reason string) Decision {
	d.Outcome = OutcomeDeny
	d.Reason = reason
	d.Err = fmt.Errorf("%w: %s", ErrAuthorizationDenied, reason)
	return d
}
