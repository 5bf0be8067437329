package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

// LoginPaths tells clients where each login mechanism starts.
var LoginPaths = map[access.Outcome]string{
	access.OutcomeAuthenticateOIDC:  "/auth/login",
	access.OutcomeAuthenticateLocal: "/auth/local",
}

// DecisionResponse is the JSON body written for every non-allow decision.
type DecisionResponse struct {
	Action   access.Outcome `json:"action"`
	State    access.State   `json:"state"`
	Provider string         `json:"provider,omitempty"`
	Email    string         `json:"email,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Problems []string       `json:"problems,omitempty"`
	Login    string         `json:"login,omitempty"`
}

// RoleFunc picks the role a route requires from the current config.
type RoleFunc func(cfg *config.Config) string

// PortalRole requires portal.required_role.
func PortalRole(cfg *config.Config) string {
	return cfg.Portal.RequiredRole
}

// NewAccessMiddleware evaluates every request against the current config
// snapshot. Allowed requests continue with the decision on the principal;
// the rest get 401 when a login is needed, 403 when denied and 500 on an
// unexpected failure.
// It must run after NewSessionMiddleware.
func NewAccessMiddleware(deps Dependencies, role RoleFunc) func(http.Handler) http.Handler {
	log := deps.logger()
	if role == nil {
		role = PortalRole
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, _ := auth.GetPrincipalFromContext(ctx)
			snap := deps.Store.Get()

			decision := deps.Resolver.Evaluate(snap.Auth, Capabilities(snap.Config), access.Request{
				Identity:     principal.Identity,
				RequiredRole: role(snap.Config),
			})
			if deps.Metrics != nil {
				deps.Metrics.RecordDecision(ctx, string(decision.Outcome), string(decision.State), decision.Provider)
			}

			if decision.Allowed() {
				principal.Decision = decision
				next.ServeHTTP(w, r.WithContext(auth.SetPrincipalContext(ctx, principal)))
				return
			}

			fields := []zap.Field{
				zap.String("outcome", string(decision.Outcome)),
				zap.String("email", decision.Email),
				zap.String("reason", decision.Reason),
				zap.Strings("problems", decision.Problems),
				zap.Uint64("config_version", snap.Version),
			}
			if errors.Is(decision.Err, access.ErrUnexpectedFailure) {
				log.Error("access evaluation failed", append(fields, zap.Error(decision.Err))...)
				RespondError(w, http.StatusInternalServerError, "internal error")
				return
			}
			log.Debug("access not granted", fields...)

			status := http.StatusUnauthorized
			if decision.Outcome == access.OutcomeDeny {
				status = http.StatusForbidden
			}
			RespondJSON(w, status, NewDecisionResponse(decision))
		})
	}
}

// NewDecisionResponse converts a decision to its wire form.
func NewDecisionResponse(d access.Decision) DecisionResponse {
	return DecisionResponse{
		Action:   d.Outcome,
		State:    d.State,
		Provider: d.Provider,
		Email:    d.Email,
		Reason:   d.Reason,
		Problems: d.Problems,
		Login:    LoginPaths[d.Outcome],
	}
}

// RespondJSON writes v as a JSON body with status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError writes {"error": msg} with status.
func RespondError(w http.ResponseWriter, status int, msg string) {
	RespondJSON(w, status, map[string]string{"error": msg})
}
