package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
)

// NewSessionMiddleware resolves the session cookie and stores the caller's
// principal in the request context. Requests without a usable session pass
// through with an anonymous principal; this middleware never rejects.
func NewSessionMiddleware(deps Dependencies) func(http.Handler) http.Handler {
	log := deps.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := auth.Principal{}

			session, err := deps.Sessions.Resolve(ctx, r)
			if err != nil {
				log.Warn("session lookup failed", zap.Error(err))
			}
			if session != nil {
				principal.Identity = auth.IdentityFromSession(session)
				principal.SessionID = session.ID
				principal.PrincipalID = auth.UserID(session.Email)

				snap := deps.Store.Get()
				principal.Roles = access.RoleTableFrom(snap.Auth).RolesOf(session.Email)

				if err := deps.Sessions.Touch(ctx, session); err != nil {
					log.Debug("session touch failed", zap.String("session_id", session.ID), zap.Error(err))
				}
			}

			next.ServeHTTP(w, r.WithContext(auth.SetPrincipalContext(ctx, principal)))
		})
	}
}
