package middleware

import (
	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/telemetry"
)

// Dependencies provides the collaborators needed for authentication and
// authorization decisions.
type Dependencies struct {
	Store    *config.Store
	Resolver *access.Resolver
	Sessions *auth.Sessions
	// Metrics is optional.
	Metrics *telemetry.AccessMetrics
	Log     *zap.Logger
}

func (d Dependencies) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// Capabilities reports which login mechanisms this server can run under cfg.
// OIDC is always runnable here; local login follows auth.local.enabled.
func Capabilities(cfg *config.Config) access.Capabilities {
	caps := access.Capabilities{OIDCLogin: true}
	if cfg != nil && cfg.Auth != nil {
		caps.LocalLogin = cfg.Auth.Local.Enabled
	}
	return caps
}
