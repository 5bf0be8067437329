package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a local account checked by the username/password login.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string     `bun:"id,pk,type:uuid"`
	Username     string     `bun:"username,notnull,unique"` // lower-cased
	Email        string     `bun:"email,notnull"`
	PasswordHash string     `bun:"password_hash,notnull"` // bcrypt, or legacy sha256 hex
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	LastLoginAt  *time.Time `bun:"last_login_at"`
	DisabledAt   *time.Time `bun:"disabled_at"`
}

// Disabled reports whether the account has been switched off.
func (u *User) Disabled() bool {
	return u != nil && u.DisabledAt != nil
}

// Session is a browser login. Only the sha256 of the bearer token is stored.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID            string    `bun:"id,pk,type:uuid"`
	TokenHash     string    `bun:"token_hash,notnull,unique"`
	Email         string    `bun:"email,notnull"`
	EmailVerified *bool     `bun:"email_verified"` // nil when the IdP did not say
	Method        string    `bun:"method,notnull"` // oidc | local
	Provider      string    `bun:"provider,notnull"`
	UserID        *string   `bun:"user_id,type:uuid"` // set for database-backed local users
	ExpiresAt     time.Time `bun:"expires_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	LastUsedAt    time.Time `bun:"last_used_at,nullzero,notnull,default:current_timestamp"`
	UserAgent     *string   `bun:"user_agent"`
	IPAddress     *string   `bun:"ip_address"`
	Revoked       bool      `bun:"revoked,notnull,default:false"`
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}
