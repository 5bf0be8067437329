package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
)

const (
	// SessionDuration is the default session lifetime (12 hours)
	SessionDuration = 12 * time.Hour

	// TokenLength is the length of generated bearer tokens in bytes
	TokenLength = 32

	// SessionCookieName holds the opaque session token.
	SessionCookieName = "portal.session"
)

// GenerateBearerToken generates a cryptographically secure random bearer token
// Returns: token (hex string), token hash (SHA256 hex), error
func GenerateBearerToken() (string, string, error) {
	tokenBytes := make([]byte, TokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}

	token := hex.EncodeToString(tokenBytes)
	return token, HashBearerToken(token), nil
}

// HashBearerToken hashes a bearer token for storage/lookup
// Returns SHA256 hex hash
func HashBearerToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// SessionInfo carries what a login handler knows about the new session.
type SessionInfo struct {
	Identity  access.Identity
	UserID    *string // set for local accounts stored in the users table
	UserAgent string
	IPAddress string
}

// Sessions issues and resolves browser sessions backed by a SessionRepository.
type Sessions struct {
	repo repository.SessionRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewSessions creates a session manager. A zero ttl uses SessionDuration.
func NewSessions(repo repository.SessionRepository, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = SessionDuration
	}
	return &Sessions{repo: repo, ttl: ttl, now: time.Now}
}

// Start persists a new session for info and sets the session cookie.
func (s *Sessions) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, info SessionInfo) (*models.Session, error) {
	token, tokenHash, err := GenerateBearerToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &models.Session{
		TokenHash:     tokenHash,
		Email:         access.NormalizeEmail(info.Identity.Email),
		EmailVerified: info.Identity.EmailVerified,
		Method:        string(info.Identity.Method),
		Provider:      info.Identity.Provider,
		UserID:        info.UserID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
		UserAgent:     optionalString(info.UserAgent),
		IPAddress:     optionalString(info.IPAddress),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
	return session, nil
}

// Resolve returns the active session referenced by the request cookie.
// It returns (nil, nil) when there is no cookie or the session is unknown,
// expired or revoked; such requests are simply anonymous.
func (s *Sessions) Resolve(ctx context.Context, r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	session, err := s.repo.GetByTokenHash(ctx, HashBearerToken(cookie.Value))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !session.Active(s.now()) {
		return nil, nil
	}
	return session, nil
}

// Touch records that the session was just used.
func (s *Sessions) Touch(ctx context.Context, session *models.Session) error {
	return s.repo.UpdateLastUsed(ctx, session.ID)
}

// End revokes the request's session, if any, and clears the cookie.
func (s *Sessions) End(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	session, err := s.Resolve(ctx, r)
	ClearCookie(w, r, SessionCookieName)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	return s.repo.Revoke(ctx, session.ID)
}

// Cleanup deletes sessions that expired before now.
func (s *Sessions) Cleanup(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC())
}

// IdentityFromSession rebuilds the access identity a session was created for.
func IdentityFromSession(session *models.Session) access.Identity {
	if session == nil {
		return access.Identity{}
	}
	return access.Identity{
		Email:         session.Email,
		Method:        access.Method(session.Method),
		Provider:      session.Provider,
		EmailVerified: session.EmailVerified,
	}
}

// IsSecureRequest reports whether the client reached us over HTTPS,
// directly or through a proxy that set X-Forwarded-Proto.
func IsSecureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// ClearCookie expires the named cookie.
func ClearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// optionalString maps the empty string to NULL.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
