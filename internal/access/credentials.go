package access

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

// SHA256Prefix marks a legacy unsalted SHA-256 hex digest.
const SHA256Prefix = "sha256:"

// Default admin account, only served when explicitly enabled and the store is empty.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin"
	DefaultAdminEmail    = "admin@localhost"
)

// Credential is a stored password hash and the email it authenticates as.
type Credential struct {
	Username     string
	PasswordHash string
	Email        string
}

// CredentialStore is the read-only view of local accounts.
//
// LookupCredential returns (nil, nil) when the username is unknown.
type CredentialStore interface {
	LookupCredential(ctx context.Context, username string) (*Credential, error)
	CountCredentials(ctx context.Context) (int, error)
}

// StaticCredentialStore serves credentials declared in configuration.
// Keys are lower-cased usernames.
type StaticCredentialStore map[string]config.LocalUser

// LookupCredential implements CredentialStore.
func (s StaticCredentialStore) LookupCredential(_ context.Context, username string) (*Credential, error) {
	u, ok := s[username]
	if !ok {
		return nil, nil
	}
	return &Credential{Username: username, PasswordHash: u.PasswordHash, Email: u.Email}, nil
}

// CountCredentials implements CredentialStore.
func (s StaticCredentialStore) CountCredentials(context.Context) (int, error) {
	return len(s), nil
}

// ChainStore consults each store in order; the first hit wins.
type ChainStore []CredentialStore

// LookupCredential implements CredentialStore.
func (c ChainStore) LookupCredential(ctx context.Context, username string) (*Credential, error) {
	for _, s := range c {
		cred, err := s.LookupCredential(ctx, username)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
	return nil, nil
}

// CountCredentials implements CredentialStore.
func (c ChainStore) CountCredentials(ctx context.Context) (int, error) {
	total := 0
	for _, s := range c {
		n, err := s.CountCredentials(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// defaultAdminStore wraps a store with the built-in admin account.
type defaultAdminStore struct {
	inner CredentialStore
	admin Credential
	log   *zap.Logger
}

// WithDefaultAdmin serves admin/admin while inner holds no credentials.
// This is a development convenience; every use is logged as a warning.
func WithDefaultAdmin(inner CredentialStore, log *zap.Logger) (CredentialStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash default admin password: %w", err)
	}
	return &defaultAdminStore{
		inner: inner,
		admin: Credential{Username: DefaultAdminUsername, PasswordHash: string(hash), Email: DefaultAdminEmail},
		log:   log,
	}, nil
}

func (s *defaultAdminStore) LookupCredential(ctx context.Context, username string) (*Credential, error) {
	n, err := s.CountCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if username != DefaultAdminUsername {
			return nil, nil
		}
		s.log.Warn("serving built-in default admin account; create real users and disable auth.local.allow_default_admin")
		admin := s.admin
		return &admin, nil
	}
	return s.inner.LookupCredential(ctx, username)
}

func (s *defaultAdminStore) CountCredentials(ctx context.Context) (int, error) {
	if s.inner == nil {
		return 0, nil
	}
	return s.inner.CountCredentials(ctx)
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnCompare spends the same work as a real bcrypt check so unknown
// usernames are not distinguishable by latency.
func burnCompare(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("portal-timing-equalizer"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// VerifyPassword checks password against a stored bcrypt hash or legacy
// SHA-256 hex digest. Unrecognized formats never match.
func VerifyPassword(stored, password string) bool {
	stored = strings.TrimSpace(stored)
	switch {
	case isBcrypt(stored):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	case strings.HasPrefix(stored, SHA256Prefix):
		return compareSHA256(strings.TrimPrefix(stored, SHA256Prefix), password)
	case len(stored) == sha256.Size*2:
		return compareSHA256(stored, password)
	}
	return false
}

// HashPassword produces the bcrypt hash stored for new local users.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func compareSHA256(digestHex, password string) bool {
	want, err := hex.DecodeString(strings.ToLower(digestHex))
	if err != nil || len(want) != sha256.Size {
		return false
	}
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}
