package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user, assigning an ID and normalizing username and email.
// The email must be a bare address; display-name forms are rejected.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidUser)
	}
	email := strings.TrimSpace(user.Email)
	addr, err := mail.ParseAddress(email)
	if err != nil || !strings.EqualFold(addr.Address, email) {
		return fmt.Errorf("%w: malformed email %q", ErrInvalidUser, user.Email)
	}

	if user.ID == "" {
		user.ID = bunx.NewUUIDv7()
	}
	user.Username = username
	user.Email = access.NormalizeEmail(addr.Address)
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err = r.db.NewInsert().
		Model(user).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByUsername retrieves a user by lower-cased username
func (r *BunUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("username = ?", strings.ToLower(strings.TrimSpace(username))).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

// List retrieves all users ordered by username
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Order("username ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountActive counts users without a disabled_at timestamp
func (r *BunUserRepository) CountActive(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("disabled_at IS NULL").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Disable marks a user disabled; existing sessions are revoked by the caller.
func (r *BunUserRepository) Disable(ctx context.Context, username string) error {
	now := time.Now().UTC()
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("disabled_at = ?", now).
		Set("updated_at = ?", now).
		Where("username = ?", strings.ToLower(strings.TrimSpace(username))).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("disable user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return nil
}

// UpdateLastLogin updates the last_login_at timestamp for a user
func (r *BunUserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UserCredentialStore exposes the users table as an access.CredentialStore.
// Disabled users are invisible to it.
type UserCredentialStore struct {
	users UserRepository
}

// NewUserCredentialStore wraps users for the local login check.
func NewUserCredentialStore(users UserRepository) *UserCredentialStore {
	return &UserCredentialStore{users: users}
}

// LookupCredential implements access.CredentialStore.
func (s *UserCredentialStore) LookupCredential(ctx context.Context, username string) (*access.Credential, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if user.Disabled() {
		return nil, nil
	}
	return &access.Credential{Username: user.Username, PasswordHash: user.PasswordHash, Email: user.Email}, nil
}

// CountCredentials implements access.CredentialStore.
func (s *UserCredentialStore) CountCredentials(ctx context.Context) (int, error) {
	return s.users.CountActive(ctx)
}
