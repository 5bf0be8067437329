package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// ErrInvalidUser is wrapped when a user fails validation before insert.
var ErrInvalidUser = errors.New("invalid user")

// UserRepository persists local accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	// CountActive counts users that are not disabled.
	CountActive(ctx context.Context) (int, error)
	Disable(ctx context.Context, username string) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// SessionRepository persists browser sessions keyed by token hash.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	UpdateLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	RevokeByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
