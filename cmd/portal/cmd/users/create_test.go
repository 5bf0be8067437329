package users

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
)

func TestNewUser(t *testing.T) {
	user, err := newUser("Ana <Ana@Example.com>", "  Ana ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.True(t, access.VerifyPassword(user.PasswordHash, "s3cret"))
	assert.False(t, access.VerifyPassword(user.PasswordHash, "S3cret"))

	tests := []struct {
		name                      string
		email, username, password string
		wantErr                   string
	}{
		{"missing email", "", "ana", "pw", "--email"},
		{"missing username", "ana@example.com", " ", "pw", "--username"},
		{"missing password", "ana@example.com", "ana", "", "password is required"},
		{"bad email", "not-an-email", "ana", "pw", "invalid email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newUser(tt.email, tt.username, tt.password)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("hunter2\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)

	pw, err = readPassword(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, pw)
}

func TestUserTable(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	table := userTable([]models.User{
		{Username: "ana", Email: "ana@example.com", CreatedAt: created},
		{Username: "bob", Email: "bob@example.com", CreatedAt: created, LastLoginAt: &created, DisabledAt: &created},
	})

	require.Len(t, table, 3)
	assert.Equal(t, []string{"ana", "ana@example.com", "active", "2026-03-01T12:00:00Z", "never"}, table[1])
	assert.Equal(t, "disabled", table[2][2])
	assert.Equal(t, "2026-03-01T12:00:00Z", table[2][4])
}
