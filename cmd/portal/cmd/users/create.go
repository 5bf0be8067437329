package users

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/MarioNunes35/Portal-de-aplicativos/cmd/portal/cmd/cmdutil"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
)

// PasswordCost is the bcrypt cost for passwords set from the CLI.
const PasswordCost = 12

var (
	emailFlag    string
	usernameFlag string
	passwordFlag string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a local login account",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := cmdutil.FromCommand(cmd)
		if err != nil {
			return err
		}

		password := passwordFlag
		if stdinFlag {
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			password, err = readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
		}

		user, err := newUser(emailFlag, usernameFlag, password)
		if err != nil {
			return err
		}
		if rt.Config.Auth != nil {
			if _, clash := rt.Config.Auth.Local.Users[user.Username]; clash {
				pterm.Warning.Printf("%q is also declared in the config file; that entry is checked first.\n", user.Username)
			}
		}

		ctx := cmd.Context()
		db, err := rt.OpenDB(ctx, true)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		userRepo := repository.NewBunUserRepository(db)
		if _, err := userRepo.GetByUsername(ctx, user.Username); err == nil {
			return fmt.Errorf("user %q already exists", user.Username)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check username uniqueness: %w", err)
		}

		if err := userRepo.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		pterm.Success.Println("User created successfully!")
		pterm.Println("----------------------------------------")
		pterm.Printf("User ID: %s\n", user.ID)
		pterm.Printf("Username: %s\n", user.Username)
		pterm.Printf("Email: %s\n", user.Email)
		if roles := access.RoleTableFrom(rt.Config.Auth).RolesOf(user.Email); len(roles) > 0 {
			pterm.Printf("Roles: %s\n", strings.Join(roles, ", "))
		}
		pterm.Println("----------------------------------------")
		if !access.IsAllowed(user.Email, access.AllowlistFrom(rt.Config.Auth)) {
			pterm.Warning.Printf("%s is not on the allowlist and will be denied after login.\n", user.Email)
		}
		return nil
	},
}

// newUser validates the flags and hashes the password.
func newUser(email, username, password string) (*models.User, error) {
	if email == "" {
		return nil, errors.New("--email flag is required")
	}
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("--username flag is required")
	}
	if password == "" {
		return nil, errors.New("password is required (use --password or --stdin)")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, fmt.Errorf("invalid email format: %w", err)
	}

	hash, err := access.HashPassword(password, PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &models.User{
		Username:     strings.ToLower(strings.TrimSpace(username)),
		Email:        access.NormalizeEmail(addr.Address),
		PasswordHash: hash,
	}, nil
}

func readPassword(in io.Reader) (string, error) {
	if in == nil {
		in = os.Stdin
	}
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return "", nil
}
