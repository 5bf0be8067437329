package users

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/MarioNunes35/Portal-de-aplicativos/cmd/portal/cmd/cmdutil"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
)

var disableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Disable a local login account and revoke its sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := cmdutil.FromCommand(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := rt.OpenDB(ctx, true)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		userRepo := repository.NewBunUserRepository(db)
		user, err := userRepo.GetByUsername(ctx, args[0])
		if err != nil {
			return err
		}
		if user.Disabled() {
			pterm.Info.Printf("User %s is already disabled.\n", user.Username)
			return nil
		}

		if err := userRepo.Disable(ctx, user.Username); err != nil {
			return fmt.Errorf("failed to disable user: %w", err)
		}
		if err := repository.NewBunSessionRepository(db).RevokeByUserID(ctx, user.ID); err != nil {
			return fmt.Errorf("user disabled but revoking sessions failed: %w", err)
		}

		pterm.Success.Printf("Disabled %s and revoked their sessions.\n", user.Username)
		return nil
	},
}
