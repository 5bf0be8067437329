package users

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/MarioNunes35/Portal-de-aplicativos/cmd/portal/cmd/cmdutil"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local login accounts",
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

		users, err := repository.NewBunUserRepository(db).List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		if len(users) == 0 {
			pterm.Info.Println("No local users.")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(userTable(users)).Render()
	},
}

func userTable(users []models.User) pterm.TableData {
	table := pterm.TableData{{"USERNAME", "EMAIL", "STATUS", "CREATED", "LAST LOGIN"}}
	for _, u := range users {
		status := "active"
		if u.Disabled() {
			status = "disabled"
		}
		table = append(table, []string{
			u.Username,
			u.Email,
			status,
			u.CreatedAt.Format(time.RFC3339),
			formatTime(u.LastLoginAt),
		})
	}
	return table
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
