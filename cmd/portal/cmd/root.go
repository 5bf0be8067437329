package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MarioNunes35/Portal-de-aplicativos/cmd/portal/cmd/cmdutil"
	"github.com/MarioNunes35/Portal-de-aplicativos/cmd/portal/cmd/users"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

var rt *cmdutil.Runtime

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Access-controlled link portal",
	Long: `Portal serves a catalog of internal applications to users who sign in
through OIDC or local credentials and pass the configured allowlist and role checks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		rt, err = cmdutil.Prepare(cmd)
		if err != nil {
			return err
		}
		cmd.SetContext(cmdutil.WithRuntime(cmd.Context(), rt))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rt != nil {
			_ = rt.Log.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("config", "", fmt.Sprintf("Configuration file (default %s when present; env: %s_*)", config.DefaultConfigFile, config.EnvPrefix))
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(users.UsersCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
