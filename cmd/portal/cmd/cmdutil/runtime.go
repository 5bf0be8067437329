package cmdutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/logging"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/migrations"
)

// Runtime is what the root command prepares before any subcommand runs.
type Runtime struct {
	Config *config.Config
	Log    *zap.Logger
}

type runtimeKey struct{}

// ErrNoRuntime is returned when a command runs without the root pre-run hook.
var ErrNoRuntime = errors.New("command runtime not initialized")

// Prepare loads the config named by the --config flag and builds the logger.
// --debug forces debug logging regardless of the config file.
func Prepare(cmd *cobra.Command) (*Runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	log, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &Runtime{Config: cfg, Log: log}, nil
}

// WithRuntime stores rt on ctx for subcommands.
func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// FromCommand returns the runtime stored by the root command.
func FromCommand(cmd *cobra.Command) (*Runtime, error) {
	if cmd.Context() == nil {
		return nil, ErrNoRuntime
	}
	rt, ok := cmd.Context().Value(runtimeKey{}).(*Runtime)
	if !ok || rt == nil {
		return nil, ErrNoRuntime
	}
	return rt, nil
}

// OpenDB connects to the configured database. When migrate is set, pending
// migrations are applied before returning.
func (rt *Runtime) OpenDB(ctx context.Context, migrate bool) (*bun.DB, error) {
	var opts []bunx.Option
	if rt.Config.Debug {
		opts = append(opts, bunx.WithQueryLogger(rt.Log.Named("db")))
	}
	db, err := bunx.NewDB(rt.Config.Database.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if !migrate {
		return db, nil
	}

	group, err := migrations.Apply(ctx, db)
	if err != nil {
		bunx.Close(db) //nolint:errcheck
		return nil, err
	}
	if group.ID != 0 {
		rt.Log.Info("applied migrations", zap.Int64("group", group.ID))
	}
	return db, nil
}
