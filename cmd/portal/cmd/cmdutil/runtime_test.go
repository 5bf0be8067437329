package cmdutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/migrations"
)

func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("debug", false, "")
	require.NoError(t, cmd.Flags().Parse(args))
	cmd.SetContext(context.Background())
	return cmd
}

func TestPrepareAndOpenDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: \"file:"+filepath.Join(dir, "p.db")+"\"\n"), 0o600))

	cmd := newCommand(t, "--config", path, "--debug")
	rt, err := Prepare(cmd)
	require.NoError(t, err)
	assert.True(t, rt.Config.Debug, "--debug overrides the file")
	assert.Equal(t, path, rt.Config.File)

	_, err = FromCommand(cmd)
	assert.ErrorIs(t, err, ErrNoRuntime)

	cmd.SetContext(WithRuntime(cmd.Context(), rt))
	got, err := FromCommand(cmd)
	require.NoError(t, err)
	assert.Same(t, rt, got)

	db, err := rt.OpenDB(cmd.Context(), true)
	require.NoError(t, err)
	defer db.Close()

	group, err := migrations.Apply(cmd.Context(), db)
	require.NoError(t, err)
	assert.Zero(t, group.ID, "migrations already applied by OpenDB")
}

func TestPrepareMissingFile(t *testing.T) {
	cmd := newCommand(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Prepare(cmd)
	assert.Error(t, err)
}
