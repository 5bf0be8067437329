package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260301000002, down_20260301000002)
}

// up_20260301000002 creates the browser session table
func up_20260301000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating sessions table...")
	_, err := db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at) WHERE `+
		partialIndexWhere(db, "revoked"))
	if err != nil {
		return fmt.Errorf("failed to create sessions expiry index: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions user index: %w", err)
	}
	fmt.Println(" OK")
	return nil
}

func down_20260301000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping sessions table...")
	_, err := db.NewDropTable().
		Model((*models.Session)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop sessions table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
