package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2024112202_session_claims.sql
var sessionClaimsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, sessionClaimsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS quiz_sessions_unmerged_idx; ALTER TABLE quiz_sessions DROP COLUMN IF EXISTS claimed_until`)
			return err
		},
	)
}
