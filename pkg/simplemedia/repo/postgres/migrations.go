package postgres

import (
	"context"
	"fmt"
)

// migration represents a single database migration
type migration struct {
	version int
	name    string
	up      string
}

// migrations is the ordered list of all schema migrations. Each one is
// idempotent.
var migrations = []migration{
	{
		version: 1,
		name:    "create_media_object_table",
		up: `
			CREATE TABLE IF NOT EXISTS media_object (
				id BIGSERIAL PRIMARY KEY,
				media_type VARCHAR(32) NOT NULL,
				storage_key VARCHAR(512) NOT NULL,
				file_name VARCHAR(255) NOT NULL DEFAULT '',
				content_type VARCHAR(255) NOT NULL DEFAULT '',
				size BIGINT NOT NULL DEFAULT 0,
				owner_id BIGINT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT media_object_storage_key_key UNIQUE (storage_key)
			);
		`,
	},
	{
		version: 2,
		name:    "index_media_object_owner",
		up: `
			CREATE INDEX IF NOT EXISTS idx_media_object_owner_id
			ON media_object (owner_id)
			WHERE owner_id IS NOT NULL;

			CREATE INDEX IF NOT EXISTS idx_media_object_unowned_created_at
			ON media_object (created_at)
			WHERE owner_id IS NULL;
		`,
	},
}

// migrationLockID is the pg_advisory_xact_lock key held while migrating
const migrationLockID int64 = 0x6d65646961 // "media"

// Migrate applies pending migrations in one transaction. An advisory lock
// serializes processes migrating the same database at the same time. The
// connection's search_path decides the schema the tables land in.
func Migrate(ctx context.Context, db DBTX) error {
	repo := New(db)
	return repo.RunInTransaction(ctx, func(ctx context.Context) error {
		conn := repo.conn(ctx)

		if _, err := conn.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}

		_, err := conn.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS media_schema_migrations (
				version INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`)
		if err != nil {
			return fmt.Errorf("failed to create media_schema_migrations table: %w", err)
		}

		var current int
		err = conn.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM media_schema_migrations`).Scan(&current)
		if err != nil {
			return fmt.Errorf("failed to get current schema version: %w", err)
		}

		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			if _, err := conn.Exec(ctx, m.up); err != nil {
				return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
			}
			_, err := conn.Exec(ctx,
				`INSERT INTO media_schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
			if err != nil {
				return fmt.Errorf("failed to record migration %d (%s): %w", m.version, m.name, err)
			}
		}
		return nil
	})
}
