package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver
)

// migrations[i] upgrades the schema from user_version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE nodes (
			node_id INTEGER PRIMARY KEY,
			is_lr INTEGER NOT NULL DEFAULT 0,
			flirs250 INTEGER NOT NULL DEFAULT 0,
			flirs1000 INTEGER NOT NULL DEFAULT 0,
			protocol_version INTEGER NOT NULL DEFAULT 0,
			max_speed INTEGER NOT NULL DEFAULT 0,
			neighbour INTEGER NOT NULL DEFAULT 0,
			lr_tx_power INTEGER NULL,
			last_rssi INTEGER NULL,
			last_heard_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX nodes_last_heard_at_idx ON nodes(last_heard_at DESC);`,
	},
	{
		`CREATE TABLE routes (
			destination INTEGER NOT NULL,
			kind TEXT NOT NULL,
			position INTEGER NOT NULL,
			repeaters BLOB NOT NULL,
			speed INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (destination, kind, position)
		);`,
	},
	{
		`CREATE TABLE stats_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at INTEGER NOT NULL,
			datalink_json TEXT NOT NULL,
			transfer_json TEXT NOT NULL
		);`,
		`CREATE INDEX stats_snapshots_taken_at_idx ON stats_snapshots(taken_at DESC);`,
	},
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = len(migrations)

func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("schema version %d is newer than supported %d", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		if err := applyMigration(ctx, db, v); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration to v%d: %w", from+1, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range migrations[from] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate to v%d: %w", from+1, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, from+1)); err != nil {
		return fmt.Errorf("set schema version %d: %w", from+1, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration to v%d: %w", from+1, err)
	}

	return nil
}
