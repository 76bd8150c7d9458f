package billing

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the schema version this package's migrations
// bring a fresh database to. Grounded on pkg/persistence/schema.go's
// version-gated createSchema/runMigrations shape.
const CurrentSchemaVersion = 1

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost TEXT NOT NULL,
	conversation_id TEXT,
	message_id TEXT,
	request_id TEXT NOT NULL UNIQUE,
	billing_period TEXT NOT NULL,
	verified INTEGER NOT NULL DEFAULT 0,
	verification_timestamp INTEGER
);

CREATE INDEX IF NOT EXISTS idx_usage_records_period ON usage_records(billing_period, provider, model);
CREATE INDEX IF NOT EXISTS idx_usage_records_request_id ON usage_records(request_id);

CREATE TABLE IF NOT EXISTS billing_rollups (
	billing_period TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	total_input_tokens INTEGER NOT NULL DEFAULT 0,
	total_output_tokens INTEGER NOT NULL DEFAULT 0,
	total_cost TEXT NOT NULL DEFAULT '0',
	request_count INTEGER NOT NULL DEFAULT 0,
	last_updated INTEGER NOT NULL,
	PRIMARY KEY (billing_period, provider, model)
);

CREATE TABLE IF NOT EXISTS schema_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func getSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_meta'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("billing: check schema_meta: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var raw string
	err = db.QueryRow(`SELECT value FROM schema_meta WHERE key='version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("billing: read schema version: %w", err)
	}
	var version int
	if _, err := fmt.Sscanf(raw, "%d", &version); err != nil {
		return 0, fmt.Errorf("billing: parse schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`INSERT INTO schema_meta (key, value) VALUES ('version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprintf("%d", version))
	return err
}

// initSchema creates the tables if absent and records the current schema
// version. There is only one version today; the schema_meta table exists so
// a future version bump has a place to gate an ALTER TABLE migration
// without touching call sites.
func initSchema(db *sql.DB) error {
	current, err := getSchemaVersion(db)
	if err != nil {
		return err
	}
	if _, err := db.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("billing: create schema: %w", err)
	}
	if current < CurrentSchemaVersion {
		if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("billing: set schema version: %w", err)
		}
	}
	return nil
}
