package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations. Statements stay
// within the subset shared by sqlite and postgres.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: blobs, documents, survey and prompt responses",
		SQL: `
CREATE TABLE IF NOT EXISTS blobs (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  owner_ref TEXT,
  location TEXT NOT NULL,
  size_bytes BIGINT NOT NULL,
  extension TEXT,
  sha256 TEXT NOT NULL,
  variants TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  privacy_state TEXT NOT NULL,
  creator TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS survey_responses (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  campaign_urn TEXT NOT NULL,
  survey_id TEXT NOT NULL,
  client TEXT,
  privacy_state TEXT NOT NULL,
  epoch_millis BIGINT NOT NULL,
  timezone TEXT,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_responses (
  survey_response_id TEXT NOT NULL,
  prompt_id TEXT NOT NULL,
  prompt_type TEXT NOT NULL,
  repeatable_set_id TEXT,
  iteration INTEGER,
  response TEXT NOT NULL,
  blob_id TEXT,
  FOREIGN KEY (survey_response_id) REFERENCES survey_responses(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_blobs_kind ON blobs(kind);
CREATE INDEX IF NOT EXISTS idx_blobs_owner_ref ON blobs(owner_ref);
CREATE INDEX IF NOT EXISTS idx_prompt_responses_survey ON prompt_responses(survey_response_id);
CREATE INDEX IF NOT EXISTS idx_survey_responses_campaign ON survey_responses(campaign_urn, username);
`,
	},
	{
		Version:     2,
		Description: "location lookup index for sweep and check",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_blobs_location ON blobs(location);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist.
func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB, b sq.StatementBuilderType) error {
	ctx := context.Background()
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		query, args, err := b.Insert("schema_migrations").
			Columns("version", "applied_at").
			Values(m.Version, formatTime(time.Now())).
			ToSql()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func migrationPlan(ctx context.Context, db *sql.DB) (*MigrationStatus, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	sorted := sortedMigrations()
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}
