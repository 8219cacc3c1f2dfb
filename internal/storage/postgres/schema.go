package postgres

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. A real migration system
// can replace this once the table set stops changing.
const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id           UUID PRIMARY KEY,
	url          TEXT NOT NULL UNIQUE,
	source_id    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	fetched_at   TIMESTAMPTZ NOT NULL,
	processed    BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at TIMESTAMPTZ,
	failure      TEXT
);

CREATE INDEX IF NOT EXISTS articles_unprocessed_idx
	ON articles (fetched_at) WHERE NOT processed;

CREATE TABLE IF NOT EXISTS projects (
	id             UUID PRIMARY KEY,
	name           TEXT NOT NULL,
	normalized_key TEXT NOT NULL,
	location       TEXT NOT NULL DEFAULT '',
	budget         TEXT,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS projects_status_idx ON projects (status);

CREATE TABLE IF NOT EXISTS updates (
	id             UUID PRIMARY KEY,
	project_id     UUID NOT NULL REFERENCES projects (id),
	article_id     UUID NOT NULL REFERENCES articles (id),
	observed_at    TIMESTAMPTZ NOT NULL,
	status_at_time TEXT NOT NULL,
	summary        TEXT NOT NULL DEFAULT '',
	UNIQUE (project_id, article_id)
);

CREATE TABLE IF NOT EXISTS scan_runs (
	id          UUID PRIMARY KEY,
	source_id   TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	collected   INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
`

// EnsureSchema creates the ledger tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
