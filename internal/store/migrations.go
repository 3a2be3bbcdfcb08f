package store

// Schema is the minimal DDL the recommendation and screen-run
// repositories expect. Applied by operators via psql or a migration
// tool of their choice; marketgov does not run migrations itself.
const Schema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id         BIGSERIAL PRIMARY KEY,
	strategy   TEXT NOT NULL,
	budget     DOUBLE PRECISION NOT NULL,
	symbol     TEXT NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS screen_runs (
	id             BIGSERIAL PRIMARY KEY,
	market         TEXT NOT NULL,
	total_count    INTEGER NOT NULL,
	returned_count INTEGER NOT NULL,
	warnings       INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS recommendations_created_at_idx ON recommendations (created_at DESC);
CREATE INDEX IF NOT EXISTS screen_runs_created_at_idx ON screen_runs (created_at DESC);
`
