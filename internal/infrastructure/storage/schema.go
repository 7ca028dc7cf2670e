package storage

func schema(dialect Dialect) []string {
	if dialect == Postgres {
		return postgresSchema
	}
	return sqliteSchema
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS search_requests (
		id BIGSERIAL PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
		task_handle TEXT,
		date_range TEXT NOT NULL,
		new_wins_found INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (status IN ('pending', 'failed') OR task_handle IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_search_requests_status ON search_requests (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS wins (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		organization TEXT,
		categories TEXT NOT NULL DEFAULT '',
		emoji TEXT,
		date TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		summary TEXT NOT NULL,
		image_urls TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'rejected')),
		submitted_by TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wins_status ON wins (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS sources (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		organization TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_run_at TIMESTAMPTZ,
		last_status TEXT CHECK (last_status IN ('success', 'error')),
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS search_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
		task_handle TEXT,
		date_range TEXT NOT NULL,
		new_wins_found INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (status IN ('pending', 'failed') OR task_handle IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_search_requests_status ON search_requests (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS wins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		organization TEXT,
		categories TEXT NOT NULL DEFAULT '',
		emoji TEXT,
		date TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		summary TEXT NOT NULL,
		image_urls TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'rejected')),
		submitted_by TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wins_status ON wins (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		organization TEXT,
		active BOOLEAN NOT NULL DEFAULT 1,
		last_run_at TIMESTAMP,
		last_status TEXT CHECK (last_status IN ('success', 'error')),
		last_error TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}
