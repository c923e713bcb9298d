package storage

// Schema statements are idempotent and applied in order by Migrate.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS imports (
		id          UUID PRIMARY KEY,
		source_type TEXT NOT NULL CHECK (source_type = 'csv'),
		source_name TEXT NOT NULL,
		source_hash TEXT NOT NULL,
		account_id  TEXT NOT NULL,
		row_count   INTEGER NOT NULL CHECK (row_count >= 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS imports_source_hash_idx ON imports (source_hash)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id              BIGSERIAL PRIMARY KEY,
		import_id       UUID NOT NULL REFERENCES imports (id) ON DELETE CASCADE,
		account_id      TEXT NOT NULL,
		line_number     INTEGER NOT NULL,
		txn_date        DATE NOT NULL,
		description     TEXT NOT NULL CHECK (description <> ''),
		debit           NUMERIC NOT NULL CHECK (debit >= 0),
		credit          NUMERIC NOT NULL CHECK (credit >= 0),
		raw_amount      NUMERIC NOT NULL,
		raw_description TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_import_id_idx ON transactions (import_id, line_number)`,
}

// SQLite has no decimal type; money is stored as canonical decimal text.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS imports (
		id          TEXT PRIMARY KEY,
		source_type TEXT NOT NULL CHECK (source_type = 'csv'),
		source_name TEXT NOT NULL,
		source_hash TEXT NOT NULL,
		account_id  TEXT NOT NULL,
		row_count   INTEGER NOT NULL CHECK (row_count >= 0),
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS imports_source_hash_idx ON imports (source_hash)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		import_id       TEXT NOT NULL REFERENCES imports (id) ON DELETE CASCADE,
		account_id      TEXT NOT NULL,
		line_number     INTEGER NOT NULL,
		txn_date        TEXT NOT NULL,
		description     TEXT NOT NULL CHECK (description <> ''),
		debit           TEXT NOT NULL CHECK (CAST(debit AS REAL) >= 0),
		credit          TEXT NOT NULL CHECK (CAST(credit AS REAL) >= 0),
		raw_amount      TEXT NOT NULL,
		raw_description TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_import_id_idx ON transactions (import_id, line_number)`,
}
