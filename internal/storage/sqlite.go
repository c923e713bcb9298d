package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/ledger/internal/core"
)

// SQLiteStore is a Ledger backed by a single SQLite database file.
//
// Transactions start with BEGIN IMMEDIATE so concurrent imports serialize on
// the write lock instead of failing at commit.
type SQLiteStore struct {
	db *sql.DB
}

// sqliteTimeLayout is fixed width so created_at sorts correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: SQLite has a single writer, and :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() { _ = s.db.Close() }

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range sqliteSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}

// WithinTx runs fn in a transaction, committing only when fn returns nil.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &core.StorageError{Op: "commit", Err: err}
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) CreateImport(ctx context.Context, rec core.ImportRecord) (core.ImportRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO imports (id, source_type, source_name, source_hash, account_id, row_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.SourceType, rec.SourceName, rec.SourceHash, rec.AccountID, rec.RowCount,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return core.ImportRecord{}, err
	}
	return rec, nil
}

func (t *sqliteTx) InsertTransactions(ctx context.Context, importID uuid.UUID, accountID string, txns []core.CanonicalTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO transactions (import_id, account_id, line_number, txn_date, description, debit, credit, raw_amount, raw_description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	id := importID.String()
	for _, txn := range txns {
		if _, err := stmt.ExecContext(ctx,
			id, accountID, txn.LineNumber, txn.TxnDate, txn.Description,
			txn.Debit.String(), txn.Credit.String(), txn.RawAmount.String(), txn.RawDescription,
		); err != nil {
			return fmt.Errorf("line %d: %w", txn.LineNumber, err)
		}
	}
	return nil
}

const sqliteImportColumns = `id, source_type, source_name, source_hash, account_id, row_count, created_at`

func (s *SQLiteStore) GetImport(ctx context.Context, id uuid.UUID) (core.ImportRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteImportColumns+` FROM imports WHERE id = ?`, id.String())
	rec, err := scanSQLiteImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportRecord{}, ErrNotFound
	}
	if err != nil {
		return core.ImportRecord{}, fmt.Errorf("get import: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	return s.queryImports(ctx,
		`SELECT `+sqliteImportColumns+` FROM imports ORDER BY created_at DESC, id LIMIT ?`,
		normalizeLimit(limit))
}

func (s *SQLiteStore) FindImportsByHash(ctx context.Context, hash string) ([]core.ImportRecord, error) {
	return s.queryImports(ctx,
		`SELECT `+sqliteImportColumns+` FROM imports WHERE source_hash = ? ORDER BY created_at`,
		hash)
}

func (s *SQLiteStore) queryImports(ctx context.Context, query string, args ...any) ([]core.ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var out []core.ImportRecord
	for rows.Next() {
		rec, err := scanSQLiteImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteImport(row rowScanner) (core.ImportRecord, error) {
	var (
		rec       core.ImportRecord
		id        string
		createdAt string
	)
	if err := row.Scan(&id, &rec.SourceType, &rec.SourceName, &rec.SourceHash, &rec.AccountID, &rec.RowCount, &createdAt); err != nil {
		return core.ImportRecord{}, err
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return core.ImportRecord{}, fmt.Errorf("parse import id %q: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return core.ImportRecord{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, importID uuid.UUID) ([]StoredTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, line_number, txn_date, description, debit, credit, raw_amount, raw_description
		 FROM transactions WHERE import_id = ? ORDER BY line_number, id`,
		importID.String())
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []StoredTransaction
	for rows.Next() {
		var (
			st                 StoredTransaction
			debit, credit, raw string
		)
		if err := rows.Scan(&st.ID, &st.AccountID, &st.LineNumber, &st.TxnDate, &st.Description,
			&debit, &credit, &raw, &st.RawDescription); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		st.ImportID = importID
		if err := parseMoneyColumns(&st.CanonicalTransaction, debit, credit, raw); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
