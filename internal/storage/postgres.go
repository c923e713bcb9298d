package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/ledger/internal/core"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// copyColumns lists the transactions columns in the order copyRow produces them.
var copyColumns = []string{
	"import_id", "account_id", "line_number", "txn_date",
	"description", "debit", "credit", "raw_amount", "raw_description",
}

// PostgresStore is a Ledger backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates a pool from cfg and pings the server.
func OpenPostgres(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() { s.pool.Close() }

// Migrate creates the schema inside one transaction.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range postgresSchema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// WithinTx runs fn in a transaction. The deferred rollback is a no-op once
// Commit succeeds and undoes everything on error, panic or cancellation.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &core.StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &core.StorageError{Op: "commit", Err: err}
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateImport(ctx context.Context, rec core.ImportRecord) (core.ImportRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	// timestamptz keeps microseconds
	rec.CreatedAt = rec.CreatedAt.Truncate(time.Microsecond)

	_, err := t.tx.Exec(ctx,
		`INSERT INTO imports (id, source_type, source_name, source_hash, account_id, row_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		toPgUUID(rec.ID), rec.SourceType, rec.SourceName, rec.SourceHash, rec.AccountID, rec.RowCount, rec.CreatedAt,
	)
	if err != nil {
		return core.ImportRecord{}, err
	}
	return rec, nil
}

// InsertTransactions loads the batch with the COPY protocol.
func (t *pgTx) InsertTransactions(ctx context.Context, importID uuid.UUID, accountID string, txns []core.CanonicalTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	rows := make([][]any, len(txns))
	for i, txn := range txns {
		row, err := copyRow(importID, accountID, txn)
		if err != nil {
			return fmt.Errorf("line %d: %w", txn.LineNumber, err)
		}
		rows[i] = row
	}

	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return err
	}
	if int(n) != len(txns) {
		return fmt.Errorf("copy inserted %d of %d transactions", n, len(txns))
	}
	return nil
}

func copyRow(importID uuid.UUID, accountID string, txn core.CanonicalTransaction) ([]any, error) {
	date, err := toPgDate(txn.TxnDate)
	if err != nil {
		return nil, err
	}
	debit, err := toPgNumeric(txn.Debit)
	if err != nil {
		return nil, err
	}
	credit, err := toPgNumeric(txn.Credit)
	if err != nil {
		return nil, err
	}
	raw, err := toPgNumeric(txn.RawAmount)
	if err != nil {
		return nil, err
	}

	return []any{
		toPgUUID(importID),
		accountID,
		int32(txn.LineNumber),
		date,
		txn.Description,
		debit,
		credit,
		raw,
		txn.RawDescription,
	}, nil
}

const pgImportColumns = `id, source_type, source_name, source_hash, account_id, row_count, created_at`

func (s *PostgresStore) GetImport(ctx context.Context, id uuid.UUID) (core.ImportRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgImportColumns+` FROM imports WHERE id = $1`, toPgUUID(id))
	rec, err := scanPgImport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportRecord{}, ErrNotFound
	}
	if err != nil {
		return core.ImportRecord{}, fmt.Errorf("get import: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	return queryPgImports(ctx, s.pool,
		`SELECT `+pgImportColumns+` FROM imports ORDER BY created_at DESC, id LIMIT $1`,
		normalizeLimit(limit))
}

func (s *PostgresStore) FindImportsByHash(ctx context.Context, hash string) ([]core.ImportRecord, error) {
	return queryPgImports(ctx, s.pool,
		`SELECT `+pgImportColumns+` FROM imports WHERE source_hash = $1 ORDER BY created_at`,
		hash)
}

func queryPgImports(ctx context.Context, q DBTX, sql string, args ...any) ([]core.ImportRecord, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var out []core.ImportRecord
	for rows.Next() {
		rec, err := scanPgImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPgImport(row pgx.Row) (core.ImportRecord, error) {
	var (
		rec core.ImportRecord
		id  pgtype.UUID
	)
	if err := row.Scan(&id, &rec.SourceType, &rec.SourceName, &rec.SourceHash, &rec.AccountID, &rec.RowCount, &rec.CreatedAt); err != nil {
		return core.ImportRecord{}, err
	}
	rec.ID = uuid.UUID(id.Bytes)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, importID uuid.UUID) ([]StoredTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, line_number, to_char(txn_date, 'YYYY-MM-DD'), description,
		        debit::text, credit::text, raw_amount::text, raw_description
		 FROM transactions WHERE import_id = $1 ORDER BY line_number, id`,
		toPgUUID(importID))
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

// ----------------------------------------------------------------------------
// pgtype conversions
// ----------------------------------------------------------------------------

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func toPgDate(s string) (pgtype.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return pgtype.Date{}, fmt.Errorf("invalid txn_date %q", s)
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

func toPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("numeric %s: %w", d.String(), err)
	}
	return n, nil
}

func parseMoneyColumns(txn *core.CanonicalTransaction, debit, credit, raw string) error {
	var err error
	if txn.Debit, err = decimal.NewFromString(debit); err != nil {
		return fmt.Errorf("parse debit %q: %w", debit, err)
	}
	if txn.Credit, err = decimal.NewFromString(credit); err != nil {
		return fmt.Errorf("parse credit %q: %w", credit, err)
	}
	if txn.RawAmount, err = decimal.NewFromString(raw); err != nil {
		return fmt.Errorf("parse raw_amount %q: %w", raw, err)
	}
	return nil
}
