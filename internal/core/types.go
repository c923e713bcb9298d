package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field is a canonical transaction field that a statement column can map to.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
)

// Fields lists every canonical field in resolution order.
var Fields = []Field{FieldDate, FieldDescription, FieldAmount, FieldDebit, FieldCredit}

// RequiredFields must resolve to a column or the import is rejected.
var RequiredFields = []Field{FieldDate, FieldDescription}

// AliasTable maps each canonical field to the header spellings it accepts.
// Aliases are compared lower-cased after cell cleanup.
type AliasTable map[Field][]string

// FieldMap records which column each canonical field resolved to.
// Built once per import by ResolveHeaders and never mutated afterwards.
type FieldMap struct {
	index map[Field]int
}

// Index returns the column index for f, or -1 when f did not resolve.
func (m FieldMap) Index(f Field) int {
	if i, ok := m.index[f]; ok {
		return i
	}
	return -1
}

// Has reports whether f resolved to a column.
func (m FieldMap) Has(f Field) bool {
	return m.Index(f) >= 0
}

// RawRow is one data line split into cells, with its 1-based line number in the source.
type RawRow struct {
	Line  int
	Cells []string
}

// CanonicalTransaction is a validated statement line.
//
// Exactly one of Debit and Credit is positive and the other is zero.
// RawAmount always equals Credit minus Debit.
type CanonicalTransaction struct {
	TxnDate        string          `json:"txn_date"` // YYYY-MM-DD
	Description    string          `json:"description"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RawAmount      decimal.Decimal `json:"raw_amount"`
	RawDescription string          `json:"raw_description"`
	LineNumber     int             `json:"line_number"`
}

// SourceTypeCSV is the only source type written by the importer.
const SourceTypeCSV = "csv"

// ImportRecord describes one committed ingestion of a statement file.
type ImportRecord struct {
	ID         uuid.UUID `json:"id"`
	SourceType string    `json:"source_type"`
	SourceName string    `json:"source_name"`
	SourceHash string    `json:"source_hash"`
	AccountID  string    `json:"account_id"`
	RowCount   int       `json:"row_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ImportResult is returned to callers after a successful commit.
type ImportResult struct {
	ImportID   uuid.UUID     `json:"import_id"`
	SourceName string        `json:"source_name"`
	SourceHash string        `json:"source_hash"`
	AccountID  string        `json:"account_id"`
	Rows       int           `json:"rows"`
	Duration   time.Duration `json:"duration_ns"`
}

// PreviewResult is the outcome of a dry run: resolved columns and normalized rows,
// nothing written.
type PreviewResult struct {
	SourceHash   string                 `json:"source_hash"`
	Columns      map[Field]int          `json:"columns"`
	Transactions []CanonicalTransaction `json:"transactions"`
}

// ImportPhase indicates the current stage of an import.
type ImportPhase string

const (
	PhaseIdle            ImportPhase = "idle"
	PhaseHeadersResolved ImportPhase = "headers_resolved"
	PhaseNormalizing     ImportPhase = "normalizing"
	PhaseCommitting      ImportPhase = "committing"
	PhaseDone            ImportPhase = "done"
	PhaseFailed          ImportPhase = "failed"
)

// Store runs units of work against a persistence backend.
//
// WithinTx commits when fn returns nil and rolls back on any error, panic,
// or context cancellation.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side available inside a unit of work.
type Tx interface {
	// CreateImport persists rec. A zero ID or CreatedAt is assigned by the store.
	CreateImport(ctx context.Context, rec ImportRecord) (ImportRecord, error)
	// InsertTransactions persists txns in order, all owned by importID.
	InsertTransactions(ctx context.Context, importID uuid.UUID, accountID string, txns []CanonicalTransaction) error
}

// ImportLookup is the read side used for caller-level duplicate detection.
type ImportLookup interface {
	FindImportsByHash(ctx context.Context, hash string) ([]ImportRecord, error)
}
