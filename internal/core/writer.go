package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// HashContent returns the lowercase hex SHA-256 of the raw file bytes.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// LedgerWriter persists one import record and its transactions as a single unit of work.
type LedgerWriter struct {
	store Store
}

// NewLedgerWriter creates a writer backed by store.
func NewLedgerWriter(store Store) *LedgerWriter {
	return &LedgerWriter{store: store}
}

// Write records the import of content and inserts txns in order. Either the
// import record and every transaction are committed, or nothing is.
//
// Failures from the backend are returned as *StorageError.
func (w *LedgerWriter) Write(ctx context.Context, sourceName string, content []byte, accountID string, txns []CanonicalTransaction) (ImportRecord, error) {
	if err := ctx.Err(); err != nil {
		return ImportRecord{}, err
	}

	rec := ImportRecord{
		SourceType: SourceTypeCSV,
		SourceName: sourceName,
		SourceHash: HashContent(content),
		AccountID:  accountID,
		RowCount:   len(txns),
	}

	var created ImportRecord
	err := w.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		created, err = tx.CreateImport(ctx, rec)
		if err != nil {
			return &StorageError{Op: "create import", Err: err}
		}
		if err := tx.InsertTransactions(ctx, created.ID, accountID, txns); err != nil {
			return &StorageError{Op: "insert transactions", Err: err}
		}
		return nil
	})
	if err != nil {
		var se *StorageError
		if errors.As(err, &se) {
			return ImportRecord{}, err
		}
		return ImportRecord{}, &StorageError{Op: "transaction", Err: err}
	}

	return created, nil
}

// CheckDuplicate returns ErrDuplicateImport when content has already been imported.
func CheckDuplicate(ctx context.Context, lookup ImportLookup, content []byte) error {
	existing, err := lookup.FindImportsByHash(ctx, HashContent(content))
	if err != nil {
		return &StorageError{Op: "find imports by hash", Err: err}
	}
	if len(existing) > 0 {
		return ErrDuplicateImport
	}
	return nil
}
