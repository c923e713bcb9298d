package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func sampleTxns() []CanonicalTransaction {
	return []CanonicalTransaction{
		{TxnDate: "2024-01-05", Description: "Coffee", Debit: dec("4.50"), Credit: dec("0"), RawAmount: dec("-4.50"), RawDescription: "Coffee", LineNumber: 2},
		{TxnDate: "2024-01-06", Description: "Refund", Debit: dec("0"), Credit: dec("10"), RawAmount: dec("10"), RawDescription: "Refund", LineNumber: 3},
	}
}

func TestHashContent(t *testing.T) {
	content := []byte("date,description,amount\n")
	sum := sha256.Sum256(content)
	if got, want := HashContent(content), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("HashContent = %s, want %s", got, want)
	}
	if HashContent([]byte("a")) == HashContent([]byte("b")) {
		t.Error("different content hashed equal")
	}
}

func TestLedgerWriter_Commits(t *testing.T) {
	store := newMemStore()
	w := NewLedgerWriter(store)
	content := []byte("raw bytes")

	rec, err := w.Write(context.Background(), "jan.csv", content, "acct-1", sampleTxns())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if rec.ID == uuid.Nil {
		t.Error("import ID not assigned")
	}
	if rec.SourceType != SourceTypeCSV || rec.SourceName != "jan.csv" || rec.AccountID != "acct-1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.SourceHash != HashContent(content) {
		t.Errorf("SourceHash = %s, want hash of content", rec.SourceHash)
	}
	if rec.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", rec.RowCount)
	}

	imports, n := store.snapshot()
	if len(imports) != 1 || n != 2 {
		t.Errorf("store has %d imports and %d transactions, want 1 and 2", len(imports), n)
	}
	if got := store.txns[rec.ID]; len(got) != 2 || got[0].Description != "Coffee" || got[1].Description != "Refund" {
		t.Errorf("transactions not stored in order under the import: %+v", got)
	}
}

func TestLedgerWriter_StorageFailureRollsBack(t *testing.T) {
	cause := errors.New("disk I/O error")

	tests := []struct {
		name   string
		setup  func(*memStore)
		wantOp string
	}{
		{"create import fails", func(s *memStore) { s.failCreate = cause }, "create import"},
		{"insert transactions fails", func(s *memStore) { s.failInsert = cause }, "insert transactions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			tt.setup(store)

			_, err := NewLedgerWriter(store).Write(context.Background(), "x.csv", []byte("x"), "a", sampleTxns())

			var se *StorageError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StorageError", err)
			}
			if se.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", se.Op, tt.wantOp)
			}
			if !errors.Is(err, cause) {
				t.Error("driver error not reachable through errors.Is")
			}
			if imports, n := store.snapshot(); len(imports) != 0 || n != 0 {
				t.Errorf("partial write: %d imports, %d transactions", len(imports), n)
			}
		})
	}
}

func TestLedgerWriter_CancelledContext(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLedgerWriter(store).Write(ctx, "x.csv", []byte("x"), "a", sampleTxns())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if store.calls != 0 {
		t.Errorf("store invoked %d times after cancellation", store.calls)
	}
}

func TestCheckDuplicate(t *testing.T) {
	store := newMemStore()
	content := []byte("date,description,amount\n2024-01-05,Coffee,-4.50\n")

	if err := CheckDuplicate(context.Background(), store, content); err != nil {
		t.Fatalf("CheckDuplicate on empty store: %v", err)
	}
	if _, err := NewLedgerWriter(store).Write(context.Background(), "a.csv", content, "acct", sampleTxns()[:1]); err != nil {
		t.Fatal(err)
	}
	if err := CheckDuplicate(context.Background(), store, content); !errors.Is(err, ErrDuplicateImport) {
		t.Errorf("CheckDuplicate = %v, want ErrDuplicateImport", err)
	}
	if err := CheckDuplicate(context.Background(), store, append(content, '\n')); err != nil {
		t.Errorf("CheckDuplicate on different bytes = %v, want nil", err)
	}
}
