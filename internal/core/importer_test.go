package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestImporter(t *testing.T, store Store, opts Options) *Importer {
	t.Helper()
	im, err := NewImporter(store, opts)
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}
	return im
}

// ============================================================================
// Import: success paths
// ============================================================================

func TestImport_SignedAmount(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})
	content := []byte("date,description,amount\n2024-01-05,Coffee,-4.50\n2024-01-06,Refund,12\n")

	res, err := im.Import(context.Background(), "jan.csv", content, "acct-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if res.Rows != 2 || res.SourceName != "jan.csv" || res.AccountID != "acct-1" {
		t.Errorf("result = %+v", res)
	}
	if res.SourceHash != HashContent(content) {
		t.Error("SourceHash is not the hash of the raw content")
	}

	got := store.txns[res.ImportID]
	if len(got) != 2 {
		t.Fatalf("stored %d transactions, want 2", len(got))
	}
	if got[0].TxnDate != "2024-01-05" || !got[0].Debit.Equal(dec("4.50")) || !got[0].RawAmount.Equal(dec("-4.50")) {
		t.Errorf("first transaction = %+v", got[0])
	}
	if got[1].LineNumber != 3 || !got[1].Credit.Equal(dec("12")) {
		t.Errorf("second transaction = %+v", got[1])
	}
	for _, txn := range got {
		assertCanonical(t, txn)
	}
}

func TestImport_DebitCreditColumns(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})
	content := []byte("Date,Description,Debit,Credit\r\n2024-01-05,Paycheck,0,1500\r\n2024-01-07,Rent,950.00,\r\n")

	res, err := im.Import(context.Background(), "feb.csv", content, "acct")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	got := store.txns[res.ImportID]
	if len(got) != 2 {
		t.Fatalf("stored %d transactions, want 2", len(got))
	}
	if !got[0].Credit.Equal(dec("1500")) || !got[0].RawAmount.Equal(dec("1500")) {
		t.Errorf("paycheck = %+v", got[0])
	}
	if !got[1].Debit.Equal(dec("950")) || !got[1].RawAmount.Equal(dec("-950")) {
		t.Errorf("rent = %+v", got[1])
	}
}

func TestImport_AliasHeaders(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})

	res, err := im.Import(context.Background(), "d.csv", []byte("txn_date,memo,amt\n2024-01-05,Coffee,-4.50\n"), "acct")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	got := store.txns[res.ImportID]
	if len(got) != 1 || got[0].Description != "Coffee" || !got[0].Debit.Equal(dec("4.50")) {
		t.Errorf("transactions = %+v", got)
	}
}

func TestImport_HeaderOnly(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})

	res, err := im.Import(context.Background(), "empty.csv", []byte("date,description,amount\n"), "acct")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Rows != 0 {
		t.Errorf("Rows = %d, want 0", res.Rows)
	}
	if imports, _ := store.snapshot(); len(imports) != 1 {
		t.Errorf("stored %d imports, want 1", len(imports))
	}
}

func TestImport_SemicolonDelimiterAndBOM(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{Delimiter: ';', DateFormats: []string{"eu"}})
	content := append([]byte{0xEF, 0xBB, 0xBF}, "Date;Description;Amount\n05/01/2024;\"Bakery; central\";-3.50\n"...)

	res, err := im.Import(context.Background(), "eu.csv", content, "acct")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	got := store.txns[res.ImportID]
	if len(got) != 1 {
		t.Fatalf("stored %d transactions, want 1", len(got))
	}
	if got[0].TxnDate != "2024-01-05" || got[0].Description != "Bakery; central" || !got[0].Debit.Equal(dec("3.50")) {
		t.Errorf("transaction = %+v", got[0])
	}
	if res.SourceHash != HashContent(content) {
		t.Error("hash must cover the BOM bytes")
	}
}

// ============================================================================
// Import: failure paths
// ============================================================================

func TestImport_InvalidRowWritesNothing(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})
	content := []byte("date,description,debit,credit\n2024-01-05,Bad,100,50\n2024-01-06,Fine,10,\n")

	_, err := im.Import(context.Background(), "c.csv", content, "acct")

	var ire *InvalidRowError
	if !errors.As(err, &ire) {
		t.Fatalf("error = %v, want *InvalidRowError", err)
	}
	if ire.Row != 2 || ire.Reason != ReasonInvalidDebitCredit {
		t.Errorf("error = %v, want row 2: invalid debit/credit", ire)
	}
	if store.calls != 0 {
		t.Errorf("store invoked %d times, want 0", store.calls)
	}
}

func TestImport_MissingColumnNeverTouchesStore(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no date column", "posting,description,amount\nx,y,1\n"},
		{"empty file", ""},
		{"only blank lines", "\n   \n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			im := newTestImporter(t, store, Options{})

			_, err := im.Import(context.Background(), "e.csv", []byte(tt.content), "acct")
			var mce *MissingColumnError
			if !errors.As(err, &mce) {
				t.Fatalf("error = %v, want *MissingColumnError", err)
			}
			if store.calls != 0 {
				t.Errorf("store invoked %d times, want 0", store.calls)
			}
		})
	}
}

func TestImport_RowNumbersFollowPhysicalLines(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})
	content := "\n" + // line 1
		"date,description,amount\n" + // line 2
		"2024-01-05,Coffee,-4.50\n" + // line 3
		"   \n" + // line 4
		"\n" + // line 5
		"2024-01-06,,1\n" // line 6

	_, err := im.Import(context.Background(), "lines.csv", []byte(content), "acct")
	var ire *InvalidRowError
	if !errors.As(err, &ire) {
		t.Fatalf("error = %v, want *InvalidRowError", err)
	}
	if ire.Row != 6 || ire.Reason != ReasonMissingDescription {
		t.Errorf("error = %v, want row 6: missing description", ire)
	}
}

func TestImport_DelimiterOnlyLineIsARow(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})
	content := "date,description,amount\n2024-01-05,Coffee,-4.50\n,,\n"

	_, err := im.Import(context.Background(), "commas.csv", []byte(content), "acct")
	var ire *InvalidRowError
	if !errors.As(err, &ire) {
		t.Fatalf("error = %v, want *InvalidRowError", err)
	}
	if ire.Row != 3 || ire.Reason != ReasonMissingDescription {
		t.Errorf("error = %v, want row 3: missing description", ire)
	}
	if imports, n := store.snapshot(); len(imports) != 0 || n != 0 {
		t.Errorf("partial write: %d imports, %d transactions", len(imports), n)
	}
}

func TestImport_StorageErrorPropagates(t *testing.T) {
	store := newMemStore()
	cause := errors.New("connection reset by peer")
	store.failInsert = cause
	im := newTestImporter(t, store, Options{})

	_, err := im.Import(context.Background(), "s.csv", []byte("date,description,amount\n2024-01-05,Coffee,-1\n"), "acct")
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, cause) {
		t.Fatalf("error = %v, want *StorageError wrapping cause", err)
	}
	if imports, n := store.snapshot(); len(imports) != 0 || n != 0 {
		t.Errorf("partial write: %d imports, %d transactions", len(imports), n)
	}
}

func TestImport_CancelledBeforeCommit(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.Import(ctx, "x.csv", []byte("date,description,amount\n2024-01-05,Coffee,-1\n"), "acct")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if store.calls != 0 {
		t.Errorf("store invoked %d times, want 0", store.calls)
	}
}

// ============================================================================
// Phases
// ============================================================================

func TestImport_Phases(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []ImportPhase
	}{
		{
			name:    "success",
			content: "date,description,amount\n2024-01-05,Coffee,-1\n",
			want:    []ImportPhase{PhaseHeadersResolved, PhaseNormalizing, PhaseCommitting, PhaseDone},
		},
		{
			name:    "bad header",
			content: "foo,bar\n1,2\n",
			want:    []ImportPhase{PhaseFailed},
		},
		{
			name:    "bad row",
			content: "date,description,amount\n2024-01-05,Coffee,zero\n",
			want:    []ImportPhase{PhaseHeadersResolved, PhaseNormalizing, PhaseFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []ImportPhase
			im := newTestImporter(t, newMemStore(), Options{OnPhase: func(p ImportPhase) { got = append(got, p) }})
			_, _ = im.Import(context.Background(), "p.csv", []byte(tt.content), "acct")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("phases = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Parallel normalization
// ============================================================================

func buildStatement(rows int, bad map[int]string) []byte {
	var b strings.Builder
	b.WriteString("date,description,amount\n")
	for i := 0; i < rows; i++ {
		if line, ok := bad[i]; ok {
			b.WriteString(line + "\n")
			continue
		}
		fmt.Fprintf(&b, "2024-01-%02d,Item %d,-%d.25\n", i%28+1, i, i+1)
	}
	return []byte(b.String())
}

func TestImport_ParallelKeepsOrder(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{Workers: 4, ParallelThreshold: 10})

	res, err := im.Import(context.Background(), "big.csv", buildStatement(503, nil), "acct")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	got := store.txns[res.ImportID]
	if len(got) != 503 {
		t.Fatalf("stored %d transactions, want 503", len(got))
	}
	for i, txn := range got {
		if want := fmt.Sprintf("Item %d", i); txn.Description != want {
			t.Fatalf("transaction %d description = %q, want %q", i, txn.Description, want)
		}
		if txn.LineNumber != i+2 {
			t.Fatalf("transaction %d line = %d, want %d", i, txn.LineNumber, i+2)
		}
	}
}

func TestImport_ParallelReportsLowestFailingRow(t *testing.T) {
	bad := map[int]string{
		40:  "2024-01-05,,1",      // line 42, missing description
		350: "2024-01-05,X,nope",  // line 352, later chunk
		480: "not-a-date,Late,-1", // line 482, last chunk
	}
	content := buildStatement(500, bad)

	for i := 0; i < 20; i++ {
		store := newMemStore()
		im := newTestImporter(t, store, Options{Workers: 8, ParallelThreshold: 10})

		_, err := im.Import(context.Background(), "bad.csv", content, "acct")
		var ire *InvalidRowError
		if !errors.As(err, &ire) {
			t.Fatalf("run %d: error = %v, want *InvalidRowError", i, err)
		}
		if ire.Row != 42 || ire.Reason != ReasonMissingDescription {
			t.Fatalf("run %d: error = %v, want row 42: missing description", i, ire)
		}
		if store.calls != 0 {
			t.Fatalf("run %d: store invoked", i)
		}
	}
}

func TestImport_ParallelMatchesSequential(t *testing.T) {
	content := buildStatement(257, nil)

	seqStore, parStore := newMemStore(), newMemStore()
	seq := newTestImporter(t, seqStore, Options{Workers: 1})
	par := newTestImporter(t, parStore, Options{Workers: 6, ParallelThreshold: 2})

	seqRes, err := seq.Import(context.Background(), "s.csv", content, "acct")
	if err != nil {
		t.Fatal(err)
	}
	parRes, err := par.Import(context.Background(), "s.csv", content, "acct")
	if err != nil {
		t.Fatal(err)
	}

	a, b := seqStore.txns[seqRes.ImportID], parStore.txns[parRes.ImportID]
	if len(a) != len(b) {
		t.Fatalf("sequential stored %d, parallel %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Description != b[i].Description || !a[i].RawAmount.Equal(b[i].RawAmount) || a[i].TxnDate != b[i].TxnDate {
			t.Fatalf("row %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// ============================================================================
// ImportFile / Preview / options
// ============================================================================

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statement-2024-01.csv")
	content := []byte("date,description,amount\n2024-01-05,Coffee,-4.50\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	store := newMemStore()
	res, err := newTestImporter(t, store, Options{}).ImportFile(context.Background(), path, "acct")
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.SourceName != "statement-2024-01.csv" {
		t.Errorf("SourceName = %q, want base name", res.SourceName)
	}
	if res.SourceHash != HashContent(content) {
		t.Error("SourceHash does not match file bytes")
	}
}

func TestImportFile_Errors(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.csv")
	if err := os.WriteFile(big, buildStatement(50, nil), 0o600); err != nil {
		t.Fatal(err)
	}

	im := newTestImporter(t, newMemStore(), Options{MaxFileSize: 64})

	if _, err := im.ImportFile(context.Background(), big, "acct"); err == nil || !strings.Contains(err.Error(), "file too large") {
		t.Errorf("oversize error = %v, want file too large", err)
	}
	if _, err := im.ImportFile(context.Background(), filepath.Join(dir, "missing.csv"), "acct"); err == nil {
		t.Error("ImportFile succeeded for a missing file")
	}
}

func TestPreview(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(t, store, Options{})
	content := []byte("memo,posted,amt\nCoffee,2024-01-05,-4.50\n")

	pv, err := im.Preview(context.Background(), content)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(pv.Transactions) != 1 || pv.Transactions[0].Description != "Coffee" {
		t.Errorf("Transactions = %+v", pv.Transactions)
	}
	want := map[Field]int{FieldDescription: 0, FieldDate: 1, FieldAmount: 2}
	if !reflect.DeepEqual(pv.Columns, want) {
		t.Errorf("Columns = %v, want %v", pv.Columns, want)
	}
	if pv.SourceHash != HashContent(content) {
		t.Error("SourceHash mismatch")
	}
	if store.calls != 0 {
		t.Error("Preview wrote to the store")
	}
}

func TestNewImporter_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"quote delimiter", Options{Delimiter: '"'}},
		{"newline delimiter", Options{Delimiter: '\n'}},
		{"unknown date group", Options{DateFormats: []string{"lunar"}}},
		{"us with eu", Options{DateFormats: []string{"us", "eu"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewImporter(newMemStore(), tt.opts); err == nil {
				t.Error("NewImporter succeeded, want error")
			}
		})
	}
}
