package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/ledger/internal/logging"
)

// contextCheckInterval is how often (in rows) normalization checks for cancellation.
const contextCheckInterval = 100

// Defaults applied by NewImporter when Options leaves a value unset.
const (
	DefaultWorkers           = 4
	DefaultParallelThreshold = 5000
)

// Options configures an Importer.
type Options struct {
	Aliases           AliasTable // nil means DefaultAliases()
	DateFormats       []string   // named layout groups, nil means DefaultDateFormats
	Delimiter         rune       // 0 means ','
	Workers           int        // max concurrent normalization chunks
	ParallelThreshold int        // row count at which normalization goes parallel
	MaxFileSize       int64      // ImportFile rejects larger files; 0 disables the check

	// OnPhase, when set, is called on every phase transition.
	OnPhase func(ImportPhase)
}

// Importer runs the statement pipeline: resolve headers once, normalize every
// row, then hand the batch to the LedgerWriter in a single unit of work.
type Importer struct {
	writer    *LedgerWriter
	aliases   AliasTable
	dates     *DateParser
	delimiter rune
	workers   int
	threshold int
	maxSize   int64
	onPhase   func(ImportPhase)
}

// NewImporter creates an Importer writing to store.
func NewImporter(store Store, opts Options) (*Importer, error) {
	dates, err := NewDateParser(opts.DateFormats)
	if err != nil {
		return nil, err
	}

	aliases := opts.Aliases
	if aliases == nil {
		aliases = DefaultAliases()
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	if delim == '"' || delim == '\r' || delim == '\n' {
		return nil, fmt.Errorf("invalid delimiter %q", delim)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	threshold := opts.ParallelThreshold
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}

	return &Importer{
		writer:    NewLedgerWriter(store),
		aliases:   aliases.Clone(),
		dates:     dates,
		delimiter: delim,
		workers:   workers,
		threshold: threshold,
		maxSize:   opts.MaxFileSize,
		onPhase:   opts.OnPhase,
	}, nil
}

// ImportFile reads the file at path and imports it under its base name.
func (im *Importer) ImportFile(ctx context.Context, path, accountID string) (ImportResult, error) {
	content, err := im.ReadFile(path)
	if err != nil {
		return ImportResult{}, err
	}
	return im.Import(ctx, filepath.Base(path), content, accountID)
}

// ReadFile loads a statement file, enforcing the configured size limit.
func (im *Importer) ReadFile(path string) ([]byte, error) {
	if im.maxSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		if info.Size() > im.maxSize {
			return nil, fmt.Errorf("file too large: %d bytes exceeds %d byte limit", info.Size(), im.maxSize)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return content, nil
}

// Import runs the full pipeline over content. Nothing is written unless every
// row normalizes; the first failing row (lowest line number) is returned as
// *InvalidRowError.
func (im *Importer) Import(ctx context.Context, sourceName string, content []byte, accountID string) (ImportResult, error) {
	start := time.Now()
	run := im.newRun(ctx, "source", sourceName, "account_id", accountID)

	txns, _, err := im.prepare(ctx, run, content)
	if err != nil {
		run.fail(err)
		return ImportResult{}, err
	}

	run.advance(PhaseCommitting, "rows", len(txns))
	rec, err := im.writer.Write(ctx, sourceName, content, accountID, txns)
	if err != nil {
		run.fail(err)
		return ImportResult{}, err
	}

	result := ImportResult{
		ImportID:   rec.ID,
		SourceName: rec.SourceName,
		SourceHash: rec.SourceHash,
		AccountID:  rec.AccountID,
		Rows:       rec.RowCount,
		Duration:   time.Since(start),
	}
	run.advance(PhaseDone,
		"import_id", rec.ID,
		"rows", result.Rows,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// Preview resolves and normalizes content without writing anything.
func (im *Importer) Preview(ctx context.Context, content []byte) (PreviewResult, error) {
	run := im.newRun(ctx, "dry_run", true)

	txns, fm, err := im.prepare(ctx, run, content)
	if err != nil {
		run.fail(err)
		return PreviewResult{}, err
	}
	run.advance(PhaseDone, "rows", len(txns))

	return PreviewResult{
		SourceHash:   HashContent(content),
		Columns:      fm.Columns(),
		Transactions: txns,
	}, nil
}

// prepare parses content, resolves the header and normalizes every data row.
func (im *Importer) prepare(ctx context.Context, run *importRun, content []byte) ([]CanonicalTransaction, FieldMap, error) {
	header, rows, err := im.parse(content)
	if err != nil {
		return nil, FieldMap{}, err
	}

	fm, err := ResolveHeaders(header, im.aliases)
	if err != nil {
		return nil, FieldMap{}, err
	}
	run.advance(PhaseHeadersResolved, "columns", fm.Columns())

	if err := ctx.Err(); err != nil {
		return nil, FieldMap{}, err
	}

	run.advance(PhaseNormalizing, "rows", len(rows))
	txns, err := im.normalizeAll(ctx, rows, fm)
	if err != nil {
		return nil, FieldMap{}, err
	}
	return txns, fm, nil
}

// parse splits content into the header and data rows. Blank lines are dropped;
// every row keeps the physical line it started on.
func (im *Importer) parse(content []byte) ([]string, []RawRow, error) {
	data := sanitizeUTF8(stripBOM(content))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = im.delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		header []string
		rows   []RawRow
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("invalid csv: %w", err)
		}
		if isBlankLine(rec) {
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, RawRow{Line: line, Cells: rec})
	}

	if header == nil {
		return nil, nil, &MissingColumnError{Fields: RequiredFields}
	}
	return header, rows, nil
}

// normalizeAll converts rows in order. Large batches are split into contiguous
// chunks normalized concurrently; each chunk stops at its own first failure and
// the earliest failing chunk wins, so the reported row never depends on scheduling.
func (im *Importer) normalizeAll(ctx context.Context, rows []RawRow, fm FieldMap) ([]CanonicalTransaction, error) {
	out := make([]CanonicalTransaction, len(rows))

	if len(rows) < im.threshold || im.workers <= 1 {
		if err := im.normalizeRange(ctx, rows, fm, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	chunkSize := (len(rows) + im.workers - 1) / im.workers
	chunkErrs := make([]error, (len(rows)+chunkSize-1)/chunkSize)

	var g errgroup.Group
	g.SetLimit(im.workers)
	for slot := range chunkErrs {
		slot := slot
		start := slot * chunkSize
		end := min(start+chunkSize, len(rows))

		g.Go(func() error {
			err := im.normalizeRange(ctx, rows[start:end], fm, out[start:end])
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			chunkErrs[slot] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, err := range chunkErrs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (im *Importer) normalizeRange(ctx context.Context, rows []RawRow, fm FieldMap, out []CanonicalTransaction) error {
	for i, row := range rows {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		txn, err := NormalizeRow(row, fm, im.dates)
		if err != nil {
			return err
		}
		out[i] = txn
	}
	return nil
}

// importRun tracks and logs the phase of a single pipeline run.
type importRun struct {
	phase   ImportPhase
	logger  *slog.Logger
	onPhase func(ImportPhase)
}

func (im *Importer) newRun(ctx context.Context, fields ...any) *importRun {
	return &importRun{
		phase:   PhaseIdle,
		logger:  logging.WithFields(ctx, fields...),
		onPhase: im.onPhase,
	}
}

func (r *importRun) advance(p ImportPhase, args ...any) {
	args = append([]any{"from", r.phase, "to", p}, args...)
	r.phase = p
	if p == PhaseDone {
		r.logger.Info("import phase", args...)
	} else {
		r.logger.Debug("import phase", args...)
	}
	if r.onPhase != nil {
		r.onPhase(p)
	}
}

func (r *importRun) fail(err error) {
	prev := r.phase
	r.phase = PhaseFailed
	r.logger.Warn("import failed", "from", prev, "error", err)
	if r.onPhase != nil {
		r.onPhase(PhaseFailed)
	}
}
