package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store that only publishes staged writes when the
// unit of work returns nil.
type memStore struct {
	mu      sync.Mutex
	imports []ImportRecord
	txns    map[uuid.UUID][]CanonicalTransaction
	calls   int

	failCreate error
	failInsert error
}

func newMemStore() *memStore {
	return &memStore{txns: make(map[uuid.UUID][]CanonicalTransaction)}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	tx := &memTx{store: s, txns: make(map[uuid.UUID][]CanonicalTransaction)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.imports = append(s.imports, tx.imports...)
	for id, rows := range tx.txns {
		s.txns[id] = append(s.txns[id], rows...)
	}
	return nil
}

func (s *memStore) FindImportsByHash(_ context.Context, hash string) ([]ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ImportRecord
	for _, rec := range s.imports {
		if rec.SourceHash == hash {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) snapshot() ([]ImportRecord, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rows := range s.txns {
		n += len(rows)
	}
	return append([]ImportRecord(nil), s.imports...), n
}

type memTx struct {
	store   *memStore
	imports []ImportRecord
	txns    map[uuid.UUID][]CanonicalTransaction
}

func (tx *memTx) CreateImport(_ context.Context, rec ImportRecord) (ImportRecord, error) {
	if tx.store.failCreate != nil {
		return ImportRecord{}, tx.store.failCreate
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tx.imports = append(tx.imports, rec)
	return rec, nil
}

func (tx *memTx) InsertTransactions(_ context.Context, importID uuid.UUID, _ string, txns []CanonicalTransaction) error {
	if tx.store.failInsert != nil {
		return tx.store.failInsert
	}
	tx.txns[importID] = append(tx.txns[importID], txns...)
	return nil
}
