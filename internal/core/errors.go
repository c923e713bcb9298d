package core

import (
	"errors"
	"fmt"
	"strings"
)

// Row rejection reasons carried by InvalidRowError.
const (
	ReasonMissingDescription = "missing description"
	ReasonInvalidAmount      = "invalid amount"
	ReasonInvalidDebitCredit = "invalid debit/credit"
	ReasonInvalidDate        = "invalid date"
)

// ErrDuplicateImport is returned when the same content has already been imported
// and the caller did not allow a re-import.
var ErrDuplicateImport = errors.New("duplicate import: file content already imported")

// MissingColumnError is returned when required fields cannot be resolved from the header.
type MissingColumnError struct {
	Fields []Field
}

func (e *MissingColumnError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return "missing required column: " + strings.Join(names, ", ")
}

// InvalidRowError reports the first data row that failed normalization.
// Row is the 1-based physical line number in the source file.
type InvalidRowError struct {
	Row    int
	Reason string
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// StorageError wraps a failure from the persistence backend. The driver error
// is kept unchanged so errors.Is and errors.As reach it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
