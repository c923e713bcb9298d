// Package core implements the statement import pipeline.
//
// An import turns one delimited bank statement into an ImportRecord plus one
// CanonicalTransaction per data row, committed atomically. The package has no
// transport or driver dependencies; persistence is reached through the [Store]
// and [Tx] interfaces implemented in internal/storage.
//
// # Pipeline
//
//  1. [ResolveHeaders] maps header cells to canonical fields using an
//     [AliasTable]. Missing date or description columns fail the import with
//     [MissingColumnError] before any row is read.
//  2. [NormalizeRow] validates each row and splits signed amounts or
//     debit/credit pairs into a [CanonicalTransaction]. The first bad row fails
//     the import with [InvalidRowError].
//  3. [LedgerWriter] hashes the raw file and writes the import record and all
//     transactions inside one [Store.WithinTx] call.
//
// [Importer] drives the three steps, logs each [ImportPhase] transition, and
// normalizes large files in parallel chunks.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with support codes by
// [MapError]. See error_messages.go for the code reference.
package core
