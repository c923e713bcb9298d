package core

// # Error Codes Reference
//
// MapError turns technical errors into user-facing messages with a code that
// users can quote to support.
//
// Typed pipeline errors are matched first with errors.As / errors.Is:
//
//	VAL004 - Missing column: a required header (date, description) was not found
//	VAL001 - Invalid date: a row's date matched none of the accepted layouts
//	VAL002 - Invalid amount: amount is not a non-zero number, or debit/credit
//	         are not exactly one positive value
//	VAL003 - Missing description: a row has an empty description
//	IMP001 - Duplicate import: identical file content was imported before
//	UPL002 - System busy: every import slot is taken
//
// Everything else falls through to case-insensitive substring patterns:
//
//	DB001-DB008   database constraints and connectivity
//	FILE001-004   file size, CSV syntax, missing upload
//	UPL004-006    cancellation and timeouts
//	RATE001       request throttling
//	ERR000        fallback; check the application log for the original error
//
// Patterns are matched in order and the first match wins, so specific
// patterns are listed before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Constraint Errors (DB001-DB003, DB008)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Please try the import again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A value that must be unique already exists",
			Action:  "Please try the import again",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "A transaction referenced an import that does not exist",
			Action:  "Please try the import again or contact support",
			Code:    "DB003",
		},
	},
	{
		pattern: "check constraint",
		msg: UserMessage{
			Message: "A transaction was rejected by the ledger database",
			Action:  "Review the statement for empty descriptions or negative amounts",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Another import is writing to the ledger",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE004)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the statement into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the statement into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid delimited statement",
			Action:  "Check the delimiter setting and quoting in the file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a statement file to import",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Upload Errors (UPL004-UPL006)
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Start a new import when ready",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Import timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "UPL005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "UPL006",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed pipeline errors are checked first, then the substring patterns.
// A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var missing *MissingColumnError
	if errors.As(err, &missing) {
		names := make([]string, len(missing.Fields))
		for i, f := range missing.Fields {
			names[i] = string(f)
		}
		return UserMessage{
			Message: "Required column is missing: " + strings.Join(names, ", "),
			Action:  "Check that the header row has a date and a description column",
			Code:    "VAL004",
		}, true
	}

	var row *InvalidRowError
	if errors.As(err, &row) {
		switch row.Reason {
		case ReasonInvalidDate:
			return UserMessage{
				Message: fmt.Sprintf("Row %d has an invalid date", row.Row),
				Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or an RFC 3339 timestamp",
				Code:    "VAL001",
			}, true
		case ReasonInvalidAmount:
			return UserMessage{
				Message: fmt.Sprintf("Row %d has an invalid or zero amount", row.Row),
				Action:  "Amounts must be non-zero numbers; negative values are debits",
				Code:    "VAL002",
			}, true
		case ReasonInvalidDebitCredit:
			return UserMessage{
				Message: fmt.Sprintf("Row %d must have exactly one of debit or credit", row.Row),
				Action:  "Fill in either the debit or the credit column with a positive number",
				Code:    "VAL002",
			}, true
		case ReasonMissingDescription:
			return UserMessage{
				Message: fmt.Sprintf("Row %d has no description", row.Row),
				Action:  "Ensure every row has a description",
				Code:    "VAL003",
			}, true
		}
	}

	switch {
	case errors.Is(err, ErrDuplicateImport):
		return UserMessage{
			Message: "This file has already been imported",
			Action:  "Re-submit with allow duplicate enabled to import it again",
			Code:    "IMP001",
		}, true
	case errors.Is(err, ErrTooManyImports):
		return UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		}, true
	case errors.Is(err, context.Canceled):
		return UserMessage{
			Message: "Import was cancelled",
			Action:  "Start a new import when ready",
			Code:    "UPL004",
		}, true
	case errors.Is(err, context.DeadlineExceeded):
		return UserMessage{
			Message: "Import timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "UPL005",
		}, true
	}

	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
