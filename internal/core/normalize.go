package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeRow validates one data row and converts it to a CanonicalTransaction.
//
// Checks run in a fixed order so a row with several problems always reports
// the same reason: description, then amount or debit/credit, then date.
// Failures are returned as *InvalidRowError carrying row.Line.
func NormalizeRow(row RawRow, fm FieldMap, dates *DateParser) (CanonicalTransaction, error) {
	fail := func(reason string) (CanonicalTransaction, error) {
		return CanonicalTransaction{}, &InvalidRowError{Row: row.Line, Reason: reason}
	}

	desc := strings.TrimSpace(cellAt(row.Cells, fm.Index(FieldDescription)))
	if desc == "" {
		return fail(ReasonMissingDescription)
	}

	var debit, credit, rawAmount decimal.Decimal
	if fm.Has(FieldAmount) {
		amount, ok := ParseMoney(CleanCell(cellAt(row.Cells, fm.Index(FieldAmount))))
		if !ok || amount.IsZero() {
			return fail(ReasonInvalidAmount)
		}
		rawAmount = amount
		if amount.IsNegative() {
			debit = amount.Abs()
			credit = decimal.Zero
		} else {
			debit = decimal.Zero
			credit = amount
		}
	} else {
		d, ok := parseSplitAmount(cellAt(row.Cells, fm.Index(FieldDebit)))
		if !ok {
			return fail(ReasonInvalidDebitCredit)
		}
		c, ok := parseSplitAmount(cellAt(row.Cells, fm.Index(FieldCredit)))
		if !ok {
			return fail(ReasonInvalidDebitCredit)
		}
		if d.IsPositive() == c.IsPositive() {
			// both set or both zero
			return fail(ReasonInvalidDebitCredit)
		}
		debit, credit = d, c
		rawAmount = credit.Sub(debit)
	}

	txnDate, ok := dates.Parse(CleanCell(cellAt(row.Cells, fm.Index(FieldDate))))
	if !ok {
		return fail(ReasonInvalidDate)
	}

	return CanonicalTransaction{
		TxnDate:        txnDate,
		Description:    desc,
		Debit:          debit,
		Credit:         credit,
		RawAmount:      rawAmount,
		RawDescription: desc,
		LineNumber:     row.Line,
	}, nil
}

// parseSplitAmount reads a debit or credit cell. Empty means zero; negatives are invalid.
func parseSplitAmount(s string) (decimal.Decimal, bool) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, true
	}
	d, ok := ParseMoney(s)
	if !ok || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}
