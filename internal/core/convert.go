package core

// convert.go turns raw statement cells into typed values.
//
// These functions handle the messy reality of exported bank statements:
//   - Currency symbols, thousands separators and accounting parentheses in amounts
//   - A configurable set of date layouts
//   - Excel formula prefixes (="value"), stray quotes and a leading BOM
//   - Invalid UTF-8 from legacy encodings

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches plain integers and decimals; exponents are rejected.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Date layout groups selectable by name. Layouts without a zone parse as UTC;
// layouts with one are converted to UTC before the calendar date is taken.
var dateLayoutGroups = map[string][]string{
	"iso":     {"2006-01-02", "2006/01/02", "20060102"},
	"rfc3339": {time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"},
	"us":      {"01/02/2006", "1/2/2006"},
	"eu":      {"02/01/2006", "2/1/2006", "02.01.2006"},
	"text":    {"Jan 2, 2006", "January 2, 2006", "2 Jan 2006"},
}

// DefaultDateFormats is the group list used when none is configured.
var DefaultDateFormats = []string{"iso", "rfc3339", "us"}

// DateFormatGroups returns the names of all known date layout groups.
func DateFormatGroups() []string {
	return []string{"iso", "rfc3339", "us", "eu", "text"}
}

// DateParser parses statement dates against an ordered list of layouts.
type DateParser struct {
	layouts []string
}

// NewDateParser builds a parser from named layout groups, tried in the given order.
// The "us" and "eu" groups are mutually exclusive since they read 01/02/2024 differently.
func NewDateParser(groups []string) (*DateParser, error) {
	if len(groups) == 0 {
		groups = DefaultDateFormats
	}

	var (
		layouts      []string
		hasUS, hasEU bool
	)
	for _, g := range groups {
		name := strings.ToLower(strings.TrimSpace(g))
		ls, ok := dateLayoutGroups[name]
		if !ok {
			return nil, fmt.Errorf("unknown date format group %q (known: %s)", g, strings.Join(DateFormatGroups(), ", "))
		}
		switch name {
		case "us":
			hasUS = true
		case "eu":
			hasEU = true
		}
		layouts = append(layouts, ls...)
	}
	if hasUS && hasEU {
		return nil, fmt.Errorf("date format groups \"us\" and \"eu\" cannot be combined")
	}

	return &DateParser{layouts: layouts}, nil
}

// Parse returns s as YYYY-MM-DD, or false when no layout matches.
func (p *DateParser) Parse(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	for _, layout := range p.layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC().Format("2006-01-02"), true
		}
	}
	return "", false
}

// ParseMoney converts a cell to an exact decimal.
// Handles currency symbols, thousands separators, and accounting format (parentheses for negative).
func ParseMoney(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Remove common currency symbols and thousands separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "\u20ac", "") // Euro
	s = strings.ReplaceAll(s, "\u00a3", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}
	if isNegative {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return decimal.Zero, false
		}
		s = "-" + s
	}
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// isBlankLine reports whether a record came from a line holding nothing but
// whitespace. A line of bare delimiters is a data row with empty cells.
func isBlankLine(row []string) bool {
	return len(row) == 1 && strings.TrimSpace(row[0]) == ""
}
