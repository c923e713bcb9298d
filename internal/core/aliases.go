package core

// aliases.go holds the header alias tables used by ResolveHeaders.
//
// The built-in table covers common bank exports. Deployments that see other
// spellings can extend it with a YAML file keyed by canonical field:
//
//	date: [booking date, value date]
//	description: [payee]
//	amount: [transaction amount]
//
// File aliases are appended after the defaults, so a default spelling still
// wins when a header contains both.

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultAliases = AliasTable{
	FieldDate:        {"date", "txn_date", "posted"},
	FieldDescription: {"description", "memo", "details"},
	FieldAmount:      {"amount", "amt", "value"},
	FieldDebit:       {"debit"},
	FieldCredit:      {"credit"},
}

// DefaultAliases returns a copy of the built-in alias table.
func DefaultAliases() AliasTable {
	return defaultAliases.Clone()
}

// Clone returns a deep copy of t.
func (t AliasTable) Clone() AliasTable {
	out := make(AliasTable, len(t))
	for f, names := range t {
		out[f] = append([]string(nil), names...)
	}
	return out
}

// Merge returns a new table with extra appended to each field's aliases.
// Aliases are normalized to lower case and duplicates are dropped.
func (t AliasTable) Merge(extra AliasTable) AliasTable {
	out := t.Clone()
	for f, names := range extra {
		seen := make(map[string]bool, len(out[f]))
		for _, n := range out[f] {
			seen[n] = true
		}
		for _, n := range names {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out[f] = append(out[f], n)
		}
	}
	return out
}

// LoadAliases reads a YAML alias file and merges it over the defaults.
// An empty path returns the defaults unchanged.
func LoadAliases(path string) (AliasTable, error) {
	if path == "" {
		return DefaultAliases(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	extra, err := ParseAliases(data)
	if err != nil {
		return nil, fmt.Errorf("alias file %s: %w", path, err)
	}
	return DefaultAliases().Merge(extra), nil
}

// ParseAliases decodes a YAML alias document. Unknown field names are rejected.
func ParseAliases(data []byte) (AliasTable, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}

	known := make(map[Field]bool, len(Fields))
	for _, f := range Fields {
		known[f] = true
	}

	out := make(AliasTable, len(raw))
	for key, names := range raw {
		f := Field(strings.ToLower(strings.TrimSpace(key)))
		if !known[f] {
			return nil, fmt.Errorf("unknown field %q", key)
		}
		out[f] = append(out[f], names...)
	}
	return out, nil
}
