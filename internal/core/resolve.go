package core

import "strings"

// ResolveHeaders maps each canonical field to the first header column, scanning
// left to right, whose cleaned lower-case text matches one of the field's aliases.
//
// Date and description are required. When either is absent the result is a
// *MissingColumnError naming every missing required field.
func ResolveHeaders(header []string, aliases AliasTable) (FieldMap, error) {
	cleaned := make([]string, len(header))
	for i, h := range header {
		cleaned[i] = normalizeHeader(h)
	}

	fm := FieldMap{index: make(map[Field]int, len(Fields))}
	for _, f := range Fields {
		accepted := make(map[string]bool, len(aliases[f]))
		for _, a := range aliases[f] {
			accepted[strings.ToLower(strings.TrimSpace(a))] = true
		}
		for i, h := range cleaned {
			if h != "" && accepted[h] {
				fm.index[f] = i
				break
			}
		}
	}

	var missing []Field
	for _, f := range RequiredFields {
		if !fm.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return FieldMap{}, &MissingColumnError{Fields: missing}
	}

	return fm, nil
}

// Columns returns the resolved field-to-index pairs.
func (m FieldMap) Columns() map[Field]int {
	out := make(map[Field]int, len(m.index))
	for f, i := range m.index {
		out[f] = i
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	return strings.ToLower(CleanCell(h))
}
