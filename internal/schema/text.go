package schema

import (
	"strings"
)

// ListSeparator joins multi-valued narrative inputs.
const ListSeparator = "; "

// NormalizeText collapses runs of whitespace to one space and trims the ends.
// NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// narrativeValue accepts a string or a list of strings.
func narrativeValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return NormalizeText(t), true
	case []string:
		return joinItems(t), true
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return "", false
			}
			items = append(items, s)
		}
		return joinItems(items), true
	default:
		return "", false
	}
}

func joinItems(items []string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if n := NormalizeText(item); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, ListSeparator)
}
