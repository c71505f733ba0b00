package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var foldCaser = cases.Fold()

// FoldValue trims and case-folds a string for case-insensitive comparison.
// Used for claim-value grouping and hub display-name lookups.
func FoldValue(value string) string {
	return foldCaser.String(strings.TrimSpace(value))
}

// TitleCase renders a display title with Unicode-aware casing.
func TitleCase(value string) string {
	return cases.Title(language.Und, cases.NoLower).String(strings.TrimSpace(value))
}

// SanitizeFilename replaces runes that are unsafe in library paths with
// spaces, drops other control runes, and collapses whitespace runs into
// single spaces.
func SanitizeFilename(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\x00':
			b.WriteRune(' ')
		default:
			if r < 0x20 {
				continue
			}
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
