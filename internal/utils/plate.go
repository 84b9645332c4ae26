package utils

import "strings"

// NormalizePlate uppercases a recognized plate string and removes every
// rune outside A-Z, 0-9, space and tab, then trims surrounding whitespace.
// Normalizing an already-normalized string is a no-op.
func NormalizePlate(plate string) string {
	upper := strings.ToUpper(plate)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
