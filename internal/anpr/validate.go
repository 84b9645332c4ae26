package anpr

import (
	"strings"
	"unicode"
)

const (
	minPlateRunes    = 5
	maxPlateRunes    = 12
	minAlnumDensity  = 0.8
)

// IsValidPlateText decides whether an OCR string plausibly denotes a
// license plate. It is pure and total over any input, including
// non-ASCII text.
func IsValidPlateText(text string) bool {
	if text == "" || len([]rune(text)) < 4 {
		return false
	}

	stripped := []rune(strings.Join(strings.Fields(text), ""))
	if len(stripped) < minPlateRunes || len(stripped) > maxPlateRunes {
		return false
	}

	var letters, digits, alnum int
	for _, r := range stripped {
		if unicode.IsLetter(r) {
			letters++
		}
		if unicode.IsDigit(r) {
			digits++
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if letters == 0 || digits == 0 {
		return false
	}

	return float64(alnum)/float64(len(stripped)) >= minAlnumDensity
}
