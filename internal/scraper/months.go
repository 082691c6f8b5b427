package scraper

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// frenchMonths maps French month names to their number. Names carrying a
// diacritic are listed both with and without it.
var frenchMonths = map[string]time.Month{
	"janvier":   time.January,
	"février":   time.February,
	"fevrier":   time.February,
	"mars":      time.March,
	"avril":     time.April,
	"mai":       time.May,
	"juin":      time.June,
	"juillet":   time.July,
	"août":      time.August,
	"aout":      time.August,
	"septembre": time.September,
	"octobre":   time.October,
	"novembre":  time.November,
	"décembre":  time.December,
	"decembre":  time.December,
}

// MonthNumber resolves a French month name. ok is false for anything outside
// the vocabulary.
func MonthNumber(name string) (time.Month, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if m, ok := frenchMonths[name]; ok {
		return m, true
	}
	// Decomposed input (e.g. "février") or stray accents such as "aoùt".
	m, ok := frenchMonths[foldAccents(name)]
	return m, ok
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
