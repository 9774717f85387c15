// Package canon normalizes the identifier, date, and free-text encodings
// that arrive from CSV extracts and spreadsheet cells. All functions are
// total: bad input degrades to an empty or verbatim string, never an error.
package canon

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// epoch is the spreadsheet serial-date origin (1900 date system).
var epoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Serial day offsets outside this window cannot map to a real calendar date.
const (
	minSerialDays = -693593 // 0001-01-01
	maxSerialDays = 2958465 // 9999-12-31
)

var (
	reTrailingZeros = regexp.MustCompile(`^(\d+)\.0+$`)
	reNonDigits     = regexp.MustCompile(`\D+`)

	stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "01/02/2006"}

// Document derives the digits-only canonical document key. Spreadsheet
// engines hand back the same identifier as text, integer, float with a
// spurious ".0", or scientific notation; all of them must collapse to one
// key. Booleans and nil carry no identity and map to the empty string.
func Document(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return ""
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		// Documents are never genuinely fractional; round stray decimals.
		return strconv.FormatFloat(math.Round(t), 'f', -1, 64)
	}

	s := strings.TrimSpace(toString(v))
	if s == "" {
		return ""
	}

	if m := reTrailingZeros.FindStringSubmatch(s); m != nil {
		return m[1]
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if !math.IsNaN(f) && !math.IsInf(f, 0) && math.Abs(f-math.Round(f)) < 1e-6 {
			return strconv.FormatFloat(math.Round(f), 'f', -1, 64)
		}
	}

	return reNonDigits.ReplaceAllString(s, "")
}

// DateKey derives the ISO calendar-date key used for dedupe. Numeric input
// is a serial day offset from the 1899-12-30 epoch; out-of-range offsets
// fall soft to the trimmed string form of the number. Unrecognized strings
// come back verbatim (trimmed) rather than failing.
func DateKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format("2006-01-02")
	case int:
		return serialDate(float64(t))
	case int64:
		return serialDate(float64(t))
	case float64:
		return serialDate(t)
	}

	s := strings.TrimSpace(toString(v))
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return s
}

func serialDate(days float64) string {
	if math.IsNaN(days) || math.IsInf(days, 0) || days < minSerialDays || days > maxSerialDays {
		return strings.TrimSpace(strconv.FormatFloat(days, 'f', -1, 64))
	}
	return epoch.AddDate(0, 0, int(math.Floor(days))).Format("2006-01-02")
}

// Text derives the canonical lookup key for free-text service names:
// accents stripped, upper-cased, whitespace runs collapsed, ends trimmed.
// Never persisted as a business value.
func Text(v any) string {
	if v == nil {
		return ""
	}
	s := toString(v)
	if stripped, _, err := transform.String(stripMarks, s); err == nil {
		s = stripped
	}
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
