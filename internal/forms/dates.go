package forms

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

const dateLayout = "20060102"

// NormalizeDate turns a partial or decorated date into YYYYMMDD.
//
//	"0312"       -> current year + "0312"
//	"250312"     -> "20250312"
//	"2025-03-12" -> "20250312"
//
// Empty, malformed and impossible dates become today's date.
func NormalizeDate(v string, now time.Time) string {
	today := now.Format(dateLayout)

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, v)

	switch len(digits) {
	case 4:
		digits = strconv.Itoa(now.Year()) + digits
	case 6:
		digits = "20" + digits
	case 8:
	default:
		return today
	}

	if _, err := time.Parse(dateLayout, digits); err != nil {
		return today
	}
	return digits
}
