package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonAmountChars = regexp.MustCompile(`[^0-9.]`)
	latinDateRe    = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`)
)

// ParseAmount normalizes a loosely formatted money token ("C$ 33,000.00",
// "1,150.00") into a plain decimal. It never fails: empty or garbled input
// becomes 0, so a bad OCR token cannot block the pipeline. Callers that must
// tell zero from unparseable have to look at the raw string themselves.
func ParseAmount(raw string) float64 {
	clean := nonAmountChars.ReplaceAllString(raw, "")
	if clean == "" {
		return 0
	}
	val, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return val
}

// ParseLatinDate matches a day-first D[/-]M[/-]YY(YY) date, the common format
// on Central American invoices, and returns it as YYYY-MM-DD. Two-digit years
// are assumed to be 20YY. It does not validate calendar correctness; day 31
// of a 30-day month passes through as-is.
func ParseLatinDate(raw string) (string, bool) {
	m := latinDateRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}

	day, month, year := m[1], m[2], m[3]
	if len(year) == 2 {
		year = "20" + year
	}

	d, _ := strconv.Atoi(day)
	mo, _ := strconv.Atoi(month)
	return fmt.Sprintf("%s-%02d-%02d", year, mo, d), true
}

// firstNonTrivialLine returns the first line longer than five characters
// once trimmed, or "" if the text has none.
func firstNonTrivialLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 5 {
			return line
		}
	}
	return ""
}
