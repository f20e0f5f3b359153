package invoice

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// NormalizeAmount converts a locale-formatted amount string into a float.
// It strips currency symbols and whitespace, keeps only digits, '.' and ',',
// and disambiguates the separators:
//
//	both '.' and ',' present  -> the one appearing last is the decimal
//	                             mark ("1.234,56" and "1,234.56" are both
//	                             1234.56), the other separates thousands
//	only ',' present          -> ',' is the decimal separator ("1234,56")
//	only '.' or neither       -> already machine-readable
//
// Unparseable input (including the "Nicht gefunden" sentinel) yields 0.0
// with a warning; the function never fails.
func NormalizeAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" || IsSentinel(s) {
		return 0.0
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		zap.L().Warn("could not parse amount", zap.String("raw", raw))
		return 0.0
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		zap.L().Warn("could not parse amount", zap.String("raw", raw))
		return 0.0
	}
	return v
}

// dateLayouts are the best-effort fallback formats tried after the two
// strict ones, most common German/European forms first.
var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"02.01.06",
	"2006/01/02",
	"2.1.2006",
	"2. January 2006",
	"January 2, 2006",
}

// NormalizeDate converts a date string into ISO form (YYYY-MM-DD). It tries
// strict YYYY-MM-DD, then strict DD.MM.YYYY, then the generic fallbacks.
// Empty input, the "Nicht gefunden" sentinel and unparseable input all
// yield the empty string; the function never fails.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || s == "Nicht gefunden" {
		return ""
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02")
	}
	if t, err := time.Parse("02.01.2006", s); err == nil {
		return t.Format("2006-01-02")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}

	zap.L().Warn("could not parse date", zap.String("raw", raw))
	return ""
}
