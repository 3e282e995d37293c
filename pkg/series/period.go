package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParsePeriod converts a provider period representation to an ISO-8601 date
// at the start of the period. Recognized forms:
//
//	"2020"        → "2020-01-01"   (annual)
//	"2020-07"     → "2020-07-01"   (monthly)
//	"2020-M07"    → "2020-07-01"   (SDMX monthly)
//	"202007"      → "2020-07-01"   (Comtrade monthly)
//	"2020-Q2"     → "2020-04-01"   (quarterly, first month of quarter)
//	"2020Q2"      → "2020-04-01"
//	"2020-S2"     → "2020-07-01"   (semiannual)
//	"2020-01-15"  → "2020-01-15"   (already a date)
func ParsePeriod(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty period")
	}

	// Quarterly: "2020-Q2" or "2020Q2".
	if i := strings.IndexAny(s, "Qq"); i > 0 {
		yearPart := strings.TrimSuffix(s[:i], "-")
		year, err := strconv.Atoi(yearPart)
		if err != nil {
			return "", fmt.Errorf("bad quarterly period %q", s)
		}
		q, err := strconv.Atoi(s[i+1:])
		if err != nil || q < 1 || q > 4 {
			return "", fmt.Errorf("bad quarter in period %q", s)
		}
		return fmt.Sprintf("%04d-%02d-01", year, (q-1)*3+1), nil
	}

	// Semiannual: "2020-S1" / "2020-H2".
	if i := strings.IndexAny(s, "SsHh"); i >= 4 && i == len(s)-2 {
		yearPart := strings.TrimSuffix(s[:i], "-")
		if year, err := strconv.Atoi(yearPart); err == nil {
			switch s[len(s)-1] {
			case '1':
				return fmt.Sprintf("%04d-01-01", year), nil
			case '2':
				return fmt.Sprintf("%04d-07-01", year), nil
			}
		}
	}

	// SDMX monthly: "2020-M07".
	if i := strings.Index(s, "-M"); i > 0 {
		year, err1 := strconv.Atoi(s[:i])
		month, err2 := strconv.Atoi(s[i+2:])
		if err1 == nil && err2 == nil && month >= 1 && month <= 12 {
			return fmt.Sprintf("%04d-%02d-01", year, month), nil
		}
	}

	// Compact monthly: "202007" (Comtrade).
	if len(s) == 6 && allDigits(s) {
		year, _ := strconv.Atoi(s[:4])
		month, _ := strconv.Atoi(s[4:])
		if month >= 1 && month <= 12 {
			return fmt.Sprintf("%04d-%02d-01", year, month), nil
		}
	}

	// Standard layouts, most specific first.
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}

	return "", fmt.Errorf("unrecognized period %q", s)
}

// PeriodTime parses a period and returns it as a time.Time.
func PeriodTime(s string) (time.Time, error) {
	iso, err := ParsePeriod(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse("2006-01-02", iso)
}

// FrequencyOfPeriod infers the reporting frequency from a raw period string.
// Returns an empty string when the form is ambiguous.
func FrequencyOfPeriod(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.ContainsAny(s, "Qq") && len(s) >= 6:
		return FreqQuarterly
	case strings.Contains(s, "-M") || (len(s) == 6 && allDigits(s)) || isYearMonth(s):
		return FreqMonthly
	case len(s) == 4 && allDigits(s):
		return FreqAnnual
	case len(s) == 10 && strings.Count(s, "-") == 2:
		return FreqDaily
	default:
		return ""
	}
}

// NormalizeFrequency maps single-letter provider codes and full words to the
// canonical frequency names: "M"/"monthly" → monthly, "Q" → quarterly, etc.
func NormalizeFrequency(f string) string {
	switch strings.ToUpper(strings.TrimSpace(f)) {
	case "D", "DAILY":
		return FreqDaily
	case "W", "WEEKLY":
		return FreqWeekly
	case "M", "MONTHLY":
		return FreqMonthly
	case "Q", "QUARTERLY":
		return FreqQuarterly
	case "S", "H", "SEMIANNUAL", "SEMI-ANNUAL", "BIANNUAL":
		return FreqSemiannual
	case "A", "Y", "ANNUAL", "YEARLY":
		return FreqAnnual
	default:
		return strings.ToLower(strings.TrimSpace(f))
	}
}

// FrequencyCode converts a canonical frequency name to the single-letter code
// most providers use in request keys.
func FrequencyCode(f string) string {
	switch NormalizeFrequency(f) {
	case FreqDaily:
		return "D"
	case FreqWeekly:
		return "W"
	case FreqMonthly:
		return "M"
	case FreqQuarterly:
		return "Q"
	case FreqSemiannual:
		return "S"
	case FreqAnnual:
		return "A"
	default:
		return ""
	}
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isYearMonth(s string) bool {
	if len(s) != 7 || s[4] != '-' {
		return false
	}
	return allDigits(s[:4]) && allDigits(s[5:])
}
