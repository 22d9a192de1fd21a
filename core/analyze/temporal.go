package analyze

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/medgrain/clinctx/model"
)

var (
	// "last 30 days", "past 2 weeks", "last 6 months", "past year"
	relativeSpanRegex = regexp.MustCompile(`(?:last|past)\s+(\d+)?\s*(day|week|month|year)s?`)

	// explicit ISO dates, e.g. "2024-03-15"
	isoDateRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

	// month name + year, e.g. "march 2024"
	monthYearRegex = regexp.MustCompile(`(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// relativeTerms are bare temporal hints without an explicit span
var relativeTerms = []string{"recent", "recently", "latest", "most recent", "newest", "today", "yesterday", "current"}

// extractTemporal recognizes explicit date phrases and relative terms in the
// normalized query. It is total: unmatched input yields a zero TemporalInfo.
func extractTemporal(normalized string, now time.Time) model.TemporalInfo {
	info := model.TemporalInfo{}

	// Explicit span: "last N days/weeks/months/years"
	if m := relativeSpanRegex.FindStringSubmatch(normalized); m != nil {
		count := 1
		if m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil {
				count = n
			}
		}
		days := count
		switch m[2] {
		case "week":
			days = count * 7
		case "month":
			days = count * 30
		case "year":
			days = count * 365
		}
		info.IsTemporal = true
		info.RelativeDays = days
		return info
	}

	// Explicit ISO dates: one date opens a range to now, two dates bound it
	if dates := isoDateRegex.FindAllString(normalized, 2); len(dates) > 0 {
		from, errFrom := time.Parse("2006-01-02", dates[0])
		if errFrom == nil {
			to := now
			if len(dates) > 1 {
				if parsed, err := time.Parse("2006-01-02", dates[1]); err == nil {
					to = parsed
				}
			}
			info.IsTemporal = true
			info.Range = &model.TimeRange{From: from, To: to}
			return info
		}
	}

	// Month name + year covers that month
	if m := monthYearRegex.FindStringSubmatch(normalized); m != nil {
		year, err := strconv.Atoi(m[2])
		if err == nil {
			month := monthsByName[m[1]]
			from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			info.IsTemporal = true
			info.Range = &model.TimeRange{From: from, To: from.AddDate(0, 1, 0).Add(-time.Second)}
			return info
		}
	}

	// Bare relative terms: temporal without a concrete window
	for _, term := range relativeTerms {
		if strings.Contains(normalized, term) {
			info.IsTemporal = true
			return info
		}
	}

	return info
}
