package dateparser

import (
	"fmt"
	"time"
)

// Accepted layouts, tried in order. Order matters: ambiguous strings like
// "01/02/2024" resolve as day/month because the DD/MM layout comes first.
var layouts = []string{
	time.RFC3339,          // ISO with offset
	"02/01/2006",          // DD/MM/YYYY
	"01/02/2006",          // MM/DD/YYYY
	"2006/01/02",          // YYYY/MM/DD
	"02-01-2006",          // DD-MM-YYYY
	"01-02-2006",          // MM-DD-YYYY
	"2006-01-02",          // YYYY-MM-DD
	"2006.01.02",          // YYYY.MM.DD
	"02 Jan 2006",         // DD Mon YYYY
	"2006/01/02 15:04:05", // YYYY/MM/DD HH:mm:ss
	"01/02/2006 15:04:05", // MM/DD/YYYY HH:mm:ss
	"2006-01-02T15:04",    // YYYY-MM-DDTHH:mm
}

// ParseMeasureDate attempts to parse a free-form measure date with multiple formats
func ParseMeasureDate(dateStr string) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse measure date '%s': %w", dateStr, lastErr)
}

// BillingPeriod returns the year and month a measure date falls in. Day and
// time components are not part of the duplicate-detection key.
func BillingPeriod(t time.Time) (year int, month time.Month) {
	return t.Year(), t.Month()
}
