// Package datetime normalizes user-facing date strings into the ISO form
// embedded in generated SQL filters.
package datetime

import (
	"fmt"
	"time"
)

// Accepted input layouts, tried in order. Day-first forms take precedence
// over month-first for ambiguous dates, matching the API's documented
// behavior.
var layouts = []string{
	"02/01/2006",
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	"01/02/2006",
	"02-01-2006",
}

// NormalizeDate parses s against the accepted layouts and returns the date
// as YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	for _, layout := range layouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unsupported date format: %q", s)
}
