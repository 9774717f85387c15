package canon

import (
	"fmt"
	"strings"
	"time"
)

// userDateLayouts are the formats accepted from the interactive prompt.
var userDateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

// InvalidDateError reports a user-supplied date that matched none of the
// accepted formats.
type InvalidDateError struct {
	Input string
}

func (e *InvalidDateError) Error() string {
	if strings.TrimSpace(e.Input) == "" {
		return "empty date: expected YYYY-MM-DD or DD/MM/YYYY"
	}
	return fmt.Sprintf("invalid date %q: expected YYYY-MM-DD or DD/MM/YYYY", e.Input)
}

// ParseUserDate parses a consultation date typed by the operator.
func ParseUserDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, &InvalidDateError{Input: s}
	}
	for _, layout := range userDateLayouts {
		if d, err := time.Parse(layout, trimmed); err == nil {
			return d, nil
		}
	}
	return time.Time{}, &InvalidDateError{Input: s}
}
