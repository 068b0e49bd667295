// Package timeparsing provides layered time parsing for relative date/time
// expressions, used by the audit-query flags (--since, --until).
//
// Parsing is layered:
//  1. Compact duration (+6h, -1d, +2w)
//  2. Absolute timestamp (date-only, RFC3339)
//  3. Natural language (tomorrow, next monday at 2pm)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactDurationRe matches the compact duration shorthand accepted by the
// query flags: an optional sign, an amount, and a single unit letter.
// Units: h=hours, d=days, w=weeks, m=months, y=years.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration resolves a compact duration like "-2h" or "+1d"
// against now. A missing sign means future ("6h" == "+6h"). Day and larger
// units go through AddDate so calendar arithmetic (month lengths, leap
// years, DST) follows the standard library's normalization.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactDurationRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[2])
	}
	if m[1] == "-" {
		n = -n
	}

	switch m[3] {
	case "h":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, n), nil
	case "w":
		return now.AddDate(0, 0, 7*n), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	case "y":
		return now.AddDate(n, 0, 0), nil
	}
	// Unreachable: the regexp admits no other unit.
	return now, nil
}

// IsCompactDuration reports whether s matches the compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}
