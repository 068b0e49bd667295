package timeparsing

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// nlpParser is the shared natural-language parser. when parsers are
// stateless after construction, so one instance serves all callers.
var nlpParser = newNLPParser()

func newNLPParser() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}

// ParseNaturalLanguage parses English expressions like "tomorrow",
// "next monday at 2pm", "in 3 days", or "3 days ago" relative to now.
//
// Returns an error if the input contains no recognizable time expression.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	result, err := nlpParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("no time expression found in %q", s)
	}
	return result.Time, nil
}

// ParseRelativeTime parses a time expression trying each layer in order:
//
//  1. compact duration (+6h, -1d, +2w)
//  2. date-only (2006-01-02)
//  3. RFC3339 (2006-01-02T15:04:05Z07:00)
//  4. natural language (tomorrow, next monday at 2pm, 3 days ago)
//
// Compact durations and natural language are evaluated relative to now.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}

	// Absolute forms before NLP: a date like "2025-01-20" must parse
	// exactly, not as whatever fragment the NLP rules pick out of it.
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time expression: %q", s)
}
