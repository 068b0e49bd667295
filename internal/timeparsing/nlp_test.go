package timeparsing

import (
	"testing"
	"time"
)

// Reference time for the NLP tests: Wednesday, August 26, 2026, 10:00 local.
var nlpNow = time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local)

func TestParseNaturalLanguage(t *testing.T) {
	tests := []struct {
		input    string
		wantDate string // 2006-01-02
		wantHour int    // -1 means don't check
		wantErr  bool
	}{
		{input: "tomorrow", wantDate: "2026-08-27", wantHour: -1},
		{input: "yesterday", wantDate: "2026-08-25", wantHour: -1},
		{input: "next monday", wantDate: "2026-08-31", wantHour: -1},
		{input: "next friday", wantDate: "2026-08-28", wantHour: -1},
		{input: "tomorrow at 9am", wantDate: "2026-08-27", wantHour: 9},
		{input: "next monday at 2pm", wantDate: "2026-08-31", wantHour: 14},
		{input: "in 3 days", wantDate: "2026-08-29", wantHour: -1},
		{input: "3 days ago", wantDate: "2026-08-23", wantHour: -1},

		{input: "not a date at all", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.input, nlpNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNaturalLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if d := got.Format("2006-01-02"); d != tt.wantDate {
				t.Errorf("ParseNaturalLanguage(%q) date = %s, want %s", tt.input, d, tt.wantDate)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseNaturalLanguage(%q) hour = %d, want %d", tt.input, got.Hour(), tt.wantHour)
			}
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"compact future", "+6h", nlpNow.Add(6 * time.Hour)},
		{"compact past", "-1d", nlpNow.AddDate(0, 0, -1)},
		{"date-only", "2026-02-01", time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local)},
		{"RFC3339", "2026-03-15T14:30:00Z", time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, nlpNow)
			if err != nil {
				t.Fatalf("ParseRelativeTime(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseRelativeTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseRelativeTime("not-a-date", nlpNow); err == nil {
		t.Error("expected error for unrecognized expression")
	}
}

// The layers must apply in order: a compact duration or an exact date must
// never reach the NLP parser, which would happily extract a fragment.
func TestParseRelativeTimeLayerPrecedence(t *testing.T) {
	got, err := ParseRelativeTime("+1d", nlpNow)
	if err != nil {
		t.Fatalf("ParseRelativeTime(+1d) failed: %v", err)
	}
	if want := nlpNow.AddDate(0, 0, 1); !got.Equal(want) {
		t.Errorf("+1d = %v, want %v (compact layer must win over NLP)", got, want)
	}

	got, err = ParseRelativeTime("2026-01-20", nlpNow)
	if err != nil {
		t.Fatalf("ParseRelativeTime(2026-01-20) failed: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.January || got.Day() != 20 {
		t.Errorf("2026-01-20 = %v, want Jan 20, 2026 (date layer must win over NLP)", got)
	}

	// NLP still catches what the absolute layers reject.
	got, err = ParseRelativeTime("tomorrow", nlpNow)
	if err != nil {
		t.Fatalf("ParseRelativeTime(tomorrow) failed: %v", err)
	}
	if got.Day() != 27 {
		t.Errorf("tomorrow = %v, want Aug 27", got)
	}
}
