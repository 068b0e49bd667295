package main

import (
	"testing"
	"time"
)

func resetEventFlags() {
	eventsType = ""
	eventsTags = nil
	eventsWriter = ""
	eventsSince = ""
	eventsUntil = ""
	eventsAfter = ""
	eventsLimit = 0
}

func TestBuildEventFilterTags(t *testing.T) {
	resetEventFlags()
	eventsType = "RETRY"
	eventsTags = []string{"session_id=abc", "resource_id=PR-42"}
	eventsLimit = 10

	filter, err := buildEventFilter()
	if err != nil {
		t.Fatalf("buildEventFilter: %v", err)
	}
	if filter.TypePrefix != "RETRY" {
		t.Errorf("TypePrefix = %q, want RETRY", filter.TypePrefix)
	}
	if filter.Tags["session_id"] != "abc" || filter.Tags["resource_id"] != "PR-42" {
		t.Errorf("unexpected tags: %v", filter.Tags)
	}
	if filter.Limit != 10 {
		t.Errorf("Limit = %d, want 10", filter.Limit)
	}
}

func TestBuildEventFilterBadTag(t *testing.T) {
	resetEventFlags()
	eventsTags = []string{"no-equals-sign"}

	if _, err := buildEventFilter(); err == nil {
		t.Fatal("expected error for malformed --tag")
	}
}

func TestBuildEventFilterTimes(t *testing.T) {
	resetEventFlags()
	eventsSince = "-2h"
	eventsUntil = "2026-08-26"

	filter, err := buildEventFilter()
	if err != nil {
		t.Fatalf("buildEventFilter: %v", err)
	}
	if filter.Since == nil || time.Until(*filter.Since) > 0 {
		t.Errorf("Since should be ~2h in the past, got %v", filter.Since)
	}
	if filter.Until == nil || filter.Until.Year() != 2026 || filter.Until.Month() != time.August {
		t.Errorf("Until should be 2026-08-26, got %v", filter.Until)
	}
}

func TestBuildEventFilterCursor(t *testing.T) {
	resetEventFlags()
	eventsAfter = "1700000000000:ev-9"

	filter, err := buildEventFilter()
	if err != nil {
		t.Fatalf("buildEventFilter: %v", err)
	}
	if filter.After == nil || filter.After.ID != "ev-9" {
		t.Errorf("unexpected cursor: %+v", filter.After)
	}

	eventsAfter = "not-a-cursor"
	if _, err := buildEventFilter(); err == nil {
		t.Fatal("expected error for malformed --after")
	}
}

func TestFormatTagsStableOrder(t *testing.T) {
	got := formatTags(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := "a=1 b=2 c=3"
	if got != want {
		t.Errorf("formatTags = %q, want %q", got, want)
	}
}
