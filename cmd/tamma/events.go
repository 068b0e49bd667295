package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tammahq/tamma/internal/timeparsing"
	"github.com/tammahq/tamma/internal/types"
)

var (
	eventsType   string
	eventsTags   []string
	eventsWriter string
	eventsSince  string
	eventsUntil  string
	eventsAfter  string
	eventsLimit  int
	eventsFollow bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the audit log",
	Long: `Queries the append-only audit log. Events are returned oldest first.

Type filters match dotted prefixes: --type RETRY matches RETRY.ATTEMPT.FAILED
but not RETRYX. Time filters accept compact durations ("-2h", "-1d"), dates
("2026-08-26"), RFC3339 timestamps, and natural language ("yesterday 3pm").

Resume a previous query from its last cursor with --after unixmilli:id, or
stream new events as they are appended with --follow.`,
	Example: `  tamma events --tag session_id=abc123
  tamma events --type RETRY --since -2h
  tamma events --tag resource_id=PR-42 --follow --json`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Dotted event-type prefix (e.g. SESSION, RETRY.ATTEMPT)")
	eventsCmd.Flags().StringArrayVar(&eventsTags, "tag", nil, "Tag equality filter key=value (repeatable, all must match)")
	eventsCmd.Flags().StringVar(&eventsWriter, "writer", "", "Writer identity filter")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Only events at or after this time")
	eventsCmd.Flags().StringVar(&eventsUntil, "until", "", "Only events before this time")
	eventsCmd.Flags().StringVar(&eventsAfter, "after", "", "Resume after cursor (unixmilli:id)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "Maximum events to return (0 = no limit)")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Stream matching events as they are appended")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	filter, err := buildEventFilter()
	if err != nil {
		return err
	}

	if eventsFollow {
		return followEvents(filter)
	}

	events, err := log.Query(rootCtx, filter)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	for _, e := range events {
		printEvent(e)
	}
	if !jsonOutput && len(events) > 0 {
		last := events[len(events)-1]
		cursor := types.Cursor{Timestamp: last.Timestamp, ID: last.ID}
		fmt.Fprintf(os.Stderr, "\n%d events; resume with --after %s\n", len(events), cursor)
	}
	return nil
}

func buildEventFilter() (types.EventFilter, error) {
	now := time.Now()
	filter := types.EventFilter{
		TypePrefix: eventsType,
		Writer:     eventsWriter,
		Limit:      eventsLimit,
	}

	for _, t := range eventsTags {
		key, value, ok := strings.Cut(t, "=")
		if !ok || key == "" {
			return filter, fmt.Errorf("invalid --tag %q: want key=value", t)
		}
		if filter.Tags == nil {
			filter.Tags = make(map[string]string)
		}
		filter.Tags[key] = value
	}

	if eventsSince != "" {
		ts, err := timeparsing.ParseRelativeTime(eventsSince, now)
		if err != nil {
			return filter, fmt.Errorf("invalid --since: %w", err)
		}
		filter.Since = &ts
	}
	if eventsUntil != "" {
		ts, err := timeparsing.ParseRelativeTime(eventsUntil, now)
		if err != nil {
			return filter, fmt.Errorf("invalid --until: %w", err)
		}
		filter.Until = &ts
	}
	if eventsAfter != "" {
		cursor, err := types.ParseCursor(eventsAfter)
		if err != nil {
			return filter, err
		}
		filter.After = &cursor
	}
	return filter, nil
}

// followEvents streams matching events until interrupted. The tail only sees
// events appended after subscription, so a catch-up query runs first.
func followEvents(filter types.EventFilter) error {
	events, cancel := log.Tail(rootCtx, filter)
	defer cancel()

	backlog, err := log.Query(rootCtx, filter)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	seen := make(map[string]bool, len(backlog))
	for _, e := range backlog {
		printEvent(e)
		seen[e.ID] = true
	}

	for {
		select {
		case <-rootCtx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if seen[e.ID] {
				continue
			}
			printEvent(e)
		}
	}
}

func printEvent(e *types.Event) {
	if jsonOutput {
		printJSON(e)
		return
	}
	line := fmt.Sprintf("%s  %-28s  %s", e.Timestamp.Format(time.RFC3339), e.Type, e.Writer)
	if len(e.Tags) > 0 {
		line += "  " + formatTags(e.Tags)
	}
	fmt.Println(line)
	if verboseFlag && len(e.Payload) > 0 {
		fmt.Printf("    %s\n", e.Payload)
	}
}

func formatTags(tags map[string]string) string {
	parts := make([]string, 0, len(tags))
	for k, v := range tags {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts) // stable order for scripted output
	return strings.Join(parts, " ")
}

// printJSON writes v as a single JSON line to stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
	}
}
