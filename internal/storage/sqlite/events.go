package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tammahq/tamma/internal/types"
)

// AppendEvent inserts one event and advances the writer's timestamp
// high-water mark in the same transaction. A timestamp at or behind the mark
// is shifted one millisecond past it and written back to the event.
func (s *Store) AppendEvent(ctx context.Context, event *types.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	tagsJSON, err := json.Marshal(tagsOrEmpty(event.Tags))
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}
	metaJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	ts := event.Timestamp.UnixMilli()
	var last int64
	err = tx.QueryRowContext(ctx, `SELECT last_ts FROM event_writers WHERE writer = ?`, event.Writer).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
		// first event for this writer
	case err != nil:
		return fmt.Errorf("reading writer mark: %w", err)
	case ts <= last:
		ts = last + 1
	}

	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, type, ts, writer, tags, metadata, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Type, ts, event.Writer, string(tagsJSON), string(metaJSON), payload); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	for k, v := range event.Tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_tags (event_id, tag, value) VALUES (?, ?, ?)
		`, event.ID, k, v); err != nil {
			return fmt.Errorf("indexing tag %s: %w", k, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_writers (writer, last_ts) VALUES (?, ?)
		ON CONFLICT(writer) DO UPDATE SET last_ts = excluded.last_ts
	`, event.Writer, ts); err != nil {
		return fmt.Errorf("advancing writer mark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	event.Timestamp = time.UnixMilli(ts).UTC()
	return nil
}

// QueryEvents returns events matching the filter, ascending by (ts, id).
// Tag filters join through the event_tags index.
func (s *Store) QueryEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT e.id, e.type, e.ts, e.writer, e.tags, e.metadata, e.payload FROM events e`)

	var args []any
	i := 0
	for k, v := range filter.Tags {
		fmt.Fprintf(&sb, ` JOIN event_tags t%d ON t%d.event_id = e.id AND t%d.tag = ? AND t%d.value = ?`, i, i, i, i)
		args = append(args, k, v)
		i++
	}

	var conds []string
	if filter.TypePrefix != "" {
		conds = append(conds, `(e.type = ? OR e.type LIKE ? ESCAPE '\')`)
		args = append(args, filter.TypePrefix, escapeLike(filter.TypePrefix)+".%")
	}
	if filter.Writer != "" {
		conds = append(conds, `e.writer = ?`)
		args = append(args, filter.Writer)
	}
	if filter.Since != nil {
		conds = append(conds, `e.ts >= ?`)
		args = append(args, filter.Since.UnixMilli())
	}
	if filter.Until != nil {
		conds = append(conds, `e.ts <= ?`)
		args = append(args, filter.Until.UnixMilli())
	}
	if filter.After != nil {
		conds = append(conds, `(e.ts > ? OR (e.ts = ? AND e.id > ?))`)
		ms := filter.After.Timestamp.UnixMilli()
		args = append(args, ms, ms, filter.After.ID)
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY e.ts, e.id")
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*types.Event, error) {
	var (
		e        types.Event
		ts       int64
		tagsJSON string
		metaJSON string
		payload  sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.Type, &ts, &e.Writer, &tagsJSON, &metaJSON, &payload); err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return nil, fmt.Errorf("unmarshaling tags for %s: %w", e.ID, err)
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata for %s: %w", e.ID, err)
	}
	if payload.Valid && payload.String != "" {
		e.Payload = json.RawMessage(payload.String)
	}
	return &e, nil
}

func tagsOrEmpty(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

// escapeLike escapes LIKE metacharacters so a type prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
