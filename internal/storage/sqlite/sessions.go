package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/types"
)

// CreateSession records a new monitoring session and claims the per-resource
// arena slot. Returns ErrSessionActive when the resource is already claimed.
func (s *Store) CreateSession(ctx context.Context, session *types.MonitoringSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session create: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO active_sessions (resource_id, session_id) VALUES (?, ?)
	`, session.ResourceID, session.ID)
	if err != nil {
		return fmt.Errorf("claiming resource %s: %w", session.ResourceID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("claiming resource %s: %w", session.ResourceID, err)
	} else if n == 0 {
		return storage.ErrSessionActive
	}

	lastKnown, err := marshalSnapshot(session.LastKnown)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, resource_id, status, started_at, last_checked_at, ended_at, last_known)
		VALUES (?, ?, ?, ?, ?, NULL, ?)
	`, session.ID, session.ResourceID, string(session.Status),
		session.StartedAt.UnixMilli(), nullMilli(session.LastCheckedAt), lastKnown); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session create: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.MonitoringSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, resource_id, status, started_at, last_checked_at, ended_at, last_known
		FROM sessions WHERE id = ?
	`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return session, nil
}

// GetActiveSession returns the active session holding the resource's arena
// slot, or ErrNotFound when the resource is unclaimed.
func (s *Store) GetActiveSession(ctx context.Context, resourceID string) (*types.MonitoringSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.resource_id, s.status, s.started_at, s.last_checked_at, s.ended_at, s.last_known
		FROM sessions s
		JOIN active_sessions a ON a.session_id = s.id
		WHERE a.resource_id = ?
	`, resourceID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting active session for %s: %w", resourceID, err)
	}
	return session, nil
}

// UpdateSessionSnapshot stores the latest poll time and resource snapshot.
// Only active sessions accept updates.
func (s *Store) UpdateSessionSnapshot(ctx context.Context, id string, checkedAt time.Time, snapshot *types.ResourceStatus) error {
	lastKnown, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_checked_at = ?, last_known = ?
		WHERE id = ? AND status = ?
	`, checkedAt.UnixMilli(), lastKnown, id, string(types.SessionActive))
	if err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	} else if n == 0 {
		return s.sessionWriteMiss(ctx, id)
	}
	return nil
}

// CloseSession sets a terminal status and releases the arena slot. Closing a
// session twice returns ErrSessionClosed.
func (s *Store) CloseSession(ctx context.Context, id string, status types.SessionStatus, endedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("close requires a terminal status, got %q", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session close: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, string(status), endedAt.UnixMilli(), id, string(types.SessionActive))
	if err != nil {
		return fmt.Errorf("closing session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("closing session %s: %w", id, err)
	} else if n == 0 {
		return s.sessionWriteMiss(ctx, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM active_sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("releasing resource for session %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session close: %w", err)
	}
	return nil
}

// ListSessions returns sessions matching the filter, most recent first.
func (s *Store) ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.MonitoringSession, error) {
	query := `SELECT id, resource_id, status, started_at, last_checked_at, ended_at, last_known FROM sessions`
	var conds []string
	var args []any
	if filter.ResourceID != "" {
		conds = append(conds, `resource_id = ?`)
		args = append(args, filter.ResourceID)
	}
	if filter.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.MonitoringSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// sessionWriteMiss distinguishes an unknown session from a closed one after
// a guarded UPDATE touched zero rows.
func (s *Store) sessionWriteMiss(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session %s: %w", id, err)
	}
	return storage.ErrSessionClosed
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*types.MonitoringSession, error) {
	var (
		session   types.MonitoringSession
		status    string
		startedAt int64
		checkedAt sql.NullInt64
		endedAt   sql.NullInt64
		lastKnown sql.NullString
	)
	if err := row.Scan(&session.ID, &session.ResourceID, &status, &startedAt, &checkedAt, &endedAt, &lastKnown); err != nil {
		return nil, err
	}
	session.Status = types.SessionStatus(status)
	session.StartedAt = time.UnixMilli(startedAt).UTC()
	if checkedAt.Valid {
		session.LastCheckedAt = time.UnixMilli(checkedAt.Int64).UTC()
	}
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64).UTC()
		session.EndedAt = &t
	}
	if lastKnown.Valid && lastKnown.String != "" {
		var snap types.ResourceStatus
		if err := json.Unmarshal([]byte(lastKnown.String), &snap); err != nil {
			return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
		}
		session.LastKnown = &snap
	}
	return &session, nil
}

func marshalSnapshot(snapshot *types.ResourceStatus) (any, error) {
	if snapshot == nil {
		return nil, nil
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return string(b), nil
}

func nullMilli(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
