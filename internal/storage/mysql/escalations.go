package mysql

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

// CreateEscalation persists a new escalation.
func (s *Store) CreateEscalation(ctx context.Context, esc *types.Escalation) error {
	var history any
	if len(esc.RetryHistory) > 0 {
		b, err := json.Marshal(esc.RetryHistory)
		if err != nil {
			return fmt.Errorf("marshaling retry history: %w", err)
		}
		history = string(b)
	}

	_, err := s.execContext(ctx, `
		INSERT INTO escalations (id, type, severity, resource_id, session_id, operation_id, reason, retry_history, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, esc.ID, string(esc.Type), string(esc.Severity), esc.ResourceID, esc.SessionID,
		esc.OperationID, esc.Reason, history, esc.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting escalation: %w", err)
	}
	return nil
}

// GetEscalation retrieves an escalation by id.
func (s *Store) GetEscalation(ctx context.Context, id string) (*types.Escalation, error) {
	var esc *types.Escalation
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, type, severity, resource_id, session_id, operation_id, reason, retry_history,
			       created_at, resolved_at, resolved_by, resolution_action, resolution_desc, resolution_channel
			FROM escalations WHERE id = ?
		`, id)
		var scanErr error
		esc, scanErr = scanEscalation(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting escalation %s: %w", id, err)
	}
	return esc, nil
}

// ResolveEscalation records the resolution for an open escalation. The
// resolved_at IS NULL guard makes this a one-shot update across all writers
// sharing the server.
func (s *Store) ResolveEscalation(ctx context.Context, id string, res *types.Resolution) error {
	result, err := s.execContext(ctx, `
		UPDATE escalations
		SET resolved_at = ?, resolved_by = ?, resolution_action = ?, resolution_desc = ?, resolution_channel = ?
		WHERE id = ? AND resolved_at IS NULL
	`, res.ResolvedAt.UnixMilli(), res.Actor, string(res.Action), res.Description, res.Channel, id)
	if err != nil {
		return fmt.Errorf("resolving escalation %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving escalation %s: %w", id, err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM escalations WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking escalation %s: %w", id, err)
		}
		return storage.ErrAlreadyResolved
	}
	return nil
}

// ListEscalations returns escalations matching the filter, most recent first.
func (s *Store) ListEscalations(ctx context.Context, filter types.EscalationFilter) ([]*types.Escalation, error) {
	query := `
		SELECT id, type, severity, resource_id, session_id, operation_id, reason, retry_history,
		       created_at, resolved_at, resolved_by, resolution_action, resolution_desc, resolution_channel
		FROM escalations`
	var conds []string
	var args []any
	if filter.ResourceID != "" {
		conds = append(conds, `resource_id = ?`)
		args = append(args, filter.ResourceID)
	}
	if filter.Type != "" {
		conds = append(conds, `type = ?`)
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		conds = append(conds, `severity = ?`)
		args = append(args, string(filter.Severity))
	}
	if filter.Resolved != nil {
		if *filter.Resolved {
			conds = append(conds, `resolved_at IS NOT NULL`)
		} else {
			conds = append(conds, `resolved_at IS NULL`)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing escalations: %w", err)
	}
	defer rows.Close()

	var escalations []*types.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning escalation: %w", err)
		}
		escalations = append(escalations, esc)
	}
	return escalations, rows.Err()
}

func scanEscalation(row scanner) (*types.Escalation, error) {
	var (
		esc        types.Escalation
		escType    string
		severity   string
		reason     sql.NullString
		history    sql.NullString
		createdAt  int64
		resolvedAt sql.NullInt64
		resolvedBy sql.NullString
		action     sql.NullString
		desc       sql.NullString
		channel    sql.NullString
	)
	if err := row.Scan(&esc.ID, &escType, &severity, &esc.ResourceID, &esc.SessionID,
		&esc.OperationID, &reason, &history, &createdAt,
		&resolvedAt, &resolvedBy, &action, &desc, &channel); err != nil {
		return nil, err
	}
	esc.Type = types.EscalationType(escType)
	esc.Severity = types.Severity(severity)
	esc.Reason = reason.String
	esc.CreatedAt = time.UnixMilli(createdAt).UTC()
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &esc.RetryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling retry history: %w", err)
		}
	}
	if resolvedAt.Valid {
		esc.Resolution = &types.Resolution{
			Actor:       resolvedBy.String,
			Action:      types.ResolutionAction(action.String),
			Description: desc.String,
			Channel:     channel.String,
			ResolvedAt:  time.UnixMilli(resolvedAt.Int64).UTC(),
		}
	}
	return &esc, nil
}
