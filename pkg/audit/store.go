package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists audit events in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts an audit event
func (s *Store) Record(ctx context.Context, event *Event) error {
	detail := []byte("{}")
	if event.Detail != nil {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, detail, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		event.ActorID, event.Action, event.ResourceType,
		event.ResourceID, detail, event.IPAddress,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// List returns audit events matching the filter, newest first
func (s *Store) List(ctx context.Context, filter Filter) ([]Event, error) {
	query := `SELECT id, actor_id, action, resource_type, resource_id, detail, ip_address, created_at FROM audit_logs`
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ActorID != nil {
		add("actor_id = $%d", *filter.ActorID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("created_at < $%d", *filter.Until)
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var detail []byte
		if err := rows.Scan(&event.ID, &event.ActorID, &event.Action, &event.ResourceType,
			&event.ResourceID, &detail, &event.IPAddress, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				// A malformed detail blob should not hide the event.
				event.Detail = map[string]interface{}{"raw": string(detail)}
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DeleteOlderThan removes events past the retention window and reports
// how many were removed
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit logs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned audit logs: %w", err)
	}
	return removed, nil
}
