package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// DBLogger writes audit events to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger. The table comes from storage migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts an event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO audit_events (
			occurred_at, event_type, status,
			actor_id, school_id, club_id,
			resource_type, resource_id, request_id,
			message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.OccurredAt,
		string(event.EventType),
		string(event.Status),
		storage.NullInt64(event.ActorID),
		storage.NullInt64(event.SchoolID),
		storage.NullInt64(event.ClubID),
		string(event.ResourceType),
		event.ResourceID,
		event.RequestID,
		event.Message,
		metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	var conditions []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.ActorID != nil {
		add("actor_id = $%d", *filter.ActorID)
	}
	if filter.ClubID != nil {
		add("club_id = $%d", *filter.ClubID)
	}
	if filter.Since != nil {
		add("occurred_at >= $%d", *filter.Since)
	}

	query := `SELECT id, occurred_at, event_type, status, actor_id, school_id, club_id,
		resource_type, resource_id, request_id, message, metadata FROM audit_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var eventType, status, resourceType string
		var actorID, schoolID, clubID sql.NullInt64
		var metadata sql.NullString

		if err := rows.Scan(&e.ID, &e.OccurredAt, &eventType, &status, &actorID, &schoolID, &clubID,
			&resourceType, &e.ResourceID, &e.RequestID, &e.Message, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		e.EventType = EventType(eventType)
		e.Status = EventStatus(status)
		e.ResourceType = ResourceType(resourceType)
		e.ActorID = storage.Int64Ptr(actorID)
		e.SchoolID = storage.Int64Ptr(schoolID)
		e.ClubID = storage.Int64Ptr(clubID)
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close is a no-op; the database handle is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}
