package timeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"jobtrail/internal/domain"
)

// Store is the append-only timeline log. Events are written inside the
// caller's transaction so a status change and its audit record commit
// together. There is no update or delete; compensating facts get appended
// as new events.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

type Metadata map[string]any

// Append writes one event within tx.
func (s Store) Append(ctx context.Context, tx *sql.Tx, applicationID, eventType, actorID string, metadata Metadata) error {
	if s.Now == nil {
		s.Now = time.Now
	}
	ts := s.Now().UTC().Format(time.RFC3339)
	if metadata == nil {
		metadata = Metadata{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO timeline_events(application_id,event_type,actor_id,metadata_json,created_at) VALUES (?,?,?,?,?)`,
		applicationID, eventType, actorID, string(data), ts)
	return err
}

// ListByApplication returns all events for an application oldest first.
// The autoincrement id breaks created_at ties, keeping the order total.
func (s Store) ListByApplication(ctx context.Context, applicationID string) ([]domain.TimelineEvent, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,application_id,event_type,actor_id,metadata_json,created_at FROM timeline_events WHERE application_id=? ORDER BY id ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.EventType, &e.ActorID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// StatusChanges returns the status_changed subsequence oldest first.
func (s Store) StatusChanges(ctx context.Context, applicationID string) ([]domain.StatusChange, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT metadata_json,created_at FROM timeline_events WHERE application_id=? AND event_type=? ORDER BY id ASC`, applicationID, domain.EventStatusChanged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusChange
	for rows.Next() {
		var metadata, createdAt string
		if err := rows.Scan(&metadata, &createdAt); err != nil {
			return nil, err
		}
		var c domain.StatusChange
		if err := json.Unmarshal([]byte(metadata), &c); err != nil {
			return nil, fmt.Errorf("decode status change metadata: %w", err)
		}
		c.CreatedAt = createdAt
		res = append(res, c)
	}
	return res, rows.Err()
}

// CountSince counts events for a user's applications created at or after
// the given timestamp. Feeds the recent-activity statistic.
func (s Store) CountSince(ctx context.Context, userID, since string) (int, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM timeline_events e
JOIN applications a ON a.id=e.application_id
WHERE a.user_id=? AND e.created_at>=?`, userID, since)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
