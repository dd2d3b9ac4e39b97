package store

import (
	"database/sql"
	"time"
)

// Event is one journaled status change.
type Event struct {
	ID        int64
	SessionID string
	Status    string
	Message   string
	CreatedAt time.Time
}

// EventRepository journals status changes.
type EventRepository struct {
	db *sql.DB
}

// Events returns the status event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Append inserts e and sets its ID. A zero CreatedAt is set to now.
func (r *EventRepository) Append(e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO status_events (session_id, status, message, created_at)
		 VALUES (?, ?, ?, ?)`,
		e.SessionID, e.Status, e.Message, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// Recent returns up to n events, newest first.
func (r *EventRepository) Recent(n int) ([]*Event, error) {
	return r.query(
		`SELECT id, session_id, status, message, created_at
		 FROM status_events ORDER BY id DESC LIMIT ?`,
		n,
	)
}

// BySession returns the events of one camera session in insertion order.
func (r *EventRepository) BySession(sessionID string) ([]*Event, error) {
	return r.query(
		`SELECT id, session_id, status, message, created_at
		 FROM status_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
}

// Prune deletes all but the newest keep events and returns how many were
// removed.
func (r *EventRepository) Prune(keep int) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM status_events WHERE id NOT IN (
			SELECT id FROM status_events ORDER BY id DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *EventRepository) query(q string, args ...any) ([]*Event, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
