package database

import (
	"context"
	"fmt"
	"time"
)

// PresenceEvent is one row of presence_events.
type PresenceEvent struct {
	ID           int64
	Session      string
	MAC          string
	DeviceID     string
	HostName     string
	Kind         string // "arrived" or "departed"
	Radio        string
	ConsiderHome int
	OccurredAt   time.Time
}

// RadioEvent is one row of radio_events.
type RadioEvent struct {
	ID         int64
	Session    string
	Radio      string
	Attached   bool
	OccurredAt time.Time
}

// Journal appends presence history for one daemon run.
//
// The journal is write-only from the daemon's point of view: presence state
// always starts empty and is rebuilt from the radios, never from here.
type Journal struct {
	db      *DB
	session string
}

// NewJournal creates a journal writing rows tagged with session.
// The schema must already be migrated.
func NewJournal(db *DB, session string) *Journal {
	return &Journal{db: db, session: session}
}

// Session returns the session id stamped on every row.
func (j *Journal) Session() string {
	return j.session
}

// RecordPresence appends a presence transition.
func (j *Journal) RecordPresence(ctx context.Context, ev PresenceEvent) error {
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO presence_events
			(session, mac, dev_id, host_name, kind, radio, consider_home, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.session, ev.MAC, ev.DeviceID, ev.HostName, ev.Kind, ev.Radio, ev.ConsiderHome,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording presence for %s: %w", ev.MAC, err)
	}
	return nil
}

// RecordRadio appends a radio attach or detach.
func (j *Journal) RecordRadio(ctx context.Context, radio string, attached bool) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO radio_events (session, radio, attached, occurred_at)
		VALUES (?, ?, ?, ?)`,
		j.session, radio, attached, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording radio %s: %w", radio, err)
	}
	return nil
}

// RecentPresence returns the newest presence rows across all sessions,
// newest first.
func (j *Journal) RecentPresence(ctx context.Context, limit int) ([]PresenceEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session, mac, dev_id, host_name, kind, radio, consider_home, occurred_at
		FROM presence_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying presence events: %w", err)
	}
	defer rows.Close()

	var events []PresenceEvent
	for rows.Next() {
		var ev PresenceEvent
		var at string
		if err := rows.Scan(&ev.ID, &ev.Session, &ev.MAC, &ev.DeviceID, &ev.HostName,
			&ev.Kind, &ev.Radio, &ev.ConsiderHome, &at); err != nil {
			return nil, fmt.Errorf("scanning presence event: %w", err)
		}
		ev.OccurredAt, _ = time.Parse(time.RFC3339Nano, at) //nolint:errcheck // Format is controlled
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presence events: %w", err)
	}
	return events, nil
}

// RecentRadio returns the newest radio rows, newest first.
func (j *Journal) RecentRadio(ctx context.Context, limit int) ([]RadioEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session, radio, attached, occurred_at
		FROM radio_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying radio events: %w", err)
	}
	defer rows.Close()

	var events []RadioEvent
	for rows.Next() {
		var ev RadioEvent
		var at string
		if err := rows.Scan(&ev.ID, &ev.Session, &ev.Radio, &ev.Attached, &at); err != nil {
			return nil, fmt.Errorf("scanning radio event: %w", err)
		}
		ev.OccurredAt, _ = time.Parse(time.RFC3339Nano, at) //nolint:errcheck // Format is controlled
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating radio events: %w", err)
	}
	return events, nil
}

// Prune deletes presence and radio rows older than cutoff from every session.
//
// Returns:
//   - int64: Rows deleted across both tables
//   - error: If either delete fails; nothing is deleted in that case
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	bound := cutoff.UTC().Format(time.RFC3339Nano)
	var deleted int64
	for _, table := range []string{"presence_events", "radio_events"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE occurred_at < ?", bound) //nolint:gosec // fixed table names
		if err != nil {
			return 0, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("pruning %s: %w", table, err)
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	return deleted, nil
}
