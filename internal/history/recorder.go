package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Entry is one recorded playback event.
type Entry struct {
	ID        int64
	Timestamp time.Time
	Event     string
	Item      string
	Position  float64
}

// Recorder writes playback events to the history database. A recorder
// that hits a database error disables itself rather than disturb playback.
type Recorder struct {
	db       *sql.DB
	disabled bool
}

// NewRecorder creates a recorder on an open history database.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record stores one event. item may be empty when nothing is audible.
func (r *Recorder) Record(event, item string, position float64) {
	if r.disabled {
		return
	}

	_, err := r.db.Exec(
		"INSERT INTO playback_events (timestamp, event, item, position) VALUES (?, ?, ?, ?)",
		time.Now().UnixMilli(), event, item, position,
	)
	if err != nil {
		slog.Error("failed to record playback event, disabling history", "error", err)
		r.disabled = true
		return
	}

	slog.Debug("playback event recorded", "event", event, "item", item, "position", position)
}

// Recent returns up to limit entries, newest first.
func (r *Recorder) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(
		"SELECT id, timestamp, event, item, position FROM playback_events ORDER BY timestamp DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query playback events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var item sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Event, &item, &e.Position); err != nil {
			return nil, fmt.Errorf("failed to scan playback event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Item = item.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playback events: %w", err)
	}

	return entries, nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
