// Package history is a local SQLite ledger of past and in-progress
// recordings, so an invocation can report what it previously captured
// for a channel without re-deriving it from the filesystem.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo
)

// Outcome is how a recording ended.
type Outcome string

const (
	OutcomeRunning      Outcome = "running"
	OutcomeCompleted    Outcome = "completed"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeNotOnline    Outcome = "not_online"
	OutcomeInterrupted  Outcome = "interrupted"
	OutcomeFailed       Outcome = "failed"
)

// Record is one row of the recording ledger.
type Record struct {
	ID          int64
	ChannelID   string
	ChannelName string
	Title       string
	StreamPath  string
	MuxedPath   string
	StartedAt   time.Time
	EndedAt     sql.NullTime
	Outcome     Outcome
}

// Store wraps the SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger at path and applies
// its schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		channel_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		stream_path TEXT NOT NULL DEFAULT '',
		muxed_path TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at TEXT,
		outcome TEXT NOT NULL DEFAULT 'running'
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_channel ON recordings(channel_id, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Begin inserts a new "running" row and returns its id.
func (s *Store) Begin(ctx context.Context, channelID, channelName, title, streamPath string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (channel_id, channel_name, title, stream_path, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?)`,
		channelID, channelName, title, streamPath, time.Now().UTC().Format(time.RFC3339), OutcomeRunning)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Finish records the terminal outcome and (optionally) the muxed
// output path for a recording started with Begin.
func (s *Store) Finish(ctx context.Context, id int64, outcome Outcome, muxedPath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recordings SET outcome = ?, muxed_path = ?, ended_at = ?
		WHERE id = ?`,
		outcome, muxedPath, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// Recent returns the most recent limit recordings for a channel,
// newest first.
func (s *Store) Recent(ctx context.Context, channelID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, channel_name, title, stream_path, muxed_path, started_at, ended_at, outcome
		FROM recordings
		WHERE channel_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r         Record
			startedAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ChannelID, &r.ChannelName, &r.Title, &r.StreamPath, &r.MuxedPath, &startedAt, &endedAt, &r.Outcome); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if endedAt.Valid {
			if t, err := time.Parse(time.RFC3339, endedAt.String); err == nil {
				r.EndedAt = sql.NullTime{Time: t, Valid: true}
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
