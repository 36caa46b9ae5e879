// ABOUTME: SQLite implementation of the transcript Store using modernc.org/sqlite
// ABOUTME: Creates its schema on open and stores one row per recorded frame

package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "transcript")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("transcript store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transcript_entries (
			entry_id  TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			channel   TEXT NOT NULL,
			direction TEXT NOT NULL,
			kind      TEXT NOT NULL,
			payload   TEXT,

			CHECK (channel IN ('command', 'ui')),
			CHECK (direction IN ('inbound', 'outbound'))
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_timestamp
			ON transcript_entries(timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_transcript_channel
			ON transcript_entries(channel, timestamp DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Append records one entry. A missing ID is filled with a fresh UUID and a
// zero Timestamp with the current time.
func (s *SQLiteStore) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO transcript_entries (entry_id, timestamp, channel, direction, kind, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp.Format(time.RFC3339Nano),
		string(entry.Channel),
		string(entry.Direction),
		entry.Kind,
		string(entry.Payload),
	)
	if err != nil {
		return fmt.Errorf("inserting transcript entry: %w", err)
	}

	s.logger.Debug("recorded frame",
		"entry_id", entry.ID,
		"channel", entry.Channel,
		"direction", entry.Direction,
		"kind", entry.Kind,
	)
	return nil
}

// Recent returns the most recent entries across both channels, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT entry_id, timestamp, channel, direction, kind, payload
		FROM transcript_entries
		ORDER BY timestamp DESC, entry_id DESC
		LIMIT ?
	`
	return s.queryEntries(ctx, query, clampLimit(limit))
}

// RecentByChannel returns the most recent entries for one channel, newest first.
func (s *SQLiteStore) RecentByChannel(ctx context.Context, channel Channel, limit int) ([]*Entry, error) {
	query := `
		SELECT entry_id, timestamp, channel, direction, kind, payload
		FROM transcript_entries
		WHERE channel = ?
		ORDER BY timestamp DESC, entry_id DESC
		LIMIT ?
	`
	return s.queryEntries(ctx, query, string(channel), clampLimit(limit))
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// queryEntries is a helper that executes a query and returns entries
func (s *SQLiteStore) queryEntries(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcript entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var timestampStr string
		var channel, direction string
		var payload sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&timestampStr,
			&channel,
			&direction,
			&entry.Kind,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("scanning transcript row: %w", err)
		}

		entry.Channel = Channel(channel)
		entry.Direction = Direction(direction)
		if payload.Valid && payload.String != "" {
			entry.Payload = []byte(payload.String)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript rows: %w", err)
	}

	return entries, nil
}
