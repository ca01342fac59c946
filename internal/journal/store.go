package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; stale databases are rejected rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Outcomes recorded for a trigger attempt.
const (
	OutcomeDispatched = "dispatched"
	OutcomeFailed     = "failed"
)

// Entry is one recorded trigger attempt. The journal is an operator
// convenience log; the remote status document stays the only source of
// pipeline truth.
type Entry struct {
	ID        int64
	CreatedAt time.Time
	Event     string
	VideoID   string
	Actor     string
	Outcome   string
	Detail    string
}

// Store persists the dispatch journal in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record appends one trigger attempt. A zero CreatedAt is filled with the
// current time.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (created_at, event, video_id, actor, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		createdAt.UTC().Format(time.RFC3339Nano),
		entry.Event, entry.VideoID, entry.Actor, entry.Outcome, entry.Detail)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first. A non-positive limit
// defaults to 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, event, video_id, actor, outcome, detail
		 FROM dispatches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForVideo returns every recorded attempt for one video, most recent first.
func (s *Store) ForVideo(ctx context.Context, videoID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, event, video_id, actor, outcome, detail
		 FROM dispatches WHERE video_id = ? ORDER BY id DESC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list dispatches for %s: %w", videoID, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Prune deletes entries older than the retention window and returns the
// number removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, "DELETE FROM dispatches WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	return removed, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &createdAt, &entry.Event, &entry.VideoID,
			&entry.Actor, &entry.Outcome, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan dispatch row: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			entry.CreatedAt = parsed
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch rows: %w", err)
	}
	return entries, nil
}
