package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = `id, source, caption, status, output_path, frame_count, line_count,
    error_kind, error_message, created_at, updated_at, finished_at`

// Record is one caption job as persisted in history.
type Record struct {
	ID           string
	Source       string
	Caption      string
	Status       string
	OutputPath   string
	FrameCount   int
	LineCount    int
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// Duration reports how long the job ran, or ran so far when unfinished.
func (r Record) Duration() time.Duration {
	end := r.UpdatedAt
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	if end.Before(r.CreatedAt) {
		return 0
	}
	return end.Sub(r.CreatedAt)
}

// Store manages job history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts rec or updates the existing row with the same ID. CreatedAt
// is kept from the first insert.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("record id required")
	}
	now := time.Now().UTC()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+recordColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            source = excluded.source,
            caption = excluded.caption,
            status = excluded.status,
            output_path = excluded.output_path,
            frame_count = excluded.frame_count,
            line_count = excluded.line_count,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at,
            finished_at = excluded.finished_at`,
		rec.ID,
		rec.Source,
		rec.Caption,
		rec.Status,
		nullableString(rec.OutputPath),
		rec.FrameCount,
		rec.LineCount,
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		formatTime(created),
		formatTime(updated),
		nullableTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", rec.ID, err)
	}
	return nil
}

// Get fetches a job by ID. It returns nil without error when no row matches.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// List returns the most recent jobs first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM jobs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return records, nil
}

// Prune deletes finished jobs older than cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE finished_at IS NOT NULL AND created_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec          Record
		outputPath   sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Source,
		&rec.Caption,
		&rec.Status,
		&outputPath,
		&rec.FrameCount,
		&rec.LineCount,
		&errorKind,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	rec.OutputPath = outputPath.String
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMessage.String
	rec.CreatedAt = parseTime(createdRaw)
	rec.UpdatedAt = parseTime(updatedRaw)
	if finishedRaw.Valid && finishedRaw.String != "" {
		finished := parseTime(finishedRaw.String)
		rec.FinishedAt = &finished
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
