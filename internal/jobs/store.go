package jobs

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

	"tubefront/internal/config"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// Store manages the ledger database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database under the state directory.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("jobs: config required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JobsDBPath())
}

// OpenPath opens the ledger at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
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

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Reserve inserts a pending row for id so callers can poll before the
// download request arrives.
func (s *Store) Reserve(ctx context.Context, id string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("job id required")
	}
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		id, StatusPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("reserve job: %w", err)
	}
	return s.Get(ctx, id)
}

// Save upserts rec. CreatedAt is preserved for existing rows.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errors.New("job record requires an id")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.Status.Terminal() && rec.FinishedAt == nil {
		finished := now
		rec.FinishedAt = &finished
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (
            id, url, format_id, audio_only, mode, directive, title, status,
            error_kind, error_message, bytes, filename, created_at, updated_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            url = excluded.url, format_id = excluded.format_id, audio_only = excluded.audio_only,
            mode = excluded.mode, directive = excluded.directive, title = excluded.title,
            status = excluded.status, error_kind = excluded.error_kind,
            error_message = excluded.error_message, bytes = excluded.bytes,
            filename = excluded.filename, updated_at = excluded.updated_at,
            finished_at = excluded.finished_at`,
		rec.ID,
		nullableString(rec.URL),
		nullableString(rec.FormatID),
		boolToInt(rec.AudioOnly),
		nullableString(rec.Mode),
		nullableString(rec.Directive),
		nullableString(rec.Title),
		rec.Status,
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		rec.Bytes,
		nullableString(rec.Filename),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
		nullableTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// Get fetches one record. Unknown ids return ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// List returns the newest records first, optionally filtered by status. A
// non-positive limit returns every match.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FailInterrupted marks jobs left in flight by a previous process as failed.
// Downloads cannot resume, so there is nothing to retry.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	args := []any{StatusFailed, InterruptedReason, now, now}
	for _, status := range inFlightStatuses {
		args = append(args, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_kind = 'internal', error_message = ?,
             updated_at = ?, finished_at = ?
         WHERE status IN (`+makePlaceholders(len(inFlightStatuses))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes terminal jobs and abandoned reservations last updated before
// cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?) AND updated_at < ?`,
		StatusCompleted, StatusFailed, StatusPending, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Summary returns counts grouped into lifecycle buckets.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		default:
			summary.InFlight += count
		}
	}
	return summary, rows.Err()
}

// Remove deletes a record by id.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const recordColumns = "id, url, format_id, audio_only, mode, directive, title, status, error_kind, error_message, bytes, filename, created_at, updated_at, finished_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id          string
		url         sql.NullString
		formatID    sql.NullString
		audioOnly   sql.NullInt64
		mode        sql.NullString
		directive   sql.NullString
		title       sql.NullString
		statusStr   string
		errorKind   sql.NullString
		errorMsg    sql.NullString
		bytes       sql.NullInt64
		filename    sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id, &url, &formatID, &audioOnly, &mode, &directive, &title, &statusStr,
		&errorKind, &errorMsg, &bytes, &filename, &createdRaw, &updatedRaw, &finishedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:           id,
		URL:          url.String,
		FormatID:     formatID.String,
		AudioOnly:    audioOnly.Int64 != 0,
		Mode:         mode.String,
		Directive:    directive.String,
		Title:        title.String,
		Status:       Status(statusStr),
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMsg.String,
		Bytes:        bytes.Int64,
		Filename:     filename.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			rec.FinishedAt = &finished
		}
	}
	return rec, nil
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

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(timeLayout, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
