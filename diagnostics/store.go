// Package diagnostics keeps a history of load outcomes in SQLite so failed
// refreshes can be inspected after the fact.
package diagnostics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/newsapp/loader"
)

// ErrLoadNotFound is returned when a load ID has no record.
var ErrLoadNotFound = errors.New("load not found")

// Store records load outcomes using SQLite.
type Store struct {
	db *sql.DB
}

// LoadRecord is one recorded load.
type LoadRecord struct {
	LoadID            uuid.UUID `json:"load_id"`
	Generation        uint64    `json:"generation"`
	URL               string    `json:"url"`
	Status            string    `json:"status"`
	ItemCount         int       `json:"item_count"`
	SkippedEntries    int       `json:"skipped_entries"`
	ThumbnailFailures int       `json:"thumbnail_failures"`
	HTTPStatus        int       `json:"http_status,omitempty"`
	Error             *string   `json:"error,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

// Duration returns how long the load took.
func (r *LoadRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// LoadFilter represents filtering options for listing loads.
type LoadFilter struct {
	Status *string // Filter by status name
	Limit  int     // Pagination limit
	Offset int     // Pagination offset
}

// NewStore creates a store backed by the SQLite database at dsn.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Background loads record concurrently; SQLite allows one writer
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the loads table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loads (
		load_id TEXT PRIMARY KEY,
		generation INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		skipped_entries INTEGER NOT NULL DEFAULT 0,
		thumbnail_failures INTEGER NOT NULL DEFAULT 0,
		http_status INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS loads_started_at ON loads (started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores the outcome of a load. It satisfies loader.Recorder.
func (s *Store) Record(ctx context.Context, r *loader.Result) error {
	var errText *string
	if r.Err != nil {
		msg := r.Err.Error()
		errText = &msg
	}

	query := `
		INSERT INTO loads (
			load_id, generation, url, status, item_count, skipped_entries,
			thumbnail_failures, http_status, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID.String(),
		int64(r.Generation),
		r.URL,
		r.Status.String(),
		len(r.Items),
		r.Skipped,
		r.ThumbnailFailures,
		r.HTTPStatus,
		errText,
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert load: %w", err)
	}

	return nil
}

const selectLoads = `
	SELECT load_id, generation, url, status, item_count, skipped_entries,
	       thumbnail_failures, http_status, error, started_at, finished_at
	FROM loads
`

// GetLoad retrieves a load by ID.
func (s *Store) GetLoad(loadID uuid.UUID) (*LoadRecord, error) {
	row := s.db.QueryRow(selectLoads+" WHERE load_id = ?", loadID.String())

	rec, err := scanLoad(row)
	if err == sql.ErrNoRows {
		return nil, ErrLoadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query load: %w", err)
	}

	return rec, nil
}

// ListLoads lists loads, most recent first.
func (s *Store) ListLoads(filter LoadFilter) ([]LoadRecord, error) {
	query := selectLoads
	var args []any

	if filter.Status != nil {
		if _, err := loader.ParseStatus(*filter.Status); err != nil {
			return nil, err
		}
		query += " WHERE status = ?"
		args = append(args, *filter.Status)
	}

	query += " ORDER BY started_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loads: %w", err)
	}
	defer rows.Close()

	records := []LoadRecord{}
	for rows.Next() {
		rec, err := scanLoad(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan load: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// Summary counts recorded loads by status name.
func (s *Store) Summary() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM loads GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to summarize loads: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// Prune deletes all but the keep most recent loads and returns how many
// rows were removed.
func (s *Store) Prune(keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative: %d", keep)
	}

	result, err := s.db.Exec(`
		DELETE FROM loads WHERE load_id NOT IN (
			SELECT load_id FROM loads ORDER BY started_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune loads: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLoad(row scanner) (*LoadRecord, error) {
	var loadIDStr, url, status, startedAtStr, finishedAtStr string
	var generation int64
	var itemCount, skipped, thumbFailures, httpStatus int
	var errText sql.NullString

	err := row.Scan(
		&loadIDStr, &generation, &url, &status, &itemCount, &skipped,
		&thumbFailures, &httpStatus, &errText, &startedAtStr, &finishedAtStr,
	)
	if err != nil {
		return nil, err
	}

	loadID, err := uuid.Parse(loadIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse load ID: %w", err)
	}

	rec := &LoadRecord{
		LoadID:            loadID,
		Generation:        uint64(generation),
		URL:               url,
		Status:            status,
		ItemCount:         itemCount,
		SkippedEntries:    skipped,
		ThumbnailFailures: thumbFailures,
		HTTPStatus:        httpStatus,
		StartedAt:         parseTime(startedAtStr),
		FinishedAt:        parseTime(finishedAtStr),
	}
	if errText.Valid {
		rec.Error = &errText.String
	}

	return rec, nil
}

// Fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
