package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversion_jobs (
		id           TEXT PRIMARY KEY,
		request_id   TEXT NOT NULL DEFAULT '',
		file_name    TEXT NOT NULL,
		content_type TEXT NOT NULL,
		status       TEXT NOT NULL,
		page_count   INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		bytes        BIGINT NOT NULL DEFAULT 0,
		output_uri   TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL,
		finished_at  TIMESTAMP NULL
	)
`

// SQLRecorder stores job records in SQLite or PostgreSQL.
type SQLRecorder struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the database for driver "sqlite3" or "postgres" and
// creates the table if needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLRecorder, error) {
	switch driver {
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	case "postgres", "postgresql":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported jobs driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
	}

	r, err := NewSQLRecorder(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// NewSQLRecorder wraps an open database and ensures the schema exists.
func NewSQLRecorder(ctx context.Context, db *sql.DB, driver string) (*SQLRecorder, error) {
	r := &SQLRecorder{db: db, driver: driver}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create conversion_jobs: %w", err)
	}
	return r, nil
}

// Start inserts a RUNNING record.
func (r *SQLRecorder) Start(ctx context.Context, rec Record) error {
	if rec.Status == "" {
		rec.Status = StatusRunning
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO conversion_jobs (id, request_id, file_name, content_type, status, bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.RequestID, rec.FileName, rec.ContentType, string(rec.Status), rec.Bytes, rec.CreatedAt.UTC(),
	)
	return err
}

// Finish stores the outcome of a run.
func (r *SQLRecorder) Finish(ctx context.Context, id string, out Outcome) error {
	query := `
		UPDATE conversion_jobs
		SET status = $1, page_count = $2, error = $3, output_uri = $4, finished_at = $5
		WHERE id = $6
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query),
		string(out.Status), out.PageCount, out.Error, out.OutputURI, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a record by ID.
func (r *SQLRecorder) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT id, request_id, file_name, content_type, status, page_count, error, bytes, output_uri, created_at, finished_at
		FROM conversion_jobs WHERE id = $1
	`
	rec := &Record{}
	var status string
	var finished sql.NullTime
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&rec.ID, &rec.RequestID, &rec.FileName, &rec.ContentType, &status, &rec.PageCount,
		&rec.Error, &rec.Bytes, &rec.OutputURI, &rec.CreatedAt, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return rec, nil
}

// Close closes the database.
func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

// rebind rewrites $N placeholders to ? for SQLite.
func (r *SQLRecorder) rebind(query string) string {
	if r.driver != "sqlite3" {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
				b.WriteByte('?')
				i = j - 1
				continue
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
