// Package data persists run history in a DuckDB database. History is
// optional; callers hold a nil *Repository when it is disabled.
package data

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS runs_id_seq;
CREATE TABLE IF NOT EXISTS runs (
	id BIGINT PRIMARY KEY DEFAULT nextval('runs_id_seq'),
	booklet_id VARCHAR NOT NULL,
	title VARCHAR NOT NULL,
	chapters INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	images INTEGER NOT NULL,
	output_path VARCHAR NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
`

// Repository stores and lists completed runs.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveRun appends one completed run.
func (r *Repository) SaveRun(run *Run) error {
	_, err := r.db.Exec(
		`INSERT INTO runs (booklet_id, title, chapters, succeeded, images, output_path, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.BookletID, run.Title, run.Chapters, run.Succeeded, run.Images, run.OutputPath, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first. limit <= 0 means
// no limit.
func (r *Repository) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT booklet_id, title, chapters, succeeded, images, output_path, finished_at
	          FROM runs ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(&run.BookletID, &run.Title, &run.Chapters, &run.Succeeded,
			&run.Images, &run.OutputPath, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
