// Package store indexes submitted whistles in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound  = errors.New("submission not found")
	ErrDuplicate = errors.New("submission already recorded")
)

// Record is one submitted whistle
type Record struct {
	ID        string    `json:"id"`
	Genre     string    `json:"genre"`
	Comments  string    `json:"comments"`
	ObjectKey string    `json:"object_key"`
	CreatedAt time.Time `json:"created_at"`
}

type RecordStore struct {
	db *sql.DB
}

// Open creates the database file and schema if needed
func Open(path string) (*RecordStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One writer at a time; the sqlite3 driver serializes on the file anyway
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &RecordStore{db: db}, nil
}

func (s *RecordStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func createTables(db *sql.DB) error {
	createSubmissionsTable := `
    CREATE TABLE IF NOT EXISTS submissions (
        id TEXT PRIMARY KEY,
        genre TEXT NOT NULL,
        comments TEXT NOT NULL,
        object_key TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );
    `
	if _, err := db.Exec(createSubmissionsTable); err != nil {
		return fmt.Errorf("error creating submissions table: %w", err)
	}
	return nil
}

// Insert stores rec. A reused ID yields ErrDuplicate.
func (s *RecordStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO submissions (id, genre, comments, object_key, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.Genre, rec.Comments, rec.ObjectKey, rec.CreatedAt.UTC().UnixNano())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
		}
		return fmt.Errorf("error adding submission: %w", err)
	}
	return nil
}

// List returns submissions newest first. limit <= 0 returns all.
func (s *RecordStore) List(ctx context.Context, limit int) ([]Record, error) {
	query := "SELECT id, genre, comments, object_key, created_at FROM submissions ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing submissions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}
	return records, nil
}

func (s *RecordStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, genre, comments, object_key, created_at FROM submissions WHERE id = ?", id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var created int64
	if err := row.Scan(&rec.ID, &rec.Genre, &rec.Comments, &rec.ObjectKey, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("error scanning submission: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return rec, nil
}
