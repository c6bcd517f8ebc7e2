// Package notes stores curated question/answer pairs in SQLite.
//
// Notes are the authoritative record; their embeddings in the vector
// index are derived data. The store uses modernc.org/sqlite, a pure Go
// driver, so no CGO is required.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Sentinel errors for note operations.
var (
	ErrDuplicateNote = errors.New("identical question and answer already stored")
	ErrNoteNotFound  = errors.New("note not found")
)

// Note is a curated question/answer pair.
type Note struct {
	ID        string
	Question  string
	Answer    string
	CreatedAt time.Time
	Uploader  string
}

// Store persists notes in a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path and ensures the
// schema exists. WAL mode keeps concurrent readers from blocking the
// single writer.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			id         TEXT PRIMARY KEY,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			uploader   TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a note. Returns ErrDuplicateNote when an identical
// (question, answer) pair already exists; the duplicate check and the
// insert run in one transaction so concurrent writers cannot race past
// it.
func (s *Store) Insert(ctx context.Context, note Note) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM notes WHERE question = ? AND answer = ?`,
		note.Question, note.Answer,
	).Scan(&existing)
	switch {
	case err == nil:
		return fmt.Errorf("%w: id %s", ErrDuplicateNote, existing)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking for duplicate: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (id, question, answer, created_at, uploader) VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.Question, note.Answer, note.CreatedAt.UTC(), note.Uploader,
	)
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}
	return tx.Commit()
}

// Get returns the note with the given ID, or ErrNoteNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, created_at, uploader FROM notes WHERE id = ?`, id)

	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting note: %w", err)
	}
	return note, nil
}

// Delete removes a note by ID. Deleting a missing note is not an
// error; Delete compensates failed dual-writes and must be idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}
	return nil
}

// SearchQuestion returns up to limit notes whose question contains
// substr (case-insensitive), newest first.
func (s *Store) SearchQuestion(ctx context.Context, substr string, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, created_at, uploader FROM notes
		 WHERE question LIKE ? ESCAPE '\' ORDER BY created_at DESC, id DESC LIMIT ?`,
		"%"+escapeLike(substr)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching notes: %w", err)
	}
	defer rows.Close()
	return collectNotes(rows)
}

// List returns all notes, newest first.
func (s *Store) List(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, created_at, uploader FROM notes
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()
	return collectNotes(rows)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var note Note
	if err := row.Scan(&note.ID, &note.Question, &note.Answer, &note.CreatedAt, &note.Uploader); err != nil {
		return nil, err
	}
	return &note, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, *note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notes: %w", err)
	}
	return notes, nil
}
