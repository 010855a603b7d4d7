// Package sqlite provides a durable core.SessionStore backed by SQLite
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jcqin2022/AIAssistant/core"
)

// Store persists sessions as JSON documents keyed by ID.
type Store struct {
	db *sql.DB
}

var _ core.SessionStore = (*Store)(nil)

// Open opens (or creates) the database at dsn and ensures the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and ensures the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts a snapshot of session.
func (s *Store) Save(session *core.Session) error {
	snap := session.Clone()
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO sessions (id, stage, question, document, created_unix, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			question = excluded.question,
			document = excluded.document,
			updated_unix = excluded.updated_unix
	`,
		snap.ID,
		string(snap.Stage),
		snap.Question,
		string(doc),
		snap.Created.UnixNano(),
		snap.Updated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", snap.ID, err)
	}
	return nil
}

// Get loads the session with id.
func (s *Store) Get(id string) (*core.Session, error) {
	var doc string
	err := s.db.QueryRowContext(context.Background(), `SELECT document FROM sessions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return decode(doc)
}

// List returns up to limit sessions, most recently updated first.
func (s *Store) List(limit int) ([]*core.Session, error) {
	query := `SELECT document FROM sessions ORDER BY updated_unix DESC, id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*core.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		session, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func decode(doc string) (*core.Session, error) {
	var session core.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.Tasks == nil {
		session.Tasks = []core.Task{}
	}
	return &session, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			question TEXT NOT NULL,
			document TEXT NOT NULL,
			created_unix INTEGER NOT NULL,
			updated_unix INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_updated ON sessions (updated_unix)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure sessions schema: %w", err)
		}
	}
	return nil
}
