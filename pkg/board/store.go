// Package board owns the server-side game board: a shuffled list of colors
// kept in an automerge document, persisted in sqlite and fronted by a
// position->color cache.
package board

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/automerge/automerge-go"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Store.Load when no board has been saved.
var ErrNotFound = errors.New("board not found")

// Store keeps board documents as base64 automerge saves keyed by board id.
type Store struct {
	database *sql.DB
}

// OpenStore opens (creating if needed) the sqlite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{database: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS boards (
		id text not null primary key,
		content text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create boards table: %w", err)
	}
	slog.Debug("ensured boards table exists")
	return nil
}

func (s *Store) Close() error {
	return s.database.Close()
}

func (s *Store) Load(ctx context.Context, id string) (*automerge.Doc, error) {
	var rawContent string
	if err := s.database.QueryRowContext(ctx, `SELECT content FROM boards WHERE id = ?`, id).Scan(&rawContent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query board: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode board: %w", err)
	}
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load board doc: %w", err)
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, id string, doc *automerge.Doc) error {
	content := base64.StdEncoding.EncodeToString(doc.Save())
	if _, err := s.database.ExecContext(
		ctx,
		`INSERT INTO boards (id, content) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET content = excluded.content`,
		id, content,
	); err != nil {
		return fmt.Errorf("failed to save board: %w", err)
	}
	return nil
}
