// Package store persists the link state table in sqlite. Links are the only
// state carried between runs; each write is an independent idempotent
// upsert, so an interrupted run leaves the table valid.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cookkie03/davsync/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS links (
	sync_id     TEXT PRIMARY KEY,
	a_id        TEXT NOT NULL DEFAULT '',
	b_id        TEXT NOT NULL DEFAULT '',
	a_tok       TEXT NOT NULL DEFAULT '',
	b_tok       TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	archived    INTEGER NOT NULL DEFAULT 0
)`

// Store is a sqlite-backed link table. A single reconciliation process owns
// the file at a time; there is no concurrent-writer support.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the link database at path and runs schema
// setup and legacy migration.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrateLegacy(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrateLegacy imports rows from the pre-fingerprint 'state' table
// (uid, res_name, etag_c, etag_g) if one exists, then drops it.
func (s *Store) migrateLegacy() error {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='state'").Scan(&name)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("probing legacy schema: %w", err)
	}

	log.Printf("[store] migrating legacy 'state' table to 'links'")
	rows, err := s.db.Query("SELECT uid, res_name, etag_c, etag_g FROM state")
	if err != nil {
		return fmt.Errorf("reading legacy state: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var uid, resName, etagC, etagG string
		if err := rows.Scan(&uid, &resName, &etagC, &etagG); err != nil {
			return fmt.Errorf("scanning legacy row: %w", err)
		}
		_, err = s.db.Exec(
			"INSERT OR IGNORE INTO links (sync_id, b_id, a_tok, b_tok) VALUES (?,?,?,?)",
			uid, resName, etagC, etagG)
		if err != nil {
			return fmt.Errorf("migrating legacy row %s: %w", uid, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if _, err := s.db.Exec("DROP TABLE state"); err != nil {
		return fmt.Errorf("dropping legacy table: %w", err)
	}
	log.Printf("[store] migrated %d rows from legacy schema", n)
	return nil
}

// Load returns every link in the table.
func (s *Store) Load(ctx context.Context) ([]*model.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT sync_id, a_id, b_id, a_tok, b_tok, fingerprint, archived FROM links")
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		l := &model.Link{}
		var archived int
		if err := rows.Scan(&l.SyncID, &l.AID, &l.BID, &l.ATok, &l.BTok, &l.Fingerprint, &archived); err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		l.Archived = archived != 0
		links = append(links, l)
	}
	return links, rows.Err()
}

// Upsert inserts or replaces the link for its sync identifier.
func (s *Store) Upsert(ctx context.Context, l *model.Link) error {
	archived := 0
	if l.Archived {
		archived = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO links (sync_id, a_id, b_id, a_tok, b_tok, fingerprint, archived)
		 VALUES (?,?,?,?,?,?,?)`,
		l.SyncID, l.AID, l.BID, l.ATok, l.BTok, l.Fingerprint, archived)
	if err != nil {
		return fmt.Errorf("upserting link %s: %w", l.SyncID, err)
	}
	return nil
}

// Delete removes the link for syncID. Deleting a missing link is a no-op.
func (s *Store) Delete(ctx context.Context, syncID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM links WHERE sync_id=?", syncID); err != nil {
		return fmt.Errorf("deleting link %s: %w", syncID, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
