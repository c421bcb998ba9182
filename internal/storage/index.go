package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a SQLite catalog of stored runs, used by the CLI to list and look
// up runs without scanning run directories.
type Index struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewIndex(path string) *Index {
	return &Index{path: path}
}

func (ix *Index) Init(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.path == "" {
		return errors.New("storage: index path is required")
	}
	if ix.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", ix.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			model      TEXT NOT NULL,
			scheme     TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			t0         REAL NOT NULL,
			t_end      REAL NOT NULL,
			h0         REAL NOT NULL,
			steps      INTEGER NOT NULL,
			snapshots  INTEGER NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return err
	}

	ix.db = db
	return nil
}

func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

func (ix *Index) getDB() (*sql.DB, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil, errors.New("storage: index not initialized")
	}
	return ix.db, nil
}

// Put inserts or replaces one run record.
func (ix *Index) Put(ctx context.Context, meta RunMeta) error {
	db, err := ix.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, model, scheme, created_at, t0, t_end, h0, steps, snapshots)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model = excluded.model,
			scheme = excluded.scheme,
			created_at = excluded.created_at,
			t0 = excluded.t0,
			t_end = excluded.t_end,
			h0 = excluded.h0,
			steps = excluded.steps,
			snapshots = excluded.snapshots
	`, meta.ID, meta.Model, meta.Scheme, meta.Timestamp.UTC(), meta.T0, meta.TEnd, meta.H0, meta.Steps, meta.Snapshots)
	return err
}

// Get looks up one run by id.
func (ix *Index) Get(ctx context.Context, id string) (RunMeta, bool, error) {
	db, err := ix.getDB()
	if err != nil {
		return RunMeta{}, false, err
	}
	var meta RunMeta
	var created time.Time
	err = db.QueryRowContext(ctx, `
		SELECT id, model, scheme, created_at, t0, t_end, h0, steps, snapshots
		FROM runs WHERE id = ?
	`, id).Scan(&meta.ID, &meta.Model, &meta.Scheme, &created, &meta.T0, &meta.TEnd, &meta.H0, &meta.Steps, &meta.Snapshots)
	if errors.Is(err, sql.ErrNoRows) {
		return RunMeta{}, false, nil
	}
	if err != nil {
		return RunMeta{}, false, err
	}
	meta.Timestamp = created
	return meta, true, nil
}

// List returns all run records, newest first.
func (ix *Index) List(ctx context.Context) ([]RunMeta, error) {
	db, err := ix.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, model, scheme, created_at, t0, t_end, h0, steps, snapshots
		FROM runs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunMeta
	for rows.Next() {
		var meta RunMeta
		var created time.Time
		if err := rows.Scan(&meta.ID, &meta.Model, &meta.Scheme, &created, &meta.T0, &meta.TEnd, &meta.H0, &meta.Steps, &meta.Snapshots); err != nil {
			return nil, err
		}
		meta.Timestamp = created
		out = append(out, meta)
	}
	return out, rows.Err()
}

// Delete removes one run record.
func (ix *Index) Delete(ctx context.Context, id string) error {
	db, err := ix.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	return err
}
