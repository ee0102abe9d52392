package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// Snapshot returns a self-contained SQLite database file holding both tables.
func (s *Store) Snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "semkv-metadata-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the contents of the store with a snapshot produced by
// Snapshot. Rows whose ordinal is also tombstoned are dropped. On error the
// store is left unchanged.
func (s *Store) Restore(ctx context.Context, data []byte) (err error) {
	if !bytes.HasPrefix(data, sqliteHeader) {
		return fmt.Errorf("%w: not a sqlite database", ErrCorrupt)
	}

	dir, err := os.MkdirTemp("", "semkv-metadata-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "restore.db")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS ckpt`, path); err != nil {
		return fmt.Errorf("%w: attach: %v", ErrCorrupt, err)
	}
	defer func() {
		if _, derr := conn.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE ckpt`); derr != nil && err == nil {
			err = fmt.Errorf("detach: %w", derr)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmts := []string{
		`DELETE FROM entries`,
		`DELETE FROM tombstones`,
		`INSERT INTO tombstones (ordinal) SELECT ordinal FROM ckpt.tombstones`,
		`INSERT INTO entries (key, ordinal, payload)
			SELECT key, ordinal, payload FROM ckpt.entries
			WHERE ordinal NOT IN (SELECT ordinal FROM ckpt.tombstones)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}

	return s.reloadTombstones(ctx, conn)
}
