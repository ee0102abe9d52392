package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a metadata transaction handed to Update callbacks.
type Tx struct {
	ctx        context.Context
	tx         *sql.Tx
	tombstoned []uint64
	onCommit   []func()
}

// Insert adds a live row. It fails with ErrKeyConflict if the key or the
// ordinal is already in use.
func (t *Tx) Insert(key string, ordinal uint64, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	res, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO entries (key, ordinal, payload) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		key, int64(ordinal), payload)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: key=%q ordinal=%d", ErrKeyConflict, key, ordinal)
	}
	return nil
}

// Tombstone records ordinal as retired and deletes its live row, if any.
func (t *Tx) Tombstone(ordinal uint64) error {
	if _, err := t.tx.ExecContext(t.ctx, `INSERT OR IGNORE INTO tombstones (ordinal) VALUES (?)`, int64(ordinal)); err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM entries WHERE ordinal = ?`, int64(ordinal)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	t.tombstoned = append(t.tombstoned, ordinal)
	return nil
}

// LookupByKey returns the live row for key as seen by this transaction.
func (t *Tx) LookupByKey(key string) (Row, error) {
	return lookupByKey(t.ctx, t.tx, key)
}

// OnCommit registers fn to run after the transaction commits.
func (t *Tx) OnCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}
