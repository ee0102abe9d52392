// Package metadata provides the relational key/ordinal/payload store.
//
// Records live in an in-memory SQLite database (modernc.org/sqlite, pure Go)
// with two tables:
//
//	entries(key TEXT PRIMARY KEY, ordinal INTEGER NOT NULL UNIQUE, payload BLOB NOT NULL)
//	tombstones(ordinal INTEGER PRIMARY KEY)
//
// The key and ordinal constraints make the key -> ordinal mapping a bijection
// over live rows. Tombstoned ordinals are additionally mirrored in a roaring64
// bitmap so that IsTombstoned and TombstoneCount never touch SQL.
//
// # Transactions
//
// Mutations run inside Update, which commits or rolls back a single SQLite
// transaction and runs OnCommit hooks only after a successful commit:
//
//	err := store.Update(ctx, func(tx *metadata.Tx) error {
//	    if err := tx.Tombstone(old); err != nil {
//	        return err
//	    }
//	    return tx.Insert("alpha", next, payload)
//	})
//
// # Checkpoints
//
// Snapshot serialises the database with VACUUM INTO; Restore attaches such a
// file and copies both tables in one transaction.
//
// The store has no locking of its own beyond its bitmap mirror. Callers
// serialise mutations.
package metadata
