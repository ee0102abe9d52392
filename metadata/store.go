package metadata

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// maxVariables bounds the number of bound parameters per statement.
const maxVariables = 500

// Row is one live record.
type Row struct {
	Key     string
	Ordinal uint64
	Payload []byte
}

// Store is the SQLite-backed metadata store.
type Store struct {
	db *sql.DB

	mu   sync.RWMutex
	dead *roaring64.Bitmap // mirror of the tombstones table
}

// Open creates an empty in-memory store.
func Open(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Every connection to :memory: is a distinct database; pin exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, dead: roaring64.New()}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside one SQLite transaction. If fn returns an error the
// transaction is rolled back and no OnCommit hook runs.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	tx := &Tx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	if len(tx.tombstoned) > 0 {
		s.mu.Lock()
		s.dead.AddMany(tx.tombstoned)
		s.mu.Unlock()
	}
	for _, hook := range tx.onCommit {
		hook()
	}
	return nil
}

// LookupByKey returns the live row for key, or ErrNotFound.
func (s *Store) LookupByKey(ctx context.Context, key string) (Row, error) {
	return lookupByKey(ctx, s.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowsQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func lookupByKey(ctx context.Context, q queryer, key string) (Row, error) {
	row := Row{Key: key}
	var ordinal int64
	err := q.QueryRowContext(ctx, `SELECT ordinal, payload FROM entries WHERE key = ?`, key).Scan(&ordinal, &row.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("query entry: %w", err)
	}
	row.Ordinal = uint64(ordinal)
	return row, nil
}

// LookupByOrdinals returns the live rows for the given ordinals. Ordinals
// without a live row are omitted from the result.
func (s *Store) LookupByOrdinals(ctx context.Context, ordinals []uint64) (map[uint64]Row, error) {
	result := make(map[uint64]Row, len(ordinals))

	for start := 0; start < len(ordinals); start += maxVariables {
		chunk := ordinals[start:min(start+maxVariables, len(ordinals))]

		args := make([]any, len(chunk))
		for i, ord := range chunk {
			args[i] = int64(ord)
		}
		query := `SELECT key, ordinal, payload FROM entries WHERE ordinal IN (?` +
			strings.Repeat(",?", len(chunk)-1) + `)`

		if err := s.scanRows(ctx, query, args, func(r Row) { result[r.Ordinal] = r }); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// scanRows runs query and closes the cursor before returning, so callers may
// issue further statements on the single connection.
func (s *Store) scanRows(ctx context.Context, query string, args []any, fn func(Row)) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r       Row
			ordinal int64
		)
		if err := rows.Scan(&r.Key, &ordinal, &r.Payload); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		r.Ordinal = uint64(ordinal)
		fn(r)
	}
	return rows.Err()
}

// Exists reports whether key has a live row.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query entry: %w", err)
	}
	return true, nil
}

// Len returns the number of live rows.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Keys returns all live keys in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// IsTombstoned reports whether ordinal is in the authoritative tombstone set.
func (s *Store) IsTombstoned(ordinal uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dead.Contains(ordinal)
}

// TombstoneCount returns the size of the authoritative tombstone set.
func (s *Store) TombstoneCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dead.GetCardinality()
}

// Tombstones returns a copy of the authoritative tombstone set.
func (s *Store) Tombstones() *roaring64.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dead.Clone()
}

// LiveOrdinals returns the ordinals that have a live row.
func (s *Store) LiveOrdinals(ctx context.Context) (*roaring64.Bitmap, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ordinal FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("query ordinals: %w", err)
	}
	defer rows.Close()

	live := roaring64.New()
	for rows.Next() {
		var ord int64
		if err := rows.Scan(&ord); err != nil {
			return nil, fmt.Errorf("scan ordinal: %w", err)
		}
		live.Add(uint64(ord))
	}
	return live, rows.Err()
}

// Truncate removes every row and tombstone whose ordinal is at least size and
// returns how many rows were dropped.
func (s *Store) Truncate(ctx context.Context, size uint64) (int64, error) {
	var dropped int64
	err := s.Update(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `DELETE FROM entries WHERE ordinal >= ?`, int64(size))
		if err != nil {
			return fmt.Errorf("truncate entries: %w", err)
		}
		if dropped, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM tombstones WHERE ordinal >= ?`, int64(size)); err != nil {
			return fmt.Errorf("truncate tombstones: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.dead.RemoveRange(size, ^uint64(0))
	s.dead.Remove(^uint64(0))
	s.mu.Unlock()
	return dropped, nil
}

// reloadTombstones rebuilds the bitmap mirror from the tombstones table.
func (s *Store) reloadTombstones(ctx context.Context, q rowsQueryer) error {
	rows, err := q.QueryContext(ctx, `SELECT ordinal FROM tombstones`)
	if err != nil {
		return fmt.Errorf("query tombstones: %w", err)
	}
	defer rows.Close()

	var ords []uint64
	for rows.Next() {
		var ord int64
		if err := rows.Scan(&ord); err != nil {
			return fmt.Errorf("scan tombstone: %w", err)
		}
		ords = append(ords, uint64(ord))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	sort.Slice(ords, func(i, j int) bool { return ords[i] < ords[j] })
	dead := roaring64.New()
	dead.AddMany(ords)

	s.mu.Lock()
	s.dead = dead
	s.mu.Unlock()
	return nil
}
