package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonwraymond/offlinesync/store/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists the offline store in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations. Existing tables and rows are kept.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %w", ErrStorageUnavailable, err)
	}
	// One connection serializes writers; sequence numbers and mutation IDs
	// are derived inside single statements.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %w", ErrStorageUnavailable, err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: run migrations: %w", ErrStorageUnavailable, err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// SchemaVersion returns the number of applied migrations.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&n); err != nil {
		return 0, unavailable("schema version", err)
	}
	return n, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func encodeHeader(h http.Header) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeHeader(raw string) (http.Header, error) {
	h := make(http.Header)
	if raw == "" {
		return h, nil
	}
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, err
	}
	return h, nil
}

const entryColumns = `cache_name, entry_key, method, url, status, header_json, body, opaque, stored_at, seq`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (CacheEntry, error) {
	var (
		e        CacheEntry
		header   string
		opaque   int
		storedAt int64
	)
	if err := row.Scan(&e.CacheName, &e.Key, &e.Method, &e.URL, &e.Status, &header, &e.Body, &opaque, &storedAt, &e.Seq); err != nil {
		return CacheEntry{}, err
	}
	h, err := decodeHeader(header)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("decode header: %w", err)
	}
	e.Header = h
	e.Opaque = opaque != 0
	e.StoredAt = fromMillis(storedAt)
	return e, nil
}

// GetEntry returns the entry stored under (cacheName, key).
func (s *SQLiteStore) GetEntry(ctx context.Context, cacheName, key string) (CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM cache_entries WHERE cache_name = ? AND entry_key = ?`,
		cacheName, key,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, unavailable("get entry", err)
	}
	return e, nil
}

// PutEntry upserts an entry and assigns it the next sequence number.
func (s *SQLiteStore) PutEntry(ctx context.Context, entry CacheEntry) error {
	if err := validateEntryKey(entry.CacheName, entry.Key); err != nil {
		return err
	}
	header, err := encodeHeader(entry.Header)
	if err != nil {
		return fmt.Errorf("store: encode header: %w", err)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = s.now()
	}
	opaque := 0
	if entry.Opaque {
		opaque = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM cache_entries))
		 ON CONFLICT (cache_name, entry_key) DO UPDATE SET
		   method = excluded.method,
		   url = excluded.url,
		   status = excluded.status,
		   header_json = excluded.header_json,
		   body = excluded.body,
		   opaque = excluded.opaque,
		   stored_at = excluded.stored_at,
		   seq = excluded.seq`,
		entry.CacheName, entry.Key, entry.Method, entry.URL, entry.Status,
		header, entry.Body, opaque, toMillis(storedAt),
	)
	if err != nil {
		return unavailable("put entry", err)
	}
	return nil
}

// DeleteEntry removes an entry.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, cacheName, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = ? AND entry_key = ?`, cacheName, key,
	); err != nil {
		return unavailable("delete entry", err)
	}
	return nil
}

// ListEntries returns the entries of a cache, oldest first.
func (s *SQLiteStore) ListEntries(ctx context.Context, cacheName string) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM cache_entries WHERE cache_name = ? ORDER BY seq ASC`, cacheName,
	)
	if err != nil {
		return nil, unavailable("list entries", err)
	}
	defer rows.Close()

	out := []CacheEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, unavailable("scan entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list entries", err)
	}
	return out, nil
}

// ClearEntries removes every entry of a cache.
func (s *SQLiteStore) ClearEntries(ctx context.Context, cacheName string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, cacheName)
	if err != nil {
		return 0, unavailable("clear entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("clear entries", err)
	}
	return int(n), nil
}

// CacheNames returns the names of all non-empty caches, sorted.
func (s *SQLiteStore) CacheNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name`)
	if err != nil {
		return nil, unavailable("cache names", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, unavailable("scan cache name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("cache names", err)
	}
	return names, nil
}

const mutationColumns = `id, url, method, header_json, body, created_at, retry_count, last_error, idempotency_key`

func scanMutation(row rowScanner) (PendingMutation, error) {
	var (
		m         PendingMutation
		header    string
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.URL, &m.Method, &header, &m.Body, &createdAt, &m.RetryCount, &m.LastError, &m.IdempotencyKey); err != nil {
		return PendingMutation{}, err
	}
	h, err := decodeHeader(header)
	if err != nil {
		return PendingMutation{}, fmt.Errorf("decode header: %w", err)
	}
	m.Header = h
	m.CreatedAt = fromMillis(createdAt)
	return m, nil
}

// AddMutation appends a mutation to the queue.
func (s *SQLiteStore) AddMutation(ctx context.Context, m PendingMutation) (PendingMutation, error) {
	header, err := encodeHeader(m.Header)
	if err != nil {
		return PendingMutation{}, fmt.Errorf("store: encode header: %w", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_mutations (url, method, header_json, body, created_at, retry_count, last_error, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.URL, m.Method, header, m.Body, toMillis(m.CreatedAt), m.RetryCount, m.LastError, m.IdempotencyKey,
	)
	if err != nil {
		return PendingMutation{}, unavailable("add mutation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PendingMutation{}, unavailable("add mutation", err)
	}

	out := m.Clone()
	out.ID = id
	out.CreatedAt = fromMillis(toMillis(m.CreatedAt))
	return out, nil
}

// PutMutation upserts a mutation by ID.
func (s *SQLiteStore) PutMutation(ctx context.Context, m PendingMutation) error {
	if m.ID <= 0 {
		return ErrInvalidKey
	}
	header, err := encodeHeader(m.Header)
	if err != nil {
		return fmt.Errorf("store: encode header: %w", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_mutations (`+mutationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   url = excluded.url,
		   method = excluded.method,
		   header_json = excluded.header_json,
		   body = excluded.body,
		   created_at = excluded.created_at,
		   retry_count = excluded.retry_count,
		   last_error = excluded.last_error,
		   idempotency_key = excluded.idempotency_key`,
		m.ID, m.URL, m.Method, header, m.Body, toMillis(m.CreatedAt), m.RetryCount, m.LastError, m.IdempotencyKey,
	)
	if err != nil {
		return unavailable("put mutation", err)
	}
	return nil
}

// GetMutation returns a mutation by ID.
func (s *SQLiteStore) GetMutation(ctx context.Context, id int64) (PendingMutation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mutationColumns+` FROM pending_mutations WHERE id = ?`, id)
	m, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingMutation{}, ErrNotFound
	}
	if err != nil {
		return PendingMutation{}, unavailable("get mutation", err)
	}
	return m, nil
}

// DeleteMutation removes a mutation.
func (s *SQLiteStore) DeleteMutation(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id); err != nil {
		return unavailable("delete mutation", err)
	}
	return nil
}

// ListMutations returns all queued mutations in ascending ID order.
func (s *SQLiteStore) ListMutations(ctx context.Context) ([]PendingMutation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mutationColumns+` FROM pending_mutations ORDER BY id ASC`)
	if err != nil {
		return nil, unavailable("list mutations", err)
	}
	defer rows.Close()

	out := []PendingMutation{}
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, unavailable("scan mutation", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list mutations", err)
	}
	return out, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
