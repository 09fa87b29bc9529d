package tiercache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// The schema mirrors Entry so the sweeper can range-scan expires_at
// instead of walking every row. Tags are stored as a JSON array.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key              TEXT PRIMARY KEY,
	payload          BLOB NOT NULL,
	compressed       INTEGER NOT NULL DEFAULT 0,
	size_bytes       INTEGER NOT NULL,
	expires_at       INTEGER NOT NULL DEFAULT 0,
	priority         TEXT NOT NULL DEFAULT 'normal',
	tags             TEXT NOT NULL DEFAULT '[]',
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at
	ON cache_entries(expires_at) WHERE expires_at > 0;
`

const sqliteEntryColumns = "key, payload, compressed, size_bytes, expires_at, priority, tags, access_count, last_accessed_at, created_at"

// sqliteStore is the durable tier's native medium. Size and count are
// tracked in memory (seeded from an aggregate query at open) so budget
// checks never hit the database.
type sqliteStore struct {
	db      *sql.DB
	timeout time.Duration

	size   atomic.Int64
	count  atomic.Int64
	closed atomic.Bool
}

// newSQLiteStore opens or creates the database at path. WAL mode keeps
// readers unblocked during writes; busy_timeout absorbs writer contention.
func newSQLiteStore(ctx context.Context, path string, timeout time.Duration) (*sqliteStore, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open durable medium: %w", err)
	}
	db.SetMaxOpenConns(4)

	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	s := &sqliteStore{db: db, timeout: timeout}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping durable medium: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create durable schema: %w", err)
	}

	var count, size int64
	row := db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM cache_entries")
	if err := row.Scan(&count, &size); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read durable usage: %w", err)
	}
	s.count.Store(count)
	s.size.Store(size)

	return s, nil
}

// opCtx bounds a statement with the per-query timeout.
func (s *sqliteStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *sqliteStore) Put(ctx context.Context, e *Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin durable put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldSize sql.NullInt64
	err = tx.QueryRowContext(ctx, "SELECT size_bytes FROM cache_entries WHERE key = ?", e.Key).Scan(&oldSize)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read durable entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_entries (`+sqliteEntryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			compressed = excluded.compressed,
			size_bytes = excluded.size_bytes,
			expires_at = excluded.expires_at,
			priority = excluded.priority,
			tags = excluded.tags,
			access_count = excluded.access_count,
			last_accessed_at = excluded.last_accessed_at,
			created_at = excluded.created_at`,
		e.Key, e.Payload, boolToInt(e.Compressed), e.SizeBytes, e.ExpiresAt,
		string(e.Priority.normalize()), encodeTags(e.Tags),
		e.AccessCount, e.LastAccessedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write durable entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit durable put: %w", err)
	}

	s.size.Add(e.SizeBytes)
	if oldSize.Valid {
		s.size.Add(-oldSize.Int64)
	} else {
		s.count.Add(1)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteEntryColumns+" FROM cache_entries WHERE key = ?", key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read durable entry: %w", err)
	}
	return e, nil
}

func (s *sqliteStore) Touch(ctx context.Context, key string, now int64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"UPDATE cache_entries SET access_count = access_count + 1, last_accessed_at = ? WHERE key = ?",
		now, key,
	)
	if err != nil {
		return fmt.Errorf("failed to touch durable entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var size int64
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM cache_entries WHERE key = ? RETURNING size_bytes", key,
	).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete durable entry: %w", err)
	}

	s.size.Add(-size)
	s.count.Add(-1)
	return true, nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("failed to clear durable tier: %w", err)
	}
	s.size.Store(0)
	s.count.Store(0)
	return nil
}

func (s *sqliteStore) SizeBytes() int64 {
	return s.size.Load()
}

func (s *sqliteStore) Len() int {
	return int(s.count.Load())
}

// Entries returns metadata for every resident row; payloads are omitted.
func (s *sqliteStore) Entries(ctx context.Context) ([]*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, size_bytes, expires_at, priority, tags, access_count, last_accessed_at, created_at
		FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan durable tier: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		var priority, tags string
		if err := rows.Scan(&e.Key, &e.SizeBytes, &e.ExpiresAt, &priority, &tags,
			&e.AccessCount, &e.LastAccessedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan durable entry: %w", err)
		}
		e.Priority = Priority(priority)
		e.Tags = decodeTags(tags)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan durable tier: %w", err)
	}
	return out, nil
}

// Victims returns eviction candidates ordered lowest priority first, then
// least recently accessed, straight from an indexed query.
func (s *sqliteStore) Victims(ctx context.Context) ([]*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, size_bytes, priority, last_accessed_at
		FROM cache_entries
		ORDER BY CASE priority WHEN 'low' THEN 0 WHEN 'high' THEN 2 ELSE 1 END ASC,
			last_accessed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan durable victims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		var priority string
		if err := rows.Scan(&e.Key, &e.SizeBytes, &priority, &e.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan durable victim: %w", err)
		}
		e.Priority = Priority(priority)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan durable victims: %w", err)
	}
	return out, nil
}

// KeysWithTags returns keys whose persisted tag set intersects tags. Only
// rows that carry tags at all are scanned, so the cost tracks the tagged
// population rather than the whole tier.
func (s *sqliteStore) KeysWithTags(ctx context.Context, tags []string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if len(tags) == 0 {
		return nil, nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, tags FROM cache_entries WHERE tags != '[]'")
	if err != nil {
		return nil, fmt.Errorf("failed to scan durable tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	want := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		want[tag] = struct{}{}
	}

	var keys []string
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan durable tags: %w", err)
		}
		for _, r := range gjson.Parse(raw).Array() {
			if _, ok := want[r.String()]; ok {
				keys = append(keys, key)
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan durable tags: %w", err)
	}
	return keys, nil
}

// DeleteExpired removes up to limit expired rows using the expires_at
// index, returning the deleted keys.
func (s *sqliteStore) DeleteExpired(ctx context.Context, now int64, limit int) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultSweepBatch
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM cache_entries
		WHERE key IN (
			SELECT key FROM cache_entries
			WHERE expires_at > 0 AND expires_at <= ?
			LIMIT ?
		)
		RETURNING key, size_bytes`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep durable tier: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		keys  []string
		freed int64
	)
	for rows.Next() {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			return nil, fmt.Errorf("failed to scan swept entry: %w", err)
		}
		keys = append(keys, key)
		freed += size
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to sweep durable tier: %w", err)
	}

	s.size.Add(-freed)
	s.count.Add(-int64(len(keys)))
	return keys, nil
}

func (s *sqliteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// scanEntry reads a full entry row in sqliteEntryColumns order.
func scanEntry(row *sql.Row) (*Entry, error) {
	e := &Entry{}
	var compressed int
	var priority, tags string
	err := row.Scan(&e.Key, &e.Payload, &compressed, &e.SizeBytes, &e.ExpiresAt,
		&priority, &tags, &e.AccessCount, &e.LastAccessedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Compressed = compressed != 0
	e.Priority = Priority(priority)
	e.Tags = decodeTags(tags)
	return e, nil
}

// encodeTags renders tags as a JSON array for the tags column.
func encodeTags(tags []string) string {
	out := "[]"
	for _, t := range tags {
		out, _ = sjson.Set(out, "-1", t)
	}
	return out
}

// decodeTags parses the tags column. Malformed JSON yields no tags.
func decodeTags(raw string) []string {
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil
	}
	var tags []string
	for _, r := range parsed.Array() {
		tags = append(tags, r.String())
	}
	return tags
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
