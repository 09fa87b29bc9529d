package tiercache

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestSQLiteStore(t *testing.T) (*sqliteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := newSQLiteStore(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("newSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStorePutGet(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	in := &Entry{
		Key:            "k",
		Payload:        []byte{0x01, 0x02, 0x03},
		Compressed:     true,
		SizeBytes:      3,
		ExpiresAt:      12345,
		Priority:       PriorityHigh,
		Tags:           []string{"a", "b"},
		AccessCount:    7,
		LastAccessedAt: 100,
		CreatedAt:      90,
	}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("Get() = %+v, want %+v", got, in)
	}

	if _, err := s.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreReplace(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, &Entry{Key: "k", Payload: []byte("aaaa"), SizeBytes: 4}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, &Entry{Key: "k", Payload: []byte("bb"), SizeBytes: 2}); err != nil {
		t.Fatal(err)
	}

	if got := s.Len(); got != 1 {
		t.Errorf("Len = %d after replace, want 1", got)
	}
	if got := s.SizeBytes(); got != 2 {
		t.Errorf("SizeBytes = %d after replace, want 2", got)
	}

	e, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Payload) != "bb" {
		t.Errorf("payload = %q after replace, want %q", e.Payload, "bb")
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s1, err := newSQLiteStore(ctx, path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Put(ctx, &Entry{Key: "a", Payload: []byte("x"), SizeBytes: 10, Tags: []string{"t"}}); err != nil {
		t.Fatal(err)
	}
	if err := s1.Put(ctx, &Entry{Key: "b", Payload: []byte("y"), SizeBytes: 20}); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := newSQLiteStore(ctx, path, 0)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = s2.Close() }()

	// Usage counters are seeded from the rows, not reset.
	if got := s2.Len(); got != 2 {
		t.Errorf("Len = %d after reopen, want 2", got)
	}
	if got := s2.SizeBytes(); got != 30 {
		t.Errorf("SizeBytes = %d after reopen, want 30", got)
	}

	e, err := s2.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(e.Payload) != "x" || len(e.Tags) != 1 {
		t.Errorf("entry lost fields across reopen: %+v", e)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, &Entry{Key: "k", Payload: []byte("x"), SizeBytes: 5}); err != nil {
		t.Fatal(err)
	}

	did, err := s.Delete(ctx, "k")
	if err != nil || !did {
		t.Fatalf("Delete() = (%v, %v), want (true, nil)", did, err)
	}
	if s.Len() != 0 || s.SizeBytes() != 0 {
		t.Errorf("Len/SizeBytes = %d/%d after delete, want 0/0", s.Len(), s.SizeBytes())
	}

	if did, err := s.Delete(ctx, "k"); err != nil || did {
		t.Errorf("Delete(absent) = (%v, %v), want (false, nil)", did, err)
	}
}

func TestSQLiteStoreTouch(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, &Entry{Key: "k", Payload: []byte("x"), SizeBytes: 1, AccessCount: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Touch(ctx, "k", 777); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	e, _ := s.Get(ctx, "k")
	if e.AccessCount != 3 {
		t.Errorf("AccessCount = %d, want 3", e.AccessCount)
	}
	if e.LastAccessedAt != 777 {
		t.Errorf("LastAccessedAt = %d, want 777", e.LastAccessedAt)
	}

	if err := s.Touch(ctx, "absent", 1); err != nil {
		t.Errorf("Touch(absent) error = %v", err)
	}
}

func TestSQLiteStoreVictimsOrder(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	entries := []*Entry{
		{Key: "high", Payload: []byte("x"), SizeBytes: 1, Priority: PriorityHigh, LastAccessedAt: 1},
		{Key: "low-new", Payload: []byte("x"), SizeBytes: 1, Priority: PriorityLow, LastAccessedAt: 100},
		{Key: "norm", Payload: []byte("x"), SizeBytes: 1, Priority: PriorityNormal, LastAccessedAt: 50},
		{Key: "low-old", Payload: []byte("x"), SizeBytes: 1, Priority: PriorityLow, LastAccessedAt: 1},
	}
	for _, e := range entries {
		if err := s.Put(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	victims, err := s.Victims(ctx)
	if err != nil {
		t.Fatalf("Victims() error = %v", err)
	}
	var order []string
	for _, v := range victims {
		order = append(order, v.Key)
	}
	want := []string{"low-old", "low-new", "norm", "high"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Victims() order = %v, want %v", order, want)
	}
}

func TestSQLiteStoreDeleteExpired(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, e := range []*Entry{
		{Key: "dead1", Payload: []byte("x"), SizeBytes: 10, ExpiresAt: 50},
		{Key: "dead2", Payload: []byte("x"), SizeBytes: 10, ExpiresAt: 60},
		{Key: "alive", Payload: []byte("x"), SizeBytes: 10, ExpiresAt: 500},
		{Key: "forever", Payload: []byte("x"), SizeBytes: 10},
	} {
		if err := s.Put(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.DeleteExpired(ctx, 100, 0)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("DeleteExpired() = %v, want two dead keys", keys)
	}
	if s.Len() != 2 || s.SizeBytes() != 20 {
		t.Errorf("Len/SizeBytes = %d/%d, want 2/20", s.Len(), s.SizeBytes())
	}

	// expires_at = 0 rows never match the sweep predicate.
	if _, err := s.Get(ctx, "forever"); err != nil {
		t.Error("entry without TTL swept")
	}
	if _, err := s.Get(ctx, "alive"); err != nil {
		t.Error("future entry swept")
	}
}

func TestSQLiteStoreDeleteExpiredLimit(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, &Entry{Key: key, Payload: []byte("x"), SizeBytes: 1, ExpiresAt: 10}); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.DeleteExpired(ctx, 100, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("DeleteExpired(limit=2) removed %d, want 2", len(keys))
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSQLiteStoreKeysWithTags(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, e := range []*Entry{
		{Key: "k1", Payload: []byte("x"), SizeBytes: 1, Tags: []string{"g1"}},
		{Key: "k2", Payload: []byte("x"), SizeBytes: 1, Tags: []string{"g1", "g2"}},
		{Key: "k3", Payload: []byte("x"), SizeBytes: 1, Tags: []string{"g3"}},
		{Key: "k4", Payload: []byte("x"), SizeBytes: 1},
	} {
		if err := s.Put(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.KeysWithTags(ctx, []string{"g1", "g3"})
	if err != nil {
		t.Fatalf("KeysWithTags() error = %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("KeysWithTags() = %v, want k1 k2 k3", keys)
	}
	for _, key := range keys {
		if key == "k4" {
			t.Error("untagged key matched a tag scan")
		}
	}

	if keys, err := s.KeysWithTags(ctx, nil); err != nil || keys != nil {
		t.Errorf("KeysWithTags(none) = (%v, %v), want (nil, nil)", keys, err)
	}
}

func TestSQLiteStoreClear(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if err := s.Put(ctx, &Entry{Key: key, Payload: []byte("x"), SizeBytes: 10}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.Len() != 0 || s.SizeBytes() != 0 {
		t.Errorf("Len/SizeBytes = %d/%d after clear, want 0/0", s.Len(), s.SizeBytes())
	}
}

func TestSQLiteStoreClosed(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := s.Put(ctx, &Entry{Key: "k", SizeBytes: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Put() after close = %v, want ErrClosed", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after close = %v, want ErrClosed", err)
	}
	if _, err := s.Victims(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Victims() after close = %v, want ErrClosed", err)
	}
	if _, err := s.DeleteExpired(ctx, 1, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("DeleteExpired() after close = %v, want ErrClosed", err)
	}
	if _, err := s.KeysWithTags(ctx, []string{"t"}); !errors.Is(err, ErrClosed) {
		t.Errorf("KeysWithTags() after close = %v, want ErrClosed", err)
	}
}

func TestSQLiteStoreOpenBadPath(t *testing.T) {
	t.Parallel()

	// The parent directory does not exist, so the driver cannot create the
	// file.
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "cache.db")
	if _, err := newSQLiteStore(context.Background(), path, 0); err == nil {
		t.Fatal("newSQLiteStore() succeeded with an uncreatable path")
	}
}

func TestTagsEncoding(t *testing.T) {
	t.Parallel()

	if got := encodeTags(nil); got != "[]" {
		t.Errorf("encodeTags(nil) = %q, want []", got)
	}
	if got := encodeTags([]string{"a", "b"}); got != `["a","b"]` {
		t.Errorf("encodeTags() = %q", got)
	}

	if got := decodeTags(`["a","b"]`); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("decodeTags() = %v", got)
	}
	if got := decodeTags("[]"); got != nil {
		t.Errorf("decodeTags(empty) = %v, want nil", got)
	}
	if got := decodeTags("not json"); got != nil {
		t.Errorf("decodeTags(garbage) = %v, want nil", got)
	}
	if got := decodeTags(`{"a":1}`); got != nil {
		t.Errorf("decodeTags(object) = %v, want nil", got)
	}
}
