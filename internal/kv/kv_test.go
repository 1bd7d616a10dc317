package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "sectionsCache", `[{"key":"A"}]`, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, err := store.Get(ctx, "sectionsCache")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != `[{"key":"A"}]` {
		t.Errorf("unexpected value %q", value)
	}

	if err := store.Set(ctx, "sectionsCache", "overwritten", 0); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if value, _ := store.Get(ctx, "sectionsCache"); value != "overwritten" {
		t.Errorf("expected overwritten value, got %q", value)
	}

	if err := store.Delete(ctx, "sectionsCache"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "sectionsCache"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "never-set"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(59 * time.Second)
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("value expired early: %v", err)
	}
	now = now.Add(time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient failed: %v", err)
	}
	defer client.Close()

	store := NewRedisStore(client, "bbs:")
	exerciseStore(t, store)

	if err := store.Set(context.Background(), "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, _ := s.Get("bbs:k"); got != "v" {
		t.Errorf("expected prefixed key in redis, got %q", got)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient failed: %v", err)
	}
	defer client.Close()
	store := NewRedisStore(client, "")
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(2 * time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStoreSurfacesServerErrors(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient failed: %v", err)
	}
	defer client.Close()
	store := NewRedisStore(client, "")

	s.SetError("LOADING")
	_, err = store.Get(context.Background(), "k")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a server error, got %v", err)
	}
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	if _, err := NewRedisClient("not a url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	store, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := store.Set(ctx, "lastSectionsFetch", "1700000000000", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	value, err := reopened.Get(ctx, "lastSectionsFetch")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if value != "1700000000000" {
		t.Errorf("unexpected value %q", value)
	}
}

func TestSQLiteStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer store.Close()

	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	if err := store.Set(ctx, "k", "v", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}
