package cache

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type registryFactory struct {
	name string
	open func(t *testing.T) Registry
}

func registryFactories() []registryFactory {
	return []registryFactory{
		{name: DriverMemory, open: func(t *testing.T) Registry { return NewMemoryRegistry() }},
		{name: DriverDisk, open: func(t *testing.T) Registry { return newTestRegistry(t, DriverDisk) }},
		{name: DriverSQLite, open: func(t *testing.T) Registry { return newTestRegistry(t, DriverSQLite) }},
	}
}

func TestStorePutAndGet(t *testing.T) {
	for _, factory := range registryFactories() {
		t.Run(factory.name, func(t *testing.T) {
			registry := factory.open(t)
			store := mustOpen(t, registry, "palace-static-v1")
			id := mustIdentity(t, "https://app.local/static/css/main.css")

			header := http.Header{}
			header.Set("Content-Type", "text/css")
			payload := NewPayload(http.StatusOK, header, []byte("body{}"))
			if err := store.Put(context.Background(), id, payload); err != nil {
				t.Fatalf("put error: %v", err)
			}

			got, err := store.Get(context.Background(), id)
			if err != nil {
				t.Fatalf("get error: %v", err)
			}
			if !got.Equal(payload) {
				t.Fatalf("payload mismatch: %+v", got)
			}
			if got.StoredAt.IsZero() {
				t.Fatalf("StoredAt should be stamped on put")
			}
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for _, factory := range registryFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := mustOpen(t, factory.open(t), "palace-runtime-v1")
			_, err := store.Get(context.Background(), mustIdentity(t, "https://app.local/missing"))
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStorePutIsIdempotent(t *testing.T) {
	for _, factory := range registryFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := mustOpen(t, factory.open(t), "palace-runtime-v1")
			id := mustIdentity(t, "https://app.local/api/items")
			payload := NewPayload(http.StatusOK, http.Header{"Content-Type": {"application/json"}}, []byte(`[1]`))

			if err := store.Put(context.Background(), id, payload); err != nil {
				t.Fatalf("first put: %v", err)
			}
			once, _ := store.Get(context.Background(), id)
			onceLen, _ := store.Len(context.Background())

			if err := store.Put(context.Background(), id, payload); err != nil {
				t.Fatalf("second put: %v", err)
			}
			twice, _ := store.Get(context.Background(), id)
			twiceLen, _ := store.Len(context.Background())

			if !once.Equal(twice) {
				t.Fatalf("repeated put changed observable payload")
			}
			if onceLen != 1 || twiceLen != 1 {
				t.Fatalf("expected exactly one entry, got %d then %d", onceLen, twiceLen)
			}
		})
	}
}

func TestStoreConcurrentWritersLastWriteWins(t *testing.T) {
	for _, factory := range registryFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := mustOpen(t, factory.open(t), "palace-runtime-v1")
			id := mustIdentity(t, "https://app.local/api/race")

			bodies := []string{"a", "b", "c", "d"}
			var wg sync.WaitGroup
			for _, body := range bodies {
				wg.Add(1)
				go func(body string) {
					defer wg.Done()
					if err := store.Put(context.Background(), id, NewPayload(http.StatusOK, nil, []byte(body))); err != nil {
						t.Errorf("put %s: %v", body, err)
					}
				}(body)
			}
			wg.Wait()

			got, err := store.Get(context.Background(), id)
			if err != nil {
				t.Fatalf("get error: %v", err)
			}
			found := false
			for _, body := range bodies {
				if string(got.Body) == body {
					found = true
				}
			}
			if !found {
				t.Fatalf("stored body %q is not one of the written values", got.Body)
			}
			if n, _ := store.Len(context.Background()); n != 1 {
				t.Fatalf("expected single entry, got %d", n)
			}
		})
	}
}

func TestRegistryNamesAndDelete(t *testing.T) {
	for _, factory := range registryFactories() {
		t.Run(factory.name, func(t *testing.T) {
			registry := factory.open(t)
			for _, name := range []string{"palace-static-v2", "palace-static-v1", "palace-runtime-v1"} {
				mustOpen(t, registry, name)
			}

			names, err := registry.Names(context.Background())
			if err != nil {
				t.Fatalf("names error: %v", err)
			}
			want := []string{"palace-runtime-v1", "palace-static-v1", "palace-static-v2"}
			if len(names) != len(want) {
				t.Fatalf("expected %v, got %v", want, names)
			}
			for i := range want {
				if names[i] != want[i] {
					t.Fatalf("expected %v, got %v", want, names)
				}
			}

			deleted, err := registry.Delete(context.Background(), "palace-static-v1")
			if err != nil || !deleted {
				t.Fatalf("expected delete to succeed, got deleted=%v err=%v", deleted, err)
			}
			deleted, err = registry.Delete(context.Background(), "palace-static-v1")
			if err != nil || deleted {
				t.Fatalf("second delete should be a no-op, got deleted=%v err=%v", deleted, err)
			}

			names, _ = registry.Names(context.Background())
			if len(names) != 2 {
				t.Fatalf("expected 2 stores after delete, got %v", names)
			}
		})
	}
}

func TestDeletedStoreRejectsWrites(t *testing.T) {
	for _, factory := range registryFactories() {
		t.Run(factory.name, func(t *testing.T) {
			registry := factory.open(t)
			store := mustOpen(t, registry, "palace-runtime-v1")
			if _, err := registry.Delete(context.Background(), store.Name()); err != nil {
				t.Fatalf("delete error: %v", err)
			}
			err := store.Put(context.Background(), mustIdentity(t, "https://app.local/"), NewPayload(http.StatusOK, nil, nil))
			if !errors.Is(err, ErrStoreClosed) {
				t.Fatalf("expected ErrStoreClosed, got %v", err)
			}
		})
	}
}

func TestRegistryRejectsInvalidNames(t *testing.T) {
	registry := newTestRegistry(t, DriverDisk)
	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		if _, err := registry.Open(context.Background(), name); !errors.Is(err, ErrInvalidStoreName) {
			t.Fatalf("expected ErrInvalidStoreName for %q, got %v", name, err)
		}
	}
}

func TestDiskStoreIgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	registry, err := NewDiskRegistry(dir)
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	store := mustOpen(t, registry, "palace-static-v1")
	if err := os.WriteFile(filepath.Join(dir, "palace-static-v1", ".cache-123"), []byte("partial"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if n, err := store.Len(context.Background()); err != nil || n != 0 {
		t.Fatalf("temp files must not count as entries, got n=%d err=%v", n, err)
	}
}

func TestNewRegistryRejectsUnknownDriver(t *testing.T) {
	if _, err := NewRegistry("redis", t.TempDir()); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

// newTestRegistry returns a Registry backed by a temporary directory.
func newTestRegistry(t *testing.T, driver string) Registry {
	t.Helper()
	registry, err := NewRegistry(driver, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func mustOpen(t *testing.T, registry Registry, name string) Store {
	t.Helper()
	store, err := registry.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return store
}

func mustIdentity(t *testing.T, raw string) Identity {
	t.Helper()
	id, err := IdentityFor(raw, nil)
	if err != nil {
		t.Fatalf("identity %s: %v", raw, err)
	}
	return id
}
