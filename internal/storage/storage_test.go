package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

type record struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Count   int    `json:"count"`
}

func TestStorage_PutAndReadRaw(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)
	ctx := context.Background()

	want := record{ID: "s1", Content: "<b>你好</b>", Count: 2}
	if err := s.Put(ctx, []string{"s1"}, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	filePath := filepath.Join(tmpDir, "s1.json")
	raw, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("record file was not created: %v", err)
	}
	// Records are human readable: no HTML or unicode escaping.
	if !json.Valid(raw) || !containsAll(string(raw), "<b>你好</b>", "\n  ") {
		t.Errorf("unexpected record encoding: %s", raw)
	}

	var got record
	if err := getRecord(ctx, s, "s1", &got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != want {
		t.Errorf("Data mismatch: got %+v, want %+v", got, want)
	}
}

func TestStorage_PutOverwrites(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	if err := s.Put(ctx, []string{"s1"}, record{ID: "s1", Content: "a long first version", Count: 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, []string{"s1"}, record{ID: "s1", Count: 2}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got record
	if err := getRecord(ctx, s, "s1", &got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Count != 2 || got.Content != "" {
		t.Errorf("expected full overwrite, got %+v", got)
	}
}

func TestStorage_ReadRawNotFound(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")

	var r record
	err := getRecord(context.Background(), s, "missing", &r)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStorage_PutRawMatchesPut(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	want := record{ID: "r1", Content: "a & b", Count: 1}
	data, err := Marshal(want)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := s.PutRaw(ctx, []string{"raw"}, data); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}
	if err := s.Put(ctx, []string{"encoded"}, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	raw, _ := s.ReadRaw(ctx, []string{"raw"})
	encoded, _ := s.ReadRaw(ctx, []string{"encoded"})
	if string(raw) != string(encoded) {
		t.Errorf("PutRaw and Put differ:\n%s\n%s", raw, encoded)
	}
	if !strings.Contains(string(raw), "a & b") {
		t.Errorf("expected unescaped content, got %s", raw)
	}
}

func TestStorage_PutReadOnly(t *testing.T) {
	s := NewWithFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/data")

	if err := s.Put(context.Background(), []string{"s1"}, record{ID: "s1"}); err == nil {
		t.Fatal("expected Put on a read-only filesystem to fail")
	}
}

func TestStorage_PutCancelledContext(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, []string{"s1"}, record{ID: "s1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Exists(context.Background(), []string{"s1"}) {
		t.Error("record must not be written after cancellation")
	}
}

func TestStorage_Delete(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	if err := s.Put(ctx, []string{"toDelete"}, record{ID: "toDelete"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	existed, err := s.Delete(ctx, []string{"toDelete"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Error("Delete should report an existing record")
	}

	var r record
	if err := getRecord(ctx, s, "toDelete", &r); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
}

func TestStorage_DeleteNonexistent(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")

	existed, err := s.Delete(context.Background(), []string{"nonexistent"})
	if err != nil {
		t.Errorf("Delete of nonexistent item should not error: %v", err)
	}
	if existed {
		t.Error("Delete of nonexistent item should report false")
	}
}

func TestStorage_List(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, []string{id}, record{ID: id}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	items, err := s.List(ctx, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 items, got %d: %v", len(items), items)
	}
}

func TestStorage_ListEmpty(t *testing.T) {
	s := New(t.TempDir())

	items, err := s.List(context.Background(), []string{"nonexistent"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected empty list, got: %v", items)
	}
}

func TestStorage_Scan(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewWithFs(fs, "/data")
	ctx := context.Background()

	expected := map[string]record{
		"a": {ID: "a", Count: 1},
		"b": {ID: "b", Count: 2},
	}
	for id, r := range expected {
		if err := s.Put(ctx, []string{id}, r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	// Files without the record extension are ignored.
	if err := afero.WriteFile(fs, "/data/notes.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	scanned := make(map[string]record)
	err := s.Scan(ctx, nil, func(key string, data json.RawMessage, readErr error) error {
		if readErr != nil {
			return readErr
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		scanned[key] = r
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(scanned) != len(expected) {
		t.Errorf("Expected %d items, got %d", len(expected), len(scanned))
	}
	for id, exp := range expected {
		if got, ok := scanned[id]; !ok || got != exp {
			t.Errorf("Mismatch for %s: got %+v, want %+v", id, got, exp)
		}
	}
}

func TestStorage_ScanStopsOnError(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, []string{id}, record{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	stop := errors.New("stop")
	calls := 0
	err := s.Scan(ctx, nil, func(string, json.RawMessage, error) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("expected scan to stop after first error, calls=%d err=%v", calls, err)
	}
}

func TestStorage_Exists(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	if s.Exists(ctx, []string{"test"}) {
		t.Error("Item should not exist")
	}
	if err := s.Put(ctx, []string{"test"}, record{ID: "test"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !s.Exists(ctx, []string{"test"}) {
		t.Error("Item should exist")
	}
}

func TestStorage_ConcurrentAccess(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			if err := s.Put(ctx, []string{"concurrent"}, record{ID: "concurrent", Count: val}); err != nil {
				t.Errorf("Concurrent Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var got record
	if err := getRecord(ctx, s, "concurrent", &got); err != nil {
		t.Fatalf("read after concurrent writes failed: %v", err)
	}
}

func TestStorage_AtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)

	if err := s.Put(context.Background(), []string{"atomic"}, record{ID: "atomic"}); err != nil {
		t.Fatalf("Initial Put failed: %v", err)
	}

	tmpPath := filepath.Join(tmpDir, "atomic.json.tmp")
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("Temp file should not exist after successful write")
	}
}

func getRecord(ctx context.Context, s *Storage, key string, v any) error {
	data, err := s.ReadRaw(ctx, []string{key})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
