package frames

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandles(t *testing.T) *HandleStore {
	t.Helper()
	store, err := NewHandleStore("", testLogger())
	if err != nil {
		t.Fatalf("NewHandleStore() error = %v", err)
	}
	return store
}

func TestHandleStore_InMemoryLifecycle(t *testing.T) {
	store := newTestHandles(t)

	var freed []string
	store.OnFree(func(h *Handle) { freed = append(freed, h.ID) })

	h, err := store.Create(1.5, &Frame{Data: []byte("jpegdata"), ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if h.URL != URLPrefix+h.ID {
		t.Errorf("URL = %q", h.URL)
	}
	if h.Size != 8 {
		t.Errorf("Size = %d, want 8", h.Size)
	}

	store.Retain(h)
	store.Release(h)
	if len(freed) != 0 {
		t.Fatal("handle freed while still referenced")
	}

	r, err := h.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "jpegdata" {
		t.Errorf("data = %q", data)
	}

	store.Release(h)
	if len(freed) != 1 || freed[0] != h.ID {
		t.Fatalf("freed = %v", freed)
	}

	store.Release(h)
	if len(freed) != 1 {
		t.Error("double release freed the handle twice")
	}

	stats := store.Stats()
	if stats.Live != 0 || stats.Created != 1 || stats.Released != 1 || stats.Bytes != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestHandleStore_DiskBacked(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "leftover.jpg")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewHandleStore(dir, testLogger())
	if err != nil {
		t.Fatalf("NewHandleStore() error = %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale frame file was not purged")
	}

	h, err := store.Create(2, &Frame{Data: []byte("png"), ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if filepath.Ext(h.path) != ".png" {
		t.Errorf("path = %q, want .png extension", h.path)
	}
	if _, err := os.Stat(h.path); err != nil {
		t.Fatalf("frame file missing: %v", err)
	}

	store.Release(h)
	if _, err := os.Stat(h.path); !os.IsNotExist(err) {
		t.Error("frame file not removed after release")
	}
}

func TestHandleStore_Acquire(t *testing.T) {
	store := newTestHandles(t)

	h, _ := store.Create(0, &Frame{Data: []byte("x"), ContentType: "image/jpeg"})

	got, ok := store.Acquire(h.ID)
	if !ok || got != h {
		t.Fatal("Acquire() did not find live handle")
	}
	if store.Refs(h) != 2 {
		t.Errorf("Refs() = %d, want 2", store.Refs(h))
	}
	store.Release(got)
	store.Release(h)

	if _, ok := store.Acquire(h.ID); ok {
		t.Error("Acquire() returned a freed handle")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png; charset=binary", ".png"},
		{"image/webp", ".webp"},
		{"", ".bin"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType); got != tt.want {
			t.Errorf("extensionFor(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}
