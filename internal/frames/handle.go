package frames

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// URLPrefix is the path under which materialized frames are served.
const URLPrefix = "/frames/"

// Handle is a locally materialized frame. Handles are reference counted by
// the HandleStore that created them; the underlying bytes or file are freed
// when the last reference is released.
type Handle struct {
	ID          string
	URL         string
	Time        float64
	Size        int64
	ContentType string

	path string
	data []byte
	refs int
}

func (h *Handle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string  `json:"id"`
		URL         string  `json:"url"`
		Time        float64 `json:"time"`
		Size        int64   `json:"size"`
		ContentType string  `json:"content_type"`
	}{h.ID, h.URL, h.Time, h.Size, h.ContentType})
}

// Open returns a reader over the frame bytes. The caller must hold a
// reference for as long as the reader is in use.
func (h *Handle) Open() (io.ReadSeekCloser, error) {
	if h.path != "" {
		return os.Open(h.path)
	}
	return nopCloser{bytes.NewReader(h.data)}, nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// HandleStats summarizes handle bookkeeping.
type HandleStats struct {
	Live     int    `json:"live"`
	Bytes    int64  `json:"bytes"`
	Created  uint64 `json:"created"`
	Released uint64 `json:"released"`
}

// HandleStore creates and frees frame handles. With a directory configured,
// frames are written to disk; otherwise they stay in memory.
type HandleStore struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	handles  map[string]*Handle
	onFree   func(*Handle)
	created  uint64
	released uint64
	bytes    int64
}

func NewHandleStore(dir string, logger *slog.Logger) (*HandleStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create frames dir: %w", err)
		}
		purgeDir(dir, logger)
	}
	return &HandleStore{
		dir:     dir,
		logger:  logger,
		handles: make(map[string]*Handle),
	}, nil
}

// OnFree registers a hook invoked once for every freed handle.
func (s *HandleStore) OnFree(fn func(*Handle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFree = fn
}

// Create materializes a frame with one reference held by the caller.
func (s *HandleStore) Create(t float64, f *Frame) (*Handle, error) {
	id := uuid.NewString()
	h := &Handle{
		ID:          id,
		URL:         URLPrefix + id,
		Time:        t,
		Size:        int64(len(f.Data)),
		ContentType: f.ContentType,
		refs:        1,
	}

	if s.dir != "" {
		h.path = filepath.Join(s.dir, id+extensionFor(f.ContentType))
		if err := os.WriteFile(h.path, f.Data, 0644); err != nil {
			return nil, fmt.Errorf("write frame: %w", err)
		}
	} else {
		h.data = f.Data
	}

	s.mu.Lock()
	s.handles[id] = h
	s.created++
	s.bytes += h.Size
	total := s.bytes
	s.mu.Unlock()

	s.logger.Debug("frame materialized",
		"handle_id", id,
		"time", t,
		"size", humanize.Bytes(uint64(h.Size)),
		"total", humanize.Bytes(uint64(total)),
	)
	return h, nil
}

// Retain adds a reference. Nil handles are ignored.
func (s *HandleStore) Retain(h *Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.refs <= 0 {
		s.logger.Error("retain on freed frame handle", "handle_id", h.ID)
		return
	}
	h.refs++
}

// Release drops a reference and frees the handle when none remain.
func (s *HandleStore) Release(h *Handle) {
	if h == nil {
		return
	}

	s.mu.Lock()
	if h.refs <= 0 {
		s.mu.Unlock()
		s.logger.Error("frame handle released twice", "handle_id", h.ID)
		return
	}
	h.refs--
	if h.refs > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.handles, h.ID)
	s.released++
	s.bytes -= h.Size
	onFree := s.onFree
	s.mu.Unlock()

	if h.path != "" {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove frame file", "handle_id", h.ID, "error", err)
		}
	}
	h.data = nil

	if onFree != nil {
		onFree(h)
	}
}

// Acquire looks up a live handle by ID and retains it.
func (s *HandleStore) Acquire(id string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return nil, false
	}
	h.refs++
	return h, true
}

// Refs returns the current reference count of h.
func (s *HandleStore) Refs(h *Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.refs
}

func (s *HandleStore) Stats() HandleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HandleStats{
		Live:     len(s.handles),
		Bytes:    s.bytes,
		Created:  s.created,
		Released: s.released,
	}
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// purgeDir removes frames left behind by a previous run.
func purgeDir(dir string, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logger.Info("removed stale frame files", "dir", dir, "count", removed)
	}
}
