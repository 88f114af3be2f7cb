package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-timeline/internal/frames"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive byte span of a single-range request.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) Header(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a Range header against a body of size bytes. Only the
// first range of a multi-range request is honored. An empty header yields
// nil.
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	spec, _, _ = strings.Cut(spec, ",")
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	var r ByteRange
	switch {
	case first == "":
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		r = ByteRange{Start: max(size-n, 0), End: size - 1}
	default:
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		end := size - 1
		if last != "" {
			if end, err = strconv.ParseInt(last, 10, 64); err != nil {
				return nil, ErrInvalidRange
			}
		}
		r = ByteRange{Start: start, End: end}
	}

	if r.Start > r.End || r.Start >= size {
		return nil, ErrUnsatisfiable
	}
	r.End = min(r.End, size-1)
	return &r, nil
}

// FrameServer serves materialized frame handles over HTTP.
type FrameServer struct {
	handles *frames.HandleStore
	logger  *slog.Logger
}

func NewFrameServer(handles *frames.HandleStore, logger *slog.Logger) *FrameServer {
	return &FrameServer{handles: handles, logger: logger}
}

// ServeFrame writes the handle with the given ID, honoring Range requests.
// The handle is retained for the duration of the response.
func (s *FrameServer) ServeFrame(w http.ResponseWriter, r *http.Request, id string) error {
	h, ok := s.handles.Acquire(id)
	if !ok {
		http.Error(w, "frame not found", http.StatusNotFound)
		return nil
	}
	defer s.handles.Release(h)

	body, err := h.Open()
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}
	defer body.Close()

	contentType := h.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")

	size := h.Size
	byteRange, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if byteRange == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, err := io.Copy(w, body)
		return err
	}

	if _, err := body.Seek(byteRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(byteRange.Length(), 10))
	w.Header().Set("Content-Range", byteRange.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	_, err = io.CopyN(w, body, byteRange.Length())
	return err
}
