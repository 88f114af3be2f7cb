package frames

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestHTTPFetcher_Success(t *testing.T) {
	var gotPath, gotTime string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTime = r.URL.Query().Get("time")
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("frame-bytes"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL+"/", 0, testLogger())
	frame, err := f.FetchFrame(context.Background(), "sess-1", 4.123)
	if err != nil {
		t.Fatalf("FetchFrame() error = %v", err)
	}

	if gotPath != "/api/frame/sess-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotTime != "4.123" {
		t.Errorf("time = %q, want 4.123", gotTime)
	}
	if string(frame.Data) != "frame-bytes" || frame.ContentType != "image/jpeg" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"not found", http.StatusNotFound, "session not found", false},
		{"server error", http.StatusInternalServerError, "ffmpeg crashed", true},
		{"bad gateway", http.StatusBadGateway, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := NewHTTPFetcher(server.URL, 0, testLogger())
			_, err := f.FetchFrame(context.Background(), "s", 1)

			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("error = %v, want *FetchError", err)
			}
			if fetchErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d", fetchErr.StatusCode)
			}
			if fetchErr.Body != tt.body {
				t.Errorf("Body = %q, want %q", fetchErr.Body, tt.body)
			}
			if fetchErr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v", fetchErr.IsRetryable())
			}
		})
	}
}

func TestHTTPFetcher_NoSession(t *testing.T) {
	f := NewHTTPFetcher("http://127.0.0.1:1", 0, testLogger())
	if _, err := f.FetchFrame(context.Background(), "", 1); !errors.Is(err, ErrNoSession) {
		t.Errorf("error = %v, want ErrNoSession", err)
	}
}

func TestHTTPFetcher_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := NewHTTPFetcher(server.URL, 0, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := f.FetchFrame(ctx, "s", 1); err == nil {
		t.Fatal("expected error after context deadline")
	}
}

func TestHTTPFetcher_FrameURL(t *testing.T) {
	f := NewHTTPFetcher("http://localhost:8000", 0, testLogger())
	got := f.FrameURL("a b", 1.0/30)
	want := "http://localhost:8000/api/frame/a%20b?time=" + strconv.FormatFloat(1.0/30, 'f', -1, 64)
	if got != want {
		t.Errorf("FrameURL() = %q, want %q", got, want)
	}
}
