package frames

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxFrameBytes = 32 << 20

// Frame is a decoded-agnostic image payload returned by the backend.
type Frame struct {
	Data        []byte
	ContentType string
}

// Fetcher retrieves the frame nearest to t for a session.
type Fetcher interface {
	FetchFrame(ctx context.Context, sessionID string, t float64) (*Frame, error)
}

// FetchError represents a non-2xx answer from the frame endpoint.
type FetchError struct {
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("frame fetch failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *FetchError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPFetcher talks to the backend frame-extraction endpoint
// GET {base}/api/frame/{session}?time={seconds}.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher builds a fetcher. A zero timeout means requests are bounded
// only by their context.
func NewHTTPFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FrameURL returns the backend URL for the frame at t.
func (f *HTTPFetcher) FrameURL(sessionID string, t float64) string {
	q := url.Values{}
	q.Set("time", strconv.FormatFloat(t, 'f', -1, 64))
	return fmt.Sprintf("%s/api/frame/%s?%s", f.baseURL, url.PathEscape(sessionID), q.Encode())
}

func (f *HTTPFetcher) FetchFrame(ctx context.Context, sessionID string, t float64) (*Frame, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	endpoint := f.FrameURL(sessionID, t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	f.logger.Debug("frame fetched",
		"session_id", sessionID,
		"time", t,
		"bytes", len(data),
	)
	return &Frame{Data: data, ContentType: contentType}, nil
}
