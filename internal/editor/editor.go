// Package editor wires one timeline store to its frame coordinator, the
// track view and any attached media elements.
package editor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/frames"
	"github.com/heimdex/heimdex-timeline/internal/playback"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
	"github.com/heimdex/heimdex-timeline/internal/view"
)

type Options struct {
	// FramesDir holds materialized frames. Empty keeps them in memory.
	FramesDir    string
	CacheLimit   int
	FetchTimeout time.Duration
}

// Editor owns the state of one editing workspace.
type Editor struct {
	Store    *timeline.Store
	Frames   *frames.Coordinator
	Handles  *frames.HandleStore
	Timeline *view.Timeline

	logger *slog.Logger

	mu      sync.Mutex
	players map[uint64]func()
	nextID  uint64
	closed  bool
}

func New(fetcher frames.Fetcher, opts Options, logger *slog.Logger) (*Editor, error) {
	handles, err := frames.NewHandleStore(opts.FramesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("init frame handles: %w", err)
	}

	store := timeline.NewStore(logger)
	coord := frames.NewCoordinator(fetcher, handles, store, store, frames.Options{
		CacheLimit: opts.CacheLimit,
		Timeout:    opts.FetchTimeout,
	}, logger)

	return &Editor{
		Store:    store,
		Frames:   coord,
		Handles:  handles,
		Timeline: view.NewTimeline(store, coord),
		logger:   logger,
		players:  make(map[uint64]func()),
	}, nil
}

// LoadVideo initializes a session. Switching to another session drops
// every cached frame; reloading the same one only clears the preview.
func (e *Editor) LoadVideo(v timeline.VideoLoad) {
	previous := e.Store.SessionID()
	e.Store.LoadVideo(v)
	if v.SessionID != previous {
		e.Frames.ResetSession()
		return
	}
	e.Frames.ClearFrame(nil)
}

// ResetVideo clears the session and every frame held for it.
func (e *Editor) ResetVideo() {
	e.Store.ResetVideo()
	e.Frames.ResetSession()
}

// Track renders the current state.
func (e *Editor) Track() view.Track {
	return view.Render(e.Store.Snapshot())
}

// AttachMedia binds a media element to the store. The returned function
// detaches it.
func (e *Editor) AttachMedia(media playback.MediaElement, opts ...playback.Option) (*playback.Controller, func()) {
	ctrl := playback.NewController(media, e.Store, e.Frames, e.logger, opts...)
	ctrl.Sync(e.Store.Snapshot())
	unsubscribe := e.Store.Subscribe(ctrl.OnState)

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	var once sync.Once
	detach := func() {
		once.Do(func() {
			unsubscribe()
			e.mu.Lock()
			delete(e.players, id)
			e.mu.Unlock()
		})
	}
	e.players[id] = detach
	e.mu.Unlock()

	return ctrl, detach
}

// Players returns the number of attached media elements.
func (e *Editor) Players() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.players)
}

// Close detaches every media element and releases all frames.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	detaches := make([]func(), 0, len(e.players))
	for _, d := range e.players {
		detaches = append(detaches, d)
	}
	e.mu.Unlock()

	for _, d := range detaches {
		d()
	}
	e.Frames.Close()

	stats := e.Handles.Stats()
	e.logger.Info("editor closed", "frames_created", stats.Created, "frames_released", stats.Released)
}
