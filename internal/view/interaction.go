package view

import (
	"math"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// Store is the part of the timeline store the view mutates.
type Store interface {
	Snapshot() timeline.State
	SetPlayhead(seconds float64)
	SetPlaying(playing bool)
	SetSelectedCutPoint(t *float64)
}

// FrameRequester shows the frame triplet around a time.
type FrameRequester interface {
	RequestFrameTriplet(t, delta float64)
}

// Timeline handles clicks on the scrubber track and its markers.
type Timeline struct {
	store  Store
	frames FrameRequester
}

func NewTimeline(store Store, frames FrameRequester) *Timeline {
	return &Timeline{store: store, frames: frames}
}

// Seek moves the playhead and stops playback.
func (t *Timeline) Seek(seconds float64) {
	t.store.SetPlayhead(seconds)
	t.store.SetPlaying(false)
}

// ClickTrack seeks to the position offsetX pixels into a track width
// pixels wide. It returns the target time, or false when the track has no
// duration or width.
func (t *Timeline) ClickTrack(offsetX, width float64) (float64, bool) {
	st := t.store.Snapshot()
	duration := st.ResolvedDuration()
	if duration <= 0 || width <= 0 || math.IsNaN(offsetX) {
		return 0, false
	}

	ratio := math.Min(math.Max(offsetX/width, 0), 1)
	target := ratio * duration
	t.Seek(target)
	if st.Session.ID != "" {
		t.frames.RequestFrameTriplet(target, 0)
	}
	return target, true
}

// ClickMarker seeks to a marker and selects it.
func (t *Timeline) ClickMarker(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return
	}
	t.Seek(seconds)
	t.store.SetSelectedCutPoint(&seconds)
	if t.store.Snapshot().Session.ID != "" {
		t.frames.RequestFrameTriplet(seconds, 0)
	}
}
