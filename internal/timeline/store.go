// Package timeline holds the shared state of one editing session: the
// loaded video, its cut points, the playhead, playback flags and the frame
// preview. A Store is owned explicitly and injected into the components
// that read or mutate it.
package timeline

import (
	"log/slog"
	"math"
	"sync"

	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
	"github.com/heimdex/heimdex-timeline/internal/frames"
)

// Listener observes a state transition.
type Listener func(prev, next State)

type subscription struct {
	id uint64
	fn Listener
}

type change struct {
	prev, next State
}

// Store is the state container. Mutations apply atomically; listeners are
// notified in mutation order, outside the store lock. A mutation made from
// inside a listener is applied immediately and its notification is
// delivered after the current one.
type Store struct {
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	subs        []subscription
	nextSub     uint64
	queue       []change
	dispatching bool
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger: logger,
		state:  emptyState(0),
	}
}

func emptyState(generation uint64) State {
	return State{
		Cuts:       cutpoints.New(nil, nil, nil),
		Generation: generation,
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Session.ID
}

func (s *Store) DurationSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Session.DurationSeconds
}

// LoadVideo replaces the whole state with a freshly initialized session.
// Manual and hidden entries that do not match a cut point are dropped.
func (s *Store) LoadVideo(v VideoLoad) {
	s.update(func(st *State) bool {
		*st = State{
			Session: Session{
				ID:              v.SessionID,
				FileName:        v.FileName,
				VideoURL:        v.VideoURL,
				DurationSeconds: sanitizeDuration(v.DurationSeconds),
				TranscodeStatus: v.TranscodeStatus,
				SourceHash:      v.SourceHash,
			},
			Cuts:       cutpoints.New(v.CutPoints, v.ManualCutPoints, v.HiddenSegments),
			Generation: st.Generation + 1,
		}
		return true
	})

	s.logger.Info("video loaded",
		"session_id", v.SessionID,
		"file_name", v.FileName,
		"cut_points", len(v.CutPoints),
		"duration", v.DurationSeconds,
	)
}

// ResetVideo clears every field.
func (s *Store) ResetVideo() {
	s.update(func(st *State) bool {
		*st = emptyState(st.Generation + 1)
		return true
	})
}

func (s *Store) UpdateTranscodeStatus(status string) {
	s.update(func(st *State) bool {
		if st.Session.TranscodeStatus == status {
			return false
		}
		st.Session.TranscodeStatus = status
		return true
	})
}

// SetDuration records the media duration. Non-finite or negative values
// mark it unknown.
func (s *Store) SetDuration(seconds float64) {
	seconds = sanitizeDuration(seconds)
	s.update(func(st *State) bool {
		if st.Session.DurationSeconds == seconds {
			return false
		}
		st.Session.DurationSeconds = seconds
		return true
	})
}

// SetPlayhead moves the playhead, clamped to the known duration.
func (s *Store) SetPlayhead(seconds float64) {
	if math.IsNaN(seconds) {
		return
	}
	s.update(func(st *State) bool {
		clamped := cutpoints.Clamp(seconds, st.Session.DurationSeconds)
		if math.IsInf(clamped, 0) || st.PlayheadSeconds == clamped {
			return false
		}
		st.PlayheadSeconds = clamped
		return true
	})
}

func (s *Store) SetPlaying(playing bool) {
	s.update(func(st *State) bool {
		if st.IsPlaying == playing {
			return false
		}
		st.IsPlaying = playing
		return true
	})
}

// AddManualCutPoint inserts a cut point at t and selects it. It returns
// the stored value and whether the set changed.
func (s *Store) AddManualCutPoint(t float64) (float64, bool) {
	var added float64
	applied := s.update(func(st *State) bool {
		cuts := st.Cuts
		v, ok := cuts.Add(t, st.Session.DurationSeconds)
		if !ok {
			return false
		}
		added = v
		st.Cuts = cuts
		st.SelectedCutPoint = &v
		return true
	})
	return added, applied
}

// RemoveCutPoint deletes the cut point at t and clears the selection.
// The first and last cut points cannot be removed.
func (s *Store) RemoveCutPoint(t float64) bool {
	return s.update(func(st *State) bool {
		cuts := st.Cuts
		if !cuts.Remove(t, st.Session.DurationSeconds) {
			return false
		}
		st.Cuts = cuts
		st.SelectedCutPoint = nil
		return true
	})
}

// ToggleHideSegmentAtCut flips the hidden flag of the segment starting at t.
func (s *Store) ToggleHideSegmentAtCut(t float64) bool {
	return s.update(func(st *State) bool {
		cuts := st.Cuts
		if !cuts.ToggleHidden(t, st.Session.DurationSeconds) {
			return false
		}
		st.Cuts = cuts
		return true
	})
}

// SetSelectedCutPoint selects t, or clears the selection when t is nil.
func (s *Store) SetSelectedCutPoint(t *float64) {
	if t != nil && (math.IsNaN(*t) || math.IsInf(*t, 0)) {
		return
	}
	s.update(func(st *State) bool {
		if t == nil {
			st.SelectedCutPoint = nil
			return true
		}
		v := *t
		st.SelectedCutPoint = &v
		return true
	})
}

// CyclePlaybackRate advances to the next rate and returns it.
func (s *Store) CyclePlaybackRate() float64 {
	var rate float64
	s.update(func(st *State) bool {
		st.PlaybackRateIndex = (st.PlaybackRateIndex + 1) % len(PlaybackRates)
		rate = PlaybackRates[st.PlaybackRateIndex]
		return true
	})
	return rate
}

func (s *Store) SetFramePreview(p frames.Preview) {
	s.update(func(st *State) bool {
		st.Preview = p
		return true
	})
}

// update applies fn under the lock and, when it reports a change, queues
// and delivers the notification.
func (s *Store) update(fn func(*State) bool) bool {
	s.mu.Lock()
	prev := s.state.clone()
	if !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, change{prev: prev, next: s.state.clone()})
	s.dispatchLocked()
	return true
}

// dispatchLocked drains the notification queue. It is entered with the
// lock held and returns with it released. Only one goroutine drains at a
// time; others leave their change queued for it.
func (s *Store) dispatchLocked() {
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		subs := append([]subscription(nil), s.subs...)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.fn(c.prev, c.next)
		}

		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

func sanitizeDuration(seconds float64) float64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0
	}
	return seconds
}
