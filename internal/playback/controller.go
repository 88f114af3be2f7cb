package playback

import (
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

const (
	// FrameStep is one frame at 30fps.
	FrameStep = 1.0 / 30
	// AutoPauseLead stops playback this far ahead of a cut.
	AutoPauseLead = 0.02
	// SeekThreshold is the playhead drift below which the element is left
	// to progress on its own.
	SeekThreshold = 0.1
)

// StateStore is the part of the timeline store the controller uses.
type StateStore interface {
	Snapshot() timeline.State
	SetPlayhead(seconds float64)
	SetPlaying(playing bool)
	SetDuration(seconds float64)
}

// FrameRequester shows the frame triplet around a time.
type FrameRequester interface {
	RequestFrameTriplet(t, delta float64)
}

type Option func(*Controller)

// WithTimeUpdateCallback registers fn for every ordinary time update.
func WithTimeUpdateCallback(fn func(seconds float64)) Option {
	return func(c *Controller) {
		c.onTimeUpdate = fn
	}
}

// Controller binds one media element to the shared playback state. State
// changes reach it through OnState; element events through the Handle*
// methods. The controller never holds its lock while calling the store.
type Controller struct {
	media        MediaElement
	store        StateStore
	frames       FrameRequester
	logger       *slog.Logger
	onTimeUpdate func(float64)

	mu             sync.Mutex
	lastTime       float64
	hasLastTime    bool
	lastAutoPaused float64
	hasAutoPaused  bool
}

func NewController(media MediaElement, store StateStore, frames FrameRequester, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		media:  media,
		store:  store,
		frames: frames,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync pushes st onto the element, as when the element first attaches.
func (c *Controller) Sync(st timeline.State) {
	c.media.SetPlaybackRate(st.PlaybackRate())
	if st.IsPlaying {
		c.play()
	} else {
		c.media.Pause()
	}
	c.syncPlayhead(st.PlayheadSeconds)
}

// OnState mirrors playing, rate and playhead changes onto the element.
func (c *Controller) OnState(prev, next timeline.State) {
	if prev.IsPlaying != next.IsPlaying {
		if next.IsPlaying {
			c.play()
		} else {
			c.media.Pause()
		}
	}
	if prev.PlaybackRate() != next.PlaybackRate() {
		c.media.SetPlaybackRate(next.PlaybackRate())
	}
	if prev.PlayheadSeconds != next.PlayheadSeconds {
		c.syncPlayhead(next.PlayheadSeconds)
	}
}

func (c *Controller) play() {
	c.mu.Lock()
	c.hasAutoPaused = false
	c.mu.Unlock()

	if err := c.media.Play(); err != nil {
		c.logger.Warn("media play failed", "error", err)
	}
}

func (c *Controller) syncPlayhead(playhead float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if math.Abs(c.media.CurrentTime()-playhead) > SeekThreshold {
		c.media.Seek(playhead)
	}
	c.lastTime = playhead
	c.hasLastTime = true
}

// HandleTimeUpdate processes a time-update event. While playing it stops
// exactly on the next cut point once the element comes within
// AutoPauseLead of it.
func (c *Controller) HandleTimeUpdate() {
	st := c.store.Snapshot()
	current := c.media.CurrentTime()

	c.mu.Lock()
	previous := current
	if c.hasLastTime {
		previous = c.lastTime
	}
	c.lastTime = current
	c.hasLastTime = true

	if st.IsPlaying && len(st.Cuts.All) > 0 {
		next, ok := st.Cuts.NextAfter(previous + cutpoints.Epsilon)
		if ok && !(c.hasAutoPaused && c.lastAutoPaused == next) && current >= next-AutoPauseLead {
			target := next
			if hint := c.durationHint(st); hint > 0 {
				target = math.Min(next, hint-AutoPauseLead)
			}
			c.media.Seek(target)
			c.lastAutoPaused = next
			c.hasAutoPaused = true
			c.mu.Unlock()

			c.store.SetPlayhead(target)
			c.store.SetPlaying(false)
			if st.Session.ID != "" {
				c.frames.RequestFrameTriplet(target, 0)
			}
			c.logger.Debug("auto-paused at cut point", "cut", next, "target", target)
			return
		}
	}
	c.mu.Unlock()

	c.store.SetPlayhead(current)
	if c.onTimeUpdate != nil {
		c.onTimeUpdate(current)
	}
}

// HandleLoadedMetadata publishes the element's duration.
func (c *Controller) HandleLoadedMetadata() {
	c.store.SetDuration(c.media.Duration())

	c.mu.Lock()
	c.hasLastTime = false
	c.mu.Unlock()
}

func (c *Controller) HandleEnded() {
	c.store.SetPlaying(false)
}

// HandleKey steps one frame on ArrowLeft/ArrowRight while paused. It
// returns true when the key was consumed and its default action should be
// suppressed.
func (c *Controller) HandleKey(ev KeyEvent) bool {
	if ev.Key != KeyArrowLeft && ev.Key != KeyArrowRight {
		return false
	}
	if ev.ContentEditable || editableTags[strings.ToUpper(ev.TargetTag)] {
		return false
	}
	if !c.media.HasMetadata() {
		return false
	}

	st := c.store.Snapshot()
	if st.IsPlaying || !c.media.Paused() {
		return false
	}

	current := c.media.CurrentTime()
	if !finite(current) {
		current = 0
	}
	delta := FrameStep
	if ev.Key == KeyArrowLeft {
		delta = -FrameStep
	}

	target := math.Max(current+delta, 0)
	hint := c.mediaDuration()
	if hint == 0 {
		hint = st.Session.DurationSeconds
	}
	if hint > 0 {
		target = math.Max(math.Min(target, hint-AutoPauseLead), 0)
	}

	c.media.Pause()
	c.store.SetPlaying(false)
	c.media.Seek(target)
	c.store.SetPlayhead(target)
	if st.Session.ID != "" {
		c.frames.RequestFrameTriplet(target, 0)
	}
	return true
}

// durationHint returns the session's duration, falling back to the
// element's.
func (c *Controller) durationHint(st timeline.State) float64 {
	if st.Session.DurationSeconds > 0 {
		return st.Session.DurationSeconds
	}
	return c.mediaDuration()
}

func (c *Controller) mediaDuration() float64 {
	if d := c.media.Duration(); finite(d) && d > 0 {
		return d
	}
	return 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
