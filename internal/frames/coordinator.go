package frames

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
)

const (
	DefaultCacheLimit = 30
	// DefaultDelta is the neighbor offset of a triplet, one frame at 30fps.
	DefaultDelta = 1.0 / 30
	// MinMargin keeps requests inside the last decodable frame.
	MinMargin = 0.02

	errorMessage = "frame fetch failed"
)

var ErrNoSession = errors.New("no session loaded")

// SessionSource exposes the session the coordinator fetches frames for.
type SessionSource interface {
	SessionID() string
	DurationSeconds() float64
}

// Sink receives every preview the coordinator publishes.
type Sink interface {
	SetFramePreview(Preview)
}

type Options struct {
	CacheLimit int
	// Timeout bounds a single fetch. Zero means no timeout.
	Timeout time.Duration
}

// Stats describes the coordinator's current bookkeeping.
type Stats struct {
	SessionID    string      `json:"session_id"`
	CacheEntries int         `json:"cache_entries"`
	InFlight     int         `json:"in_flight"`
	Handles      HandleStats `json:"handles"`
}

// flight is one fetch in progress. Requests that find the key in flight
// join it instead of fetching again; each joiner receives its own reference
// on the resulting handle.
type flight struct {
	key     string
	done    chan struct{}
	joiners int
	handle  *Handle
	err     error
}

// slot is one position (center, prev or next) of a pending request.
type slot struct {
	time   float64
	key    string
	cached *Handle
	flight *flight
}

// Coordinator resolves requested times to frame handles. It owns the frame
// cache, the in-flight set and the latest-request marker, and publishes the
// displayed preview to its sink.
//
// Previews reach the sink in publication order, outside the coordinator
// lock. Until delivered, a queued preview holds its own handle references.
type Coordinator struct {
	fetcher Fetcher
	handles *HandleStore
	source  SessionSource
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	cache    *Cache
	inflight map[string]*flight
	seq      uint64
	latest   uint64
	shown    Preview
	session  string
	epoch    uint64
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool

	outbox   []Preview
	flushing bool
	idle     *sync.Cond
	busy     int
	settled  chan struct{}

	wg sync.WaitGroup
}

func NewCoordinator(fetcher Fetcher, handles *HandleStore, source SessionSource, sink Sink, opts Options, logger *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher:  fetcher,
		handles:  handles,
		source:   source,
		sink:     sink,
		timeout:  opts.Timeout,
		logger:   logger,
		cache:    NewCache(opts.CacheLimit, handles),
		inflight: make(map[string]*flight),
		session:  source.SessionID(),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// RequestFrame shows the single frame at t.
func (c *Coordinator) RequestFrame(t float64) {
	if !isFinite(t) {
		return
	}

	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.syncSessionLocked() {
		return
	}

	clamped := clampFrame(t, c.source.DurationSeconds(), math.Max(DefaultDelta, MinMargin))
	key := cutpoints.Key(clamped)
	req := c.nextRequestLocked()

	if h, ok := c.cache.Get(key); ok {
		c.publishLocked(Preview{Center: h, Time: timePtr(clamped)})
		return
	}

	_, joined := c.inflight[key]
	s := c.obtainLocked(clamped, key)
	if !joined {
		c.publishLocked(Preview{Center: c.shown.Center, Time: timePtr(clamped), Loading: true})
	}

	c.startLocked()
	go c.await(c.epoch, req, []slot{s}, false)
}

// RequestFrameTriplet shows the frame at t together with its neighbors at
// t-delta and t+delta. A non-positive delta selects DefaultDelta.
func (c *Coordinator) RequestFrameTriplet(t, delta float64) {
	if !isFinite(t) {
		return
	}
	if !isFinite(delta) || delta <= 0 {
		delta = DefaultDelta
	}

	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.syncSessionLocked() {
		return
	}

	duration := c.source.DurationSeconds()
	margin := math.Max(delta, MinMargin)
	center := clampFrame(t, duration, margin)
	times := [3]float64{
		center,
		clampFrame(center-delta, duration, margin),
		clampFrame(center+delta, duration, margin),
	}
	req := c.nextRequestLocked()

	slots := make([]slot, 3)
	pending := false
	for i, ts := range times {
		key := cutpoints.Key(ts)
		if h, ok := c.cache.Get(key); ok {
			c.handles.Retain(h)
			slots[i] = slot{time: ts, key: key, cached: h}
			continue
		}
		slots[i] = c.obtainLocked(ts, key)
		pending = true
	}

	if !pending {
		c.publishLocked(tripletPreview(slots, [3]*Handle{slots[0].cached, slots[1].cached, slots[2].cached}))
		for _, s := range slots {
			c.handles.Release(s.cached)
		}
		return
	}

	c.publishLocked(Preview{
		Center:   c.shown.Center,
		Prev:     c.shown.Prev,
		Next:     c.shown.Next,
		Time:     timePtr(times[0]),
		PrevTime: timePtr(times[1]),
		NextTime: timePtr(times[2]),
		Loading:  true,
	})

	c.startLocked()
	go c.await(c.epoch, req, slots, true)
}

// ClearFrame empties the displayed preview. When t is given and the
// displayed center has moved elsewhere, the call is ignored.
func (c *Coordinator) ClearFrame(t *float64) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if t != nil && c.shown.Time != nil && !c.shown.Matches(*t) {
		return
	}
	c.publishLocked(Preview{})
}

// ResetSession releases every cached and displayed handle, forgets in-flight
// work and cancels outstanding fetches. It picks up the source's current
// session.
func (c *Coordinator) ResetSession() {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resetLocked(c.source.SessionID())
}

// Close cancels outstanding fetches, releases every handle the coordinator
// holds and waits for its goroutines to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.Wait()
		return
	}
	c.closed = true
	c.cancel()
	c.epoch++
	c.cache.Clear()
	c.inflight = make(map[string]*flight)
	c.nextRequestLocked()
	c.publishLocked(Preview{})
	c.mu.Unlock()

	c.flush()
	c.Wait()
}

// Wait blocks until every outstanding fetch has settled and its preview
// has reached the sink.
func (c *Coordinator) Wait() {
	c.wg.Wait()
	c.flush()

	c.mu.Lock()
	for c.flushing || len(c.outbox) > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		SessionID:    c.session,
		CacheEntries: c.cache.Len(),
		InFlight:     len(c.inflight),
		Handles:      c.handles.Stats(),
	}
}

// Preview returns the currently displayed preview.
func (c *Coordinator) Preview() Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shown
}

// syncSessionLocked resets state when the source moved to another session.
// It reports whether requests can proceed.
func (c *Coordinator) syncSessionLocked() bool {
	if c.closed {
		return false
	}
	if id := c.source.SessionID(); id != c.session {
		c.resetLocked(id)
	}
	return c.session != ""
}

func (c *Coordinator) resetLocked(sessionID string) {
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.epoch++
	c.cache.Clear()
	c.inflight = make(map[string]*flight)
	c.nextRequestLocked()
	c.session = sessionID
	c.publishLocked(Preview{})

	c.logger.Info("frame cache reset", "session_id", sessionID)
}

// nextRequestLocked moves the latest-request marker to a new request.
// Results of every earlier request are discarded when they settle.
func (c *Coordinator) nextRequestLocked() uint64 {
	c.seq++
	c.latest = c.seq
	return c.seq
}

// obtainLocked joins the flight for key or starts a new one.
func (c *Coordinator) obtainLocked(t float64, key string) slot {
	if f, ok := c.inflight[key]; ok {
		f.joiners++
		return slot{time: t, key: key, flight: f}
	}

	f := &flight{key: key, done: make(chan struct{}), joiners: 1}
	c.inflight[key] = f

	c.startLocked()
	go c.run(c.ctx, c.epoch, c.session, f, t)
	return slot{time: t, key: key, flight: f}
}

// run performs the fetch for f and hands one reference to every joiner.
func (c *Coordinator) run(ctx context.Context, epoch uint64, sessionID string, f *flight, t float64) {
	defer c.finish()

	h, err := c.fetch(ctx, sessionID, t)

	c.mu.Lock()
	if c.inflight[f.key] == f {
		delete(c.inflight, f.key)
	}
	f.err = err
	if err == nil {
		if epoch == c.epoch && !c.closed {
			c.cache.Put(f.key, h)
		}
		for i := 0; i < f.joiners; i++ {
			c.handles.Retain(h)
		}
		f.handle = h
	} else if epoch == c.epoch && !errors.Is(err, context.Canceled) {
		c.logger.Warn("frame fetch failed",
			"session_id", sessionID,
			"time", t,
			"error", err,
		)
	}
	close(f.done)
	c.mu.Unlock()

	c.handles.Release(h)
}

func (c *Coordinator) fetch(ctx context.Context, sessionID string, t float64) (*Handle, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	frame, err := c.fetcher.FetchFrame(ctx, sessionID, t)
	if err != nil {
		return nil, err
	}
	return c.handles.Create(t, frame)
}

// await waits for the slots of one request and publishes the result if the
// request is still the latest one. Every reference held by the slots is
// released afterwards, so superseded results never leak.
func (c *Coordinator) await(epoch, req uint64, slots []slot, triplet bool) {
	defer c.finish()
	defer c.flush()

	for _, s := range slots {
		if s.flight != nil {
			<-s.flight.done
		}
	}

	results := make([]*Handle, len(slots))
	var failure error
	for i, s := range slots {
		switch {
		case s.cached != nil:
			results[i] = s.cached
		case s.flight.err != nil:
			failure = s.flight.err
		default:
			results[i] = s.flight.handle
		}
	}

	c.mu.Lock()
	current := epoch == c.epoch && !c.closed && c.latest == req
	if current {
		switch {
		case failure != nil && triplet:
			c.publishLocked(Preview{
				Center:   c.shown.Center,
				Prev:     c.shown.Prev,
				Next:     c.shown.Next,
				Time:     timePtr(slots[0].time),
				PrevTime: timePtr(slots[1].time),
				NextTime: timePtr(slots[2].time),
				Error:    errorMessage,
			})
		case failure != nil:
			c.publishLocked(Preview{Center: c.shown.Center, Time: timePtr(slots[0].time), Error: errorMessage})
		case triplet:
			c.publishLocked(tripletPreview(slots, [3]*Handle{results[0], results[1], results[2]}))
		default:
			c.publishLocked(Preview{Center: results[0], Time: timePtr(slots[0].time)})
		}
	}
	c.mu.Unlock()

	for _, h := range results {
		c.handles.Release(h)
	}
}

// publishLocked replaces the displayed preview, moving the display
// references from the old handles to the new ones, and queues p for the
// sink. The caller must flush after unlocking.
func (c *Coordinator) publishLocked(p Preview) {
	c.retainPreview(p)

	old := c.shown
	c.shown = p
	c.releasePreview(old)

	if c.sink != nil {
		c.retainPreview(p)
		c.outbox = append(c.outbox, p)
	}
}

// flush delivers queued previews in order. Only one goroutine delivers at a
// time; a caller arriving while another delivers leaves its previews to it.
func (c *Coordinator) flush() {
	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return
	}
	c.flushing = true
	for len(c.outbox) > 0 {
		p := c.outbox[0]
		c.outbox[0] = Preview{}
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		c.sink.SetFramePreview(p)
		c.releasePreview(p)

		c.mu.Lock()
	}
	c.outbox = nil
	c.flushing = false
	c.idle.Broadcast()
	c.notifySettledLocked()
	c.mu.Unlock()
}

// Settled returns a channel that is closed once no fetch is outstanding
// and every published preview has been delivered.
func (c *Coordinator) Settled() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled == nil {
		c.settled = make(chan struct{})
	}
	ch := c.settled
	c.notifySettledLocked()
	return ch
}

func (c *Coordinator) startLocked() {
	c.busy++
	c.wg.Add(1)
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.busy--
	c.notifySettledLocked()
	c.mu.Unlock()
	c.wg.Done()
}

func (c *Coordinator) notifySettledLocked() {
	if c.settled == nil || c.busy > 0 || c.flushing || len(c.outbox) > 0 {
		return
	}
	close(c.settled)
	c.settled = nil
}

func (c *Coordinator) retainPreview(p Preview) {
	c.handles.Retain(p.Center)
	c.handles.Retain(p.Prev)
	c.handles.Retain(p.Next)
}

func (c *Coordinator) releasePreview(p Preview) {
	c.handles.Release(p.Center)
	c.handles.Release(p.Prev)
	c.handles.Release(p.Next)
}

func tripletPreview(slots []slot, h [3]*Handle) Preview {
	return Preview{
		Center:   h[0],
		Prev:     h[1],
		Next:     h[2],
		Time:     timePtr(slots[0].time),
		PrevTime: timePtr(slots[1].time),
		NextTime: timePtr(slots[2].time),
	}
}

func clampFrame(t, duration, margin float64) float64 {
	if duration > 0 {
		return math.Max(0, math.Min(t, duration-margin))
	}
	return math.Max(0, t)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
