package frames

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
)

type fakeSource struct {
	mu       sync.Mutex
	id       string
	duration float64
}

func (s *fakeSource) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *fakeSource) DurationSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *fakeSource) set(id string, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.duration = duration
}

type recordingSink struct {
	mu       sync.Mutex
	previews []Preview
}

func (s *recordingSink) SetFramePreview(p Preview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews = append(s.previews, p)
}

func (s *recordingSink) last() Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.previews) == 0 {
		return Preview{}
	}
	return s.previews[len(s.previews)-1]
}

func (s *recordingSink) all() []Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Preview(nil), s.previews...)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}
	fail  map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: make(map[string]int),
		gates: make(map[string]chan struct{}),
		fail:  make(map[string]bool),
	}
}

func (f *fakeFetcher) gate(t float64) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[cutpoints.Key(t)] = ch
	return ch
}

func (f *fakeFetcher) failAt(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[cutpoints.Key(t)] = true
}

func (f *fakeFetcher) count(t float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cutpoints.Key(t)]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) FetchFrame(ctx context.Context, sessionID string, t float64) (*Frame, error) {
	key := cutpoints.Key(t)
	f.mu.Lock()
	f.calls[key]++
	gate := f.gates[key]
	fail := f.fail[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, &FetchError{StatusCode: http.StatusInternalServerError, Body: "boom"}
	}
	return &Frame{Data: []byte(sessionID + "@" + key), ContentType: "image/jpeg"}, nil
}

type harness struct {
	source  *fakeSource
	sink    *recordingSink
	fetcher *fakeFetcher
	handles *HandleStore
	coord   *Coordinator

	mu    sync.Mutex
	freed map[string]int
	times map[string]float64
}

func newHarness(t *testing.T, sessionID string, duration float64) *harness {
	t.Helper()
	h := &harness{
		source:  &fakeSource{id: sessionID, duration: duration},
		sink:    &recordingSink{},
		fetcher: newFakeFetcher(),
		handles: newTestHandles(t),
		freed:   make(map[string]int),
		times:   make(map[string]float64),
	}
	h.handles.OnFree(func(handle *Handle) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.freed[handle.ID]++
		h.times[handle.ID] = handle.Time
	})
	h.coord = NewCoordinator(h.fetcher, h.handles, h.source, h.sink, Options{}, testLogger())
	t.Cleanup(h.coord.Close)
	return h
}

func (h *harness) freedAt(t float64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, ts := range h.times {
		if cutpoints.Key(ts) == cutpoints.Key(t) {
			n += h.freed[id]
		}
	}
	return n
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCoordinator_NoSessionIsNoop(t *testing.T) {
	h := newHarness(t, "", 10)

	h.coord.RequestFrame(1)
	h.coord.RequestFrameTriplet(1, 0)
	h.coord.Wait()

	if h.fetcher.total() != 0 {
		t.Errorf("fetches = %d, want 0", h.fetcher.total())
	}
	if len(h.sink.all()) != 0 {
		t.Errorf("published %d previews, want 0", len(h.sink.all()))
	}
}

func TestCoordinator_RequestFrame(t *testing.T) {
	h := newHarness(t, "s1", 10)

	gate := h.fetcher.gate(2)
	h.coord.RequestFrame(2)

	loading := h.sink.last()
	if !loading.Loading || loading.Time == nil || *loading.Time != 2 {
		t.Fatalf("loading preview = %+v", loading)
	}

	close(gate)
	h.coord.Wait()

	got := h.sink.last()
	if got.Loading || got.Error != "" {
		t.Fatalf("final preview = %+v", got)
	}
	if got.Center == nil || got.Center.Time != 2 {
		t.Fatalf("center = %+v", got.Center)
	}
	if got.Prev != nil || got.Next != nil {
		t.Error("single request should leave prev/next empty")
	}

	published := len(h.sink.all())
	h.coord.RequestFrame(2)
	if h.fetcher.count(2) != 1 {
		t.Errorf("cache hit fetched again: %d", h.fetcher.count(2))
	}
	if len(h.sink.all()) != published+1 {
		t.Error("cache hit should publish synchronously")
	}
	if h.sink.last().Loading {
		t.Error("cache hit published a loading state")
	}
}

func TestCoordinator_ClampsToDuration(t *testing.T) {
	h := newHarness(t, "s1", 10)

	h.coord.RequestFrame(50)
	h.coord.Wait()

	got := h.sink.last()
	want := 10 - 1.0/30
	if got.Time == nil || !approx(*got.Time, want) {
		t.Fatalf("time = %v, want %v", got.Time, want)
	}

	h.coord.RequestFrame(-4)
	h.coord.Wait()
	if got := h.sink.last(); got.Time == nil || *got.Time != 0 {
		t.Errorf("time = %v, want 0", got.Time)
	}
}

func TestCoordinator_CacheCapacityAndEviction(t *testing.T) {
	h := newHarness(t, "s1", 0)

	for i := 0; i < 31; i++ {
		h.coord.RequestFrame(float64(i))
		h.coord.Wait()
	}

	if stats := h.coord.Stats(); stats.CacheEntries != DefaultCacheLimit {
		t.Errorf("CacheEntries = %d, want %d", stats.CacheEntries, DefaultCacheLimit)
	}
	if n := h.freedAt(0); n != 1 {
		t.Errorf("first handle freed %d times, want 1", n)
	}
	for i := 1; i < 31; i++ {
		if n := h.freedAt(float64(i)); n != 0 {
			t.Errorf("handle for %d freed while cached", i)
		}
	}

	// Evicted keys are fetched again.
	h.coord.RequestFrame(0)
	h.coord.Wait()
	if h.fetcher.count(0) != 2 {
		t.Errorf("fetch count for evicted key = %d, want 2", h.fetcher.count(0))
	}
}

func TestCoordinator_InFlightDedupe(t *testing.T) {
	h := newHarness(t, "s1", 10)

	gate := h.fetcher.gate(3)
	h.coord.RequestFrame(3)
	h.coord.RequestFrame(3)
	h.coord.RequestFrameTriplet(3, 0)

	if got := h.coord.Stats().InFlight; got < 1 {
		t.Errorf("InFlight = %d, want the gated key in flight", got)
	}

	close(gate)
	h.coord.Wait()

	if n := h.fetcher.count(3); n != 1 {
		t.Errorf("fetches for 3.000 = %d, want 1", n)
	}
	got := h.sink.last()
	if got.Center == nil || got.Center.Time != 3 || got.Prev == nil || got.Next == nil {
		t.Fatalf("final preview = %+v", got)
	}
	if h.coord.Stats().InFlight != 0 {
		t.Error("in-flight set not drained")
	}
}

func TestCoordinator_JoinedRequestStillPublishes(t *testing.T) {
	h := newHarness(t, "s1", 10)

	next := 4 + DefaultDelta
	gate := h.fetcher.gate(next)
	h.coord.RequestFrameTriplet(4, 0)
	// The single request joins the triplet's neighbor fetch and supersedes it.
	h.coord.RequestFrame(next)
	close(gate)
	h.coord.Wait()

	got := h.sink.last()
	if got.Time == nil || cutpoints.Key(*got.Time) != cutpoints.Key(next) || got.Loading {
		t.Fatalf("final preview = %+v", got)
	}
	if h.fetcher.count(next) != 1 {
		t.Errorf("neighbor fetched %d times", h.fetcher.count(next))
	}
}

func TestCoordinator_StaleTripletSuppressed(t *testing.T) {
	tests := []struct {
		name       string
		staleFirst bool
	}{
		{"stale resolves first", true},
		{"stale resolves last", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "s1", 20)

			var staleGates, freshGates []chan struct{}
			for _, ts := range []float64{5 - DefaultDelta, 5, 5 + DefaultDelta} {
				staleGates = append(staleGates, h.fetcher.gate(ts))
			}
			for _, ts := range []float64{8 - DefaultDelta, 8, 8 + DefaultDelta} {
				freshGates = append(freshGates, h.fetcher.gate(ts))
			}

			h.coord.RequestFrameTriplet(5, 0)
			h.coord.RequestFrameTriplet(8, 0)

			first, second := freshGates, staleGates
			if tt.staleFirst {
				first, second = staleGates, freshGates
			}
			for _, g := range first {
				close(g)
			}
			for _, g := range second {
				close(g)
			}
			h.coord.Wait()

			got := h.sink.last()
			if got.Time == nil || *got.Time != 8 || got.Loading {
				t.Fatalf("final preview = %+v", got)
			}
			if got.Prev == nil || got.Next == nil {
				t.Fatal("neighbors missing from final preview")
			}

			for _, p := range h.sink.all() {
				for _, handle := range []*Handle{p.Center, p.Prev, p.Next} {
					if handle != nil && math.Abs(handle.Time-5) < 0.1 {
						t.Fatalf("stale frame at %v was displayed", handle.Time)
					}
				}
			}

			h.coord.Close()
			if stats := h.handles.Stats(); stats.Live != 0 || stats.Created != stats.Released {
				t.Errorf("handles after Close = %+v", stats)
			}
		})
	}
}

func TestCoordinator_ErrorRetainsPreviousFrame(t *testing.T) {
	h := newHarness(t, "s1", 10)

	h.coord.RequestFrame(1)
	h.coord.Wait()
	shown := h.sink.last().Center

	h.fetcher.failAt(2)
	h.coord.RequestFrame(2)
	h.coord.Wait()

	got := h.sink.last()
	if got.Error == "" || got.Loading {
		t.Fatalf("preview = %+v, want error state", got)
	}
	if got.Center != shown {
		t.Error("previous frame not retained on error")
	}
	if got.Time == nil || *got.Time != 2 {
		t.Errorf("time = %v, want 2", got.Time)
	}
	if h.coord.Stats().InFlight != 0 {
		t.Error("failed key still in flight")
	}

	h.coord.RequestFrame(3)
	h.coord.Wait()
	if got := h.sink.last(); got.Error != "" {
		t.Errorf("error not cleared by a successful fetch: %q", got.Error)
	}
}

func TestCoordinator_TripletErrorRetainsPreviousFrames(t *testing.T) {
	h := newHarness(t, "s1", 10)

	h.coord.RequestFrameTriplet(1, 0)
	h.coord.Wait()
	before := h.sink.last()

	h.fetcher.failAt(6 + DefaultDelta)
	h.coord.RequestFrameTriplet(6, 0)
	h.coord.Wait()

	got := h.sink.last()
	if got.Error == "" {
		t.Fatal("expected error state")
	}
	if got.Center != before.Center || got.Prev != before.Prev || got.Next != before.Next {
		t.Error("previous triplet not retained")
	}
	if got.Time == nil || *got.Time != 6 {
		t.Errorf("time = %v, want 6", got.Time)
	}
}

func TestCoordinator_ClearFrame(t *testing.T) {
	h := newHarness(t, "s1", 10)

	h.coord.RequestFrame(1)
	h.coord.Wait()

	other := 2.0
	h.coord.ClearFrame(&other)
	if h.sink.last().Center == nil {
		t.Fatal("ClearFrame with a different time cleared the preview")
	}

	near := 1.0005
	h.coord.ClearFrame(&near)
	if !h.sink.last().IsEmpty() {
		t.Fatalf("preview = %+v, want empty", h.sink.last())
	}

	h.coord.RequestFrame(3)
	h.coord.Wait()
	h.coord.ClearFrame(nil)
	if !h.sink.last().IsEmpty() {
		t.Error("ClearFrame(nil) did not clear")
	}
	// The cache still holds both frames.
	if h.coord.Stats().Handles.Live != 2 {
		t.Errorf("live handles = %d, want 2", h.coord.Stats().Handles.Live)
	}
}

func TestCoordinator_SessionResetReleasesEverything(t *testing.T) {
	h := newHarness(t, "s1", 10)

	for _, ts := range []float64{1, 2, 3} {
		h.coord.RequestFrameTriplet(ts, 0)
	}
	h.coord.Wait()
	if h.coord.Stats().CacheEntries == 0 {
		t.Fatal("nothing cached")
	}

	h.source.set("s2", 10)
	h.coord.ResetSession()

	stats := h.coord.Stats()
	if stats.SessionID != "s2" || stats.CacheEntries != 0 || stats.InFlight != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.Handles.Live != 0 {
		t.Errorf("live handles = %d, want 0", stats.Handles.Live)
	}
	if !h.sink.last().IsEmpty() {
		t.Error("preview not reset")
	}
}

func TestCoordinator_SessionChangeDetectedOnRequest(t *testing.T) {
	h := newHarness(t, "s1", 10)

	gate := h.fetcher.gate(4)
	h.coord.RequestFrame(4)

	h.source.set("s2", 10)
	h.coord.RequestFrame(5)
	h.coord.Wait()
	close(gate)

	got := h.sink.last()
	if got.Center == nil || got.Center.Time != 5 {
		t.Fatalf("final preview = %+v", got)
	}
	for _, p := range h.sink.all() {
		if p.Center != nil && p.Center.Time == 4 {
			t.Fatal("frame from the previous session was displayed")
		}
	}
	if h.coord.Stats().SessionID != "s2" {
		t.Error("session not switched")
	}
}

func TestCoordinator_ExactlyOnceRelease(t *testing.T) {
	h := newHarness(t, "s1", 12)

	h.fetcher.failAt(7)
	gate := h.fetcher.gate(9)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				ts := float64((i*7+w*3)%12) + 0.25*float64(w)
				if i%3 == 0 {
					h.coord.RequestFrame(ts)
				} else {
					h.coord.RequestFrameTriplet(ts, 0)
				}
			}
		}(w)
	}
	wg.Wait()

	h.source.set("s2", 12)
	h.coord.RequestFrameTriplet(2, 0)
	h.coord.RequestFrameTriplet(9, 0)
	h.coord.Close()
	close(gate)

	stats := h.handles.Stats()
	if stats.Live != 0 {
		t.Errorf("live handles after Close = %d", stats.Live)
	}
	if stats.Created != stats.Released {
		t.Errorf("created %d, released %d", stats.Created, stats.Released)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if uint64(len(h.freed)) != stats.Created {
		t.Errorf("freed %d distinct handles, created %d", len(h.freed), stats.Created)
	}
	for id, n := range h.freed {
		if n != 1 {
			t.Errorf("handle %s freed %d times", id, n)
		}
	}
}

func TestCoordinator_TripletAgainstBackend(t *testing.T) {
	var mu sync.Mutex
	var times []float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/frame/sess-42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		ts, err := strconv.ParseFloat(r.URL.Query().Get("time"), 64)
		if err != nil {
			t.Errorf("bad time param: %v", err)
		}
		mu.Lock()
		times = append(times, ts)
		mu.Unlock()
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8})
	}))
	defer server.Close()

	source := &fakeSource{id: "sess-42", duration: 10}
	sink := &recordingSink{}
	handles := newTestHandles(t)
	coord := NewCoordinator(NewHTTPFetcher(server.URL, 0, testLogger()), handles, source, sink, Options{}, testLogger())
	defer coord.Close()

	coord.RequestFrameTriplet(4.123, 0)
	coord.Wait()

	mu.Lock()
	got := append([]float64(nil), times...)
	mu.Unlock()
	sort.Float64s(got)

	want := []float64{4.123 - DefaultDelta, 4.123, 4.123 + DefaultDelta}
	if len(got) != 3 {
		t.Fatalf("fetched %v, want 3 times", got)
	}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("time[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	p := sink.last()
	if p.Center == nil || p.Prev == nil || p.Next == nil || p.Loading {
		t.Fatalf("preview = %+v", p)
	}
	if p.Center.ContentType != "image/jpeg" {
		t.Errorf("content type = %q", p.Center.ContentType)
	}

	// Near the end all positions clamp below duration-margin.
	coord.RequestFrameTriplet(9.99, 0)
	coord.Wait()
	p = sink.last()
	limit := 10 - DefaultDelta
	if !approx(*p.Time, limit) || !approx(*p.NextTime, limit) {
		t.Errorf("time = %v next = %v, want both %v", *p.Time, *p.NextTime, limit)
	}
	if p.Center != p.Next {
		t.Error("center and next share a key and should share a handle")
	}
}

// slowSink blocks delivery of the first preview until released and reads
// coordinator state while delivering.
type slowSink struct {
	coord   *Coordinator
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	previews []Preview
	blocked  bool
}

func (s *slowSink) SetFramePreview(p Preview) {
	s.mu.Lock()
	first := !s.blocked
	s.blocked = true
	s.mu.Unlock()

	if first {
		close(s.entered)
		<-s.release
	}
	s.coord.Stats()
	s.coord.Preview()

	s.mu.Lock()
	s.previews = append(s.previews, p)
	s.mu.Unlock()
}

func TestCoordinator_SlowSinkDoesNotBlockRequests(t *testing.T) {
	source := &fakeSource{id: "s1", duration: 10}
	handles := newTestHandles(t)
	sink := &slowSink{entered: make(chan struct{}), release: make(chan struct{})}
	coord := NewCoordinator(newFakeFetcher(), handles, source, sink, Options{}, testLogger())
	sink.coord = coord

	go coord.RequestFrame(1)
	<-sink.entered

	done := make(chan struct{})
	go func() {
		coord.RequestFrame(2)
		coord.RequestFrameTriplet(3, 0)
		coord.Stats()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("requests blocked behind a slow sink")
	}

	close(sink.release)
	coord.Wait()

	sink.mu.Lock()
	previews := append([]Preview(nil), sink.previews...)
	sink.mu.Unlock()

	last := previews[len(previews)-1]
	if last.Loading || last.Center == nil || last.Time == nil || *last.Time != 3 {
		t.Fatalf("last delivered preview = %+v, want the loaded triplet at 3", last)
	}
	if first := previews[0]; !first.Loading || first.Time == nil || *first.Time != 1 {
		t.Errorf("first delivered preview = %+v, want loading at 1", first)
	}
	if !coord.Preview().Matches(3) {
		t.Error("coordinator preview should match the last delivery")
	}

	coord.Close()
	if stats := handles.Stats(); stats.Live != 0 || stats.Created != stats.Released {
		t.Errorf("handles after Close = %+v", stats)
	}
}

func TestCoordinator_Settled(t *testing.T) {
	h := newHarness(t, "s1", 10)

	select {
	case <-h.coord.Settled():
	default:
		t.Fatal("idle coordinator should be settled")
	}

	gate := h.fetcher.gate(5)
	h.coord.RequestFrame(5)
	settled := h.coord.Settled()

	select {
	case <-settled:
		t.Fatal("settled while a fetch is outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("never settled after the fetch completed")
	}
	if got := h.sink.last(); got.Loading || got.Center == nil {
		t.Errorf("preview after settle = %+v, want the loaded frame", got)
	}
}
