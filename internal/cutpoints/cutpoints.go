// Package cutpoints maintains the ordered set of segment boundaries on a
// timeline together with the manual and hidden-segment subsets.
//
// All mutations are validated and degrade to no-ops on invalid input; they
// report whether a state transition happened instead of returning errors.
package cutpoints

import (
	"math"
	"sort"
	"strconv"
)

// Epsilon is the tolerance under which two cut points are the same point.
const Epsilon = 1e-3

// Normalize drops non-finite values, sorts ascending and removes entries
// closer than Epsilon to the previously kept one.
func Normalize(values []float64) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)

	unique := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		if len(unique) == 0 || math.Abs(v-unique[len(unique)-1]) >= Epsilon {
			unique = append(unique, v)
		}
	}
	return unique
}

// Clamp bounds t to [0, duration], or to [0, +Inf) when duration is unknown
// (zero or negative).
func Clamp(t, duration float64) float64 {
	if duration > 0 {
		return math.Min(math.Max(t, 0), duration)
	}
	return math.Max(t, 0)
}

// Round rounds to millisecond precision.
func Round(t float64) float64 {
	return math.Round(t*1000) / 1000
}

// Key formats t with three decimals. Keys identify cut points and frames.
func Key(t float64) string {
	return strconv.FormatFloat(t, 'f', 3, 64)
}

// Segment is the span between two adjacent cut points.
type Segment struct {
	Index  int     `json:"index"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Hidden bool    `json:"hidden"`
}

// Duration returns End - Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Set holds every cut point plus the manual and hidden subsets.
// Slices are replaced on mutation, never modified in place.
type Set struct {
	All    []float64 `json:"cut_points"`
	Manual []float64 `json:"manual_cut_points"`
	Hidden []float64 `json:"hidden_segments"`
}

// New builds a Set from raw values. Manual and hidden entries that do not
// match a cut point are dropped, as is a hidden entry on the last cut point.
func New(all, manual, hidden []float64) Set {
	s := Set{All: Normalize(all)}

	s.Manual = make([]float64, 0)
	for _, v := range Normalize(manual) {
		if s.Index(v) >= 0 {
			s.Manual = append(s.Manual, v)
		}
	}

	s.Hidden = make([]float64, 0)
	for _, v := range Normalize(hidden) {
		idx := s.Index(v)
		if idx >= 0 && idx < len(s.All)-1 {
			s.Hidden = append(s.Hidden, v)
		}
	}
	return s
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	return Set{
		All:    append(make([]float64, 0, len(s.All)), s.All...),
		Manual: append(make([]float64, 0, len(s.Manual)), s.Manual...),
		Hidden: append(make([]float64, 0, len(s.Hidden)), s.Hidden...),
	}
}

// Index returns the position of the cut point within Epsilon of t, or -1.
func (s Set) Index(t float64) int {
	return indexOf(s.All, t)
}

// IsManual reports whether t was added by the user.
func (s Set) IsManual(t float64) bool {
	return indexOf(s.Manual, t) >= 0
}

// IsHidden reports whether the segment starting at t is excluded.
func (s Set) IsHidden(t float64) bool {
	return indexOf(s.Hidden, t) >= 0
}

// IsBoundary reports whether t is the first or last cut point.
func (s Set) IsBoundary(t float64) bool {
	if len(s.All) == 0 {
		return false
	}
	return near(s.All[0], t) || near(s.All[len(s.All)-1], t)
}

// Add inserts a manual cut point at t, clamped to the duration and rounded
// to the millisecond. It returns the stored value and false when t is
// invalid or a cut point already exists within Epsilon.
func (s *Set) Add(t, duration float64) (float64, bool) {
	if !isFinite(t) {
		return 0, false
	}
	rounded := Round(Clamp(t, duration))
	if s.Index(rounded) >= 0 {
		return rounded, false
	}

	s.Manual = Normalize(append(append([]float64{}, s.Manual...), rounded))
	s.All = Normalize(append(append([]float64{}, s.All...), rounded))
	return rounded, true
}

// Remove deletes the cut point at t from every view. The first and last
// cut points are fixed boundaries; removing them is rejected.
func (s *Set) Remove(t, duration float64) bool {
	if !isFinite(t) {
		return false
	}
	rounded := Round(Clamp(t, duration))
	if s.IsBoundary(rounded) {
		return false
	}

	s.All = without(s.All, rounded)
	s.Manual = without(s.Manual, rounded)
	s.Hidden = without(s.Hidden, rounded)
	return true
}

// ToggleHidden flips the hidden flag of the segment that starts at t.
// Unknown cut points and the last cut point are rejected.
func (s *Set) ToggleHidden(t, duration float64) bool {
	if !isFinite(t) {
		return false
	}
	rounded := Round(Clamp(t, duration))
	idx := s.Index(rounded)
	if idx < 0 || idx == len(s.All)-1 {
		return false
	}

	if s.IsHidden(rounded) {
		s.Hidden = without(s.Hidden, rounded)
	} else {
		s.Hidden = Normalize(append(append([]float64{}, s.Hidden...), rounded))
	}
	return true
}

// Segments lists the spans between adjacent cut points.
func (s Set) Segments() []Segment {
	if len(s.All) < 2 {
		return nil
	}
	segments := make([]Segment, 0, len(s.All)-1)
	for i := 0; i < len(s.All)-1; i++ {
		segments = append(segments, Segment{
			Index:  i,
			Start:  s.All[i],
			End:    s.All[i+1],
			Hidden: s.IsHidden(s.All[i]),
		})
	}
	return segments
}

// VisibleSegments lists the segments not marked hidden.
func (s Set) VisibleSegments() []Segment {
	var visible []Segment
	for _, seg := range s.Segments() {
		if !seg.Hidden {
			visible = append(visible, seg)
		}
	}
	return visible
}

// NextAfter returns the smallest cut point strictly greater than t.
func (s Set) NextAfter(t float64) (float64, bool) {
	idx := sort.Search(len(s.All), func(i int) bool { return s.All[i] > t })
	if idx >= len(s.All) {
		return 0, false
	}
	return s.All[idx], true
}

func indexOf(values []float64, t float64) int {
	for i, v := range values {
		if near(v, t) {
			return i
		}
	}
	return -1
}

func without(values []float64, t float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !near(v, t) {
			out = append(out, v)
		}
	}
	return out
}

func near(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
