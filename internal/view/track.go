// Package view turns timeline state into a render model for the scrubber
// track and translates pointer interaction into timeline operations.
package view

import (
	"fmt"
	"math"
	"sort"

	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
	"github.com/heimdex/heimdex-timeline/internal/timecode"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// markerEpsilon collapses markers that would overlap on the track.
const markerEpsilon = 1e-4

type MarkerKind string

const (
	MarkerAuto   MarkerKind = "auto"
	MarkerManual MarkerKind = "manual"
)

type Marker struct {
	Time     float64    `json:"time"`
	Key      string     `json:"key"`
	Kind     MarkerKind `json:"kind"`
	LeftPct  float64    `json:"left_pct"`
	Selected bool       `json:"selected"`
	Tooltip  string     `json:"tooltip"`
}

type SegmentBar struct {
	Index    int     `json:"index"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	LeftPct  float64 `json:"left_pct"`
	WidthPct float64 `json:"width_pct"`
	Hidden   bool    `json:"hidden"`
}

// Track is everything needed to draw the timeline.
type Track struct {
	Duration      float64      `json:"duration"`
	DurationLabel string       `json:"duration_label"`
	Markers       []Marker     `json:"markers"`
	Segments      []SegmentBar `json:"segments"`
	PlayheadPct   float64      `json:"playhead_pct"`
	PlayheadLabel string       `json:"playhead_label"`
}

// Render builds the track for st.
func Render(st timeline.State) Track {
	duration := st.ResolvedDuration()
	track := Track{
		Duration:      duration,
		DurationLabel: timecode.FormatDuration(duration),
		Markers:       markers(st, duration),
		Segments:      segments(st, duration),
		PlayheadLabel: timecode.FormatSeconds(st.PlayheadSeconds),
	}
	if duration > 0 {
		track.PlayheadPct = math.Min(math.Max(st.PlayheadSeconds, 0), duration) / duration * 100
	}
	return track
}

func markers(st timeline.State, duration float64) []Marker {
	out := []Marker{}
	if duration <= 0 {
		return out
	}

	var times []float64
	for _, v := range st.Cuts.All {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= duration {
			times = append(times, v)
		}
	}
	sort.Float64s(times)

	manual := make(map[string]bool, len(st.Cuts.Manual))
	for _, v := range st.Cuts.Manual {
		manual[cutpoints.Key(v)] = true
	}

	for i, t := range times {
		if i > 0 && math.Abs(t-out[len(out)-1].Time) < markerEpsilon {
			continue
		}
		key := cutpoints.Key(t)
		kind := MarkerAuto
		if manual[key] {
			kind = MarkerManual
		}
		out = append(out, Marker{
			Time:     t,
			Key:      key,
			Kind:     kind,
			LeftPct:  t / duration * 100,
			Selected: st.SelectedCutPoint != nil && math.Abs(*st.SelectedCutPoint-t) < cutpoints.Epsilon,
			Tooltip:  tooltip(kind, t),
		})
	}
	return out
}

func tooltip(kind MarkerKind, t float64) string {
	if kind == MarkerManual {
		return fmt.Sprintf("Manual cut at %s", timecode.FormatSeconds(t))
	}
	return fmt.Sprintf("Detected cut at %s", timecode.FormatSeconds(t))
}

func segments(st timeline.State, duration float64) []SegmentBar {
	out := []SegmentBar{}
	if duration <= 0 {
		return out
	}
	for _, seg := range st.Cuts.Segments() {
		out = append(out, SegmentBar{
			Index:    seg.Index,
			Start:    seg.Start,
			End:      seg.End,
			LeftPct:  seg.Start / duration * 100,
			WidthPct: seg.Duration() / duration * 100,
			Hidden:   seg.Hidden,
		})
	}
	return out
}
