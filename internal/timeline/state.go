package timeline

import (
	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
	"github.com/heimdex/heimdex-timeline/internal/frames"
)

const (
	TranscodePending = "pending"
	TranscodeReady   = "ready"
	TranscodeError   = "error"
)

// PlaybackRates are the selectable playback speeds, cycled in order.
var PlaybackRates = []float64{1, 0.5, 0.25}

// Session identifies one loaded video against the frame backend.
type Session struct {
	ID              string  `json:"session_id"`
	FileName        string  `json:"file_name"`
	VideoURL        string  `json:"video_url"`
	DurationSeconds float64 `json:"duration_seconds"`
	TranscodeStatus string  `json:"transcode_status"`
	SourceHash      string  `json:"source_video_file_hash,omitempty"`
}

// State is an immutable snapshot of the timeline.
type State struct {
	Session           Session        `json:"session"`
	Cuts              cutpoints.Set  `json:"cuts"`
	SelectedCutPoint  *float64       `json:"selected_cut_point"`
	PlayheadSeconds   float64        `json:"playhead_seconds"`
	PlaybackRateIndex int            `json:"playback_rate_index"`
	IsPlaying         bool           `json:"is_playing"`
	Preview           frames.Preview `json:"preview"`
	// Generation changes on every LoadVideo and ResetVideo.
	Generation uint64 `json:"generation"`
}

// VideoLoad initializes a session.
type VideoLoad struct {
	VideoURL        string    `json:"video_url"`
	FileName        string    `json:"file_name"`
	CutPoints       []float64 `json:"cut_points"`
	ManualCutPoints []float64 `json:"manual_cut_points,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	HiddenSegments  []float64 `json:"hidden_segments,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	TranscodeStatus string    `json:"transcode_status,omitempty"`
	SourceHash      string    `json:"source_video_file_hash,omitempty"`
}

func (s State) clone() State {
	s.Cuts = s.Cuts.Clone()
	if s.SelectedCutPoint != nil {
		v := *s.SelectedCutPoint
		s.SelectedCutPoint = &v
	}
	return s
}

// PlaybackRate returns the selected speed.
func (s State) PlaybackRate() float64 {
	return PlaybackRates[s.PlaybackRateIndex%len(PlaybackRates)]
}

// ResolvedDuration is the known duration, else the last cut point, else 0.
func (s State) ResolvedDuration() float64 {
	if s.Session.DurationSeconds > 0 {
		return s.Session.DurationSeconds
	}
	if n := len(s.Cuts.All); n > 0 {
		return s.Cuts.All[n-1]
	}
	return 0
}

// CanDelete reports whether the selected cut point may be removed.
func (s State) CanDelete() bool {
	return s.SelectedCutPoint != nil &&
		s.Cuts.Index(*s.SelectedCutPoint) >= 0 &&
		!s.Cuts.IsBoundary(*s.SelectedCutPoint)
}

// CanHide reports whether the segment after the selected cut point exists.
func (s State) CanHide() bool {
	if s.SelectedCutPoint == nil {
		return false
	}
	idx := s.Cuts.Index(*s.SelectedCutPoint)
	return idx >= 0 && idx < len(s.Cuts.All)-1
}

// IsSelectedHidden reports whether the segment after the selected cut point
// is hidden.
func (s State) IsSelectedHidden() bool {
	return s.SelectedCutPoint != nil && s.Cuts.IsHidden(*s.SelectedCutPoint)
}

// VisibleCutPoints returns the cut points that do not start a hidden segment.
func (s State) VisibleCutPoints() []float64 {
	visible := make([]float64, 0, len(s.Cuts.All))
	for _, c := range s.Cuts.All {
		if !s.Cuts.IsHidden(c) {
			visible = append(visible, c)
		}
	}
	return visible
}
