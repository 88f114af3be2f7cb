package segmentation

import (
	"time"

	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// Segmentation is the persisted cut layout of one session.
type Segmentation struct {
	SessionID       string    `json:"session_id"`
	FileName        string    `json:"file_name"`
	VideoURL        string    `json:"video_url,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	TranscodeStatus string    `json:"transcode_status,omitempty"`
	SourceHash      string    `json:"source_video_file_hash,omitempty"`
	CutPoints       []float64 `json:"cut_points"`
	ManualCutPoints []float64 `json:"manual_cut_points"`
	HiddenSegments  []float64 `json:"hidden_segments"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Summary is a listing row.
type Summary struct {
	SessionID       string    `json:"session_id"`
	FileName        string    `json:"file_name"`
	DurationSeconds float64   `json:"duration_seconds"`
	CutCount        int       `json:"cut_count"`
	HiddenCount     int       `json:"hidden_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FromState captures the session and cut points of a timeline snapshot.
func FromState(st timeline.State) *Segmentation {
	return &Segmentation{
		SessionID:       st.Session.ID,
		FileName:        st.Session.FileName,
		VideoURL:        st.Session.VideoURL,
		DurationSeconds: st.Session.DurationSeconds,
		TranscodeStatus: st.Session.TranscodeStatus,
		SourceHash:      st.Session.SourceHash,
		CutPoints:       append([]float64{}, st.Cuts.All...),
		ManualCutPoints: append([]float64{}, st.Cuts.Manual...),
		HiddenSegments:  append([]float64{}, st.Cuts.Hidden...),
	}
}

// VideoLoad rebuilds the load request that restores this segmentation.
func (s *Segmentation) VideoLoad() timeline.VideoLoad {
	return timeline.VideoLoad{
		VideoURL:        s.VideoURL,
		FileName:        s.FileName,
		CutPoints:       s.CutPoints,
		ManualCutPoints: s.ManualCutPoints,
		DurationSeconds: s.DurationSeconds,
		HiddenSegments:  s.HiddenSegments,
		SessionID:       s.SessionID,
		TranscodeStatus: s.TranscodeStatus,
		SourceHash:      s.SourceHash,
	}
}

func (s *Segmentation) Cuts() cutpoints.Set {
	return cutpoints.New(s.CutPoints, s.ManualCutPoints, s.HiddenSegments)
}

// Segments returns the spans between consecutive cut points.
func (s *Segmentation) Segments() []cutpoints.Segment {
	return s.Cuts().Segments()
}
