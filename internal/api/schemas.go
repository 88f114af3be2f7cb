package api

import (
	"github.com/heimdex/heimdex-timeline/internal/frames"
	"github.com/heimdex/heimdex-timeline/internal/segmentation"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
	"github.com/heimdex/heimdex-timeline/internal/view"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	SessionID       string `json:"session_id,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	TranscodeStatus string `json:"transcode_status,omitempty"`
	CutCount        int    `json:"cut_count"`
	HiddenCount     int    `json:"hidden_count"`
	CacheEntries    int    `json:"cache_entries"`
	InFlight        int    `json:"in_flight"`
	LiveFrames      int    `json:"live_frames"`
	FrameBytes      int64  `json:"frame_bytes"`
	FrameBytesHuman string `json:"frame_bytes_human"`
	Players         int    `json:"players"`
}

type TimelineResponse struct {
	State            timeline.State `json:"state"`
	Track            view.Track     `json:"track"`
	PlaybackRate     float64        `json:"playback_rate"`
	CanDelete        bool           `json:"can_delete"`
	CanHide          bool           `json:"can_hide"`
	IsSelectedHidden bool           `json:"is_selected_hidden"`
	VisibleCutPoints []float64      `json:"visible_cut_points"`
}

type TranscodeStatusRequest struct {
	Status string `json:"transcode_status"`
}

type PlayingRequest struct {
	Playing bool `json:"playing"`
}

type PlayheadRequest struct {
	Seconds *float64 `json:"seconds"`
}

type RateResponse struct {
	Rate float64 `json:"rate"`
}

type TrackClickRequest struct {
	OffsetX float64 `json:"offset_x"`
	Width   float64 `json:"width"`
}

type SeekResponse struct {
	Seconds float64 `json:"seconds"`
}

// CutRequest addresses a cut point. A missing time means the playhead when
// adding and the selected cut point otherwise.
type CutRequest struct {
	Time *float64 `json:"time"`
}

type CutResponse struct {
	Time    float64 `json:"time"`
	Applied bool    `json:"applied"`
}

type PreviewRequest struct {
	Time    *float64 `json:"time"`
	Triplet bool     `json:"triplet"`
	Delta   float64  `json:"delta,omitempty"`
}

type PreviewResponse struct {
	Preview frames.Preview `json:"preview"`
}

type SegmentationsResponse struct {
	Segmentations []*segmentation.Summary `json:"segmentations"`
}

type ExportEDLRequest struct {
	// SessionID selects a saved segmentation; empty exports the loaded one.
	SessionID string  `json:"session_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	OutputDir string  `json:"output_dir,omitempty"`
	MediaPath string  `json:"media_path,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
