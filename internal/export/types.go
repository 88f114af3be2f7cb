package export

import "github.com/heimdex/heimdex-timeline/internal/cutpoints"

const (
	FormatEDL        = "edl"
	DefaultFrameRate = 30.0
	DefaultName      = "timeline"
	maxNameLen       = 80
)

// Request holds the optional overrides of an export.
type Request struct {
	Name      string  `json:"name,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	OutputDir string  `json:"output_dir,omitempty"`
	MediaPath string  `json:"media_path,omitempty"`
}

// Source is the timeline being exported.
type Source struct {
	FileName string
	VideoURL string
	Segments []cutpoints.Segment
}

// ResolvedClip is one segment with millisecond boundaries on the source media.
type ResolvedClip struct {
	ClipName  string
	MediaPath string
	StartMs   int
	EndMs     int
	Segment   int
}

func (c ResolvedClip) DurationMs() int {
	return c.EndMs - c.StartMs
}

type Result struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	ClipCount  int    `json:"clip_count"`
	DurationMs int    `json:"duration_ms"`
}
