package export

import (
	"fmt"

	"github.com/heimdex/heimdex-timeline/internal/cutpoints"
	"github.com/heimdex/heimdex-timeline/internal/timecode"
)

// ClipsFromSegments turns the visible segments into clips. When every
// segment is hidden the whole timeline is exported.
func ClipsFromSegments(segments []cutpoints.Segment, mediaPath, baseName string) []ResolvedClip {
	visible := make([]cutpoints.Segment, 0, len(segments))
	for _, s := range segments {
		if !s.Hidden {
			visible = append(visible, s)
		}
	}
	if len(visible) == 0 {
		visible = segments
	}

	if baseName == "" {
		baseName = DefaultName
	}

	clips := make([]ResolvedClip, 0, len(visible))
	for _, s := range visible {
		start, end := timecode.Millis(s.Start), timecode.Millis(s.End)
		if end <= start {
			continue
		}
		clips = append(clips, ResolvedClip{
			ClipName:  fmt.Sprintf("%s #%d", baseName, s.Index+1),
			MediaPath: mediaPath,
			StartMs:   start,
			EndMs:     end,
			Segment:   s.Index,
		})
	}
	return clips
}
