package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/heimdex/heimdex-timeline/internal/timecode"
)

// GenerateEDL renders clips as a CMX3600 edit list. Record times are
// contiguous, so hidden segments collapse out of the program.
func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	if isDropFrame(frameRate) {
		b.WriteString("FCM: DROP FRAME\n")
	} else {
		b.WriteString("FCM: NON-DROP FRAME\n")
	}
	b.WriteString("\n")

	record := 0
	for i, c := range clips {
		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n",
			i+1, "AX", "V",
			toTimecode(c.StartMs, fps), toTimecode(c.EndMs, fps),
			toTimecode(record, fps), toTimecode(record+c.DurationMs(), fps))
		fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", c.ClipName)
		fmt.Fprintf(&b, "* SOURCE RANGE:  %s - %s\n",
			timecode.FormatSeconds(float64(c.StartMs)/1000), timecode.FormatSeconds(float64(c.EndMs)/1000))
		fmt.Fprintf(&b, "* MEDIA PATH:  %s\n", c.MediaPath)
		record += c.DurationMs()
	}

	return b.String()
}

func isDropFrame(rate float64) bool {
	return math.Abs(rate-29.97) < 0.01 || math.Abs(rate-59.94) < 0.01
}

// toTimecode renders HH:MM:SS:FF, rounding to the nearest frame.
func toTimecode(ms int, fps int) string {
	frames := int(math.Round(float64(ms) * float64(fps) / 1000))
	secs := frames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, secs/60%60, secs%60, frames%fps)
}
