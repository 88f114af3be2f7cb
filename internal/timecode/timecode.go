// Package timecode formats playback positions for display.
package timecode

import (
	"fmt"
	"math"
)

// FormatSeconds renders seconds as MM:SS.mmm, e.g. 65.5 -> "01:05.500".
func FormatSeconds(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	mins := int(math.Floor(seconds / 60))
	secs := seconds - float64(mins)*60
	return fmt.Sprintf("%02d:%06.3f", mins, secs)
}

// FormatDuration renders a coarse duration such as "2m 5s" or "42s".
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// Millis converts seconds to whole milliseconds, rounding half away from zero.
func Millis(seconds float64) int {
	return int(math.Round(seconds * 1000))
}
