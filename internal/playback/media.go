package playback

// MediaElement is the video element a Controller drives. Implementations
// report NaN or 0 from Duration while it is unknown.
type MediaElement interface {
	Play() error
	Pause()
	Paused() bool
	CurrentTime() float64
	Seek(t float64)
	Duration() float64
	SetPlaybackRate(rate float64)
	HasMetadata() bool
}

// KeyEvent is a keydown observed by the element's page.
type KeyEvent struct {
	Key             string `json:"key"`
	TargetTag       string `json:"target_tag,omitempty"`
	ContentEditable bool   `json:"content_editable,omitempty"`
}

const (
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
)

var editableTags = map[string]bool{
	"INPUT":    true,
	"TEXTAREA": true,
	"SELECT":   true,
}
