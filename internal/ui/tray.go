package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-timeline/internal/timecode"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// Controls is the part of the timeline store the tray drives.
type Controls interface {
	Snapshot() timeline.State
	Subscribe(l timeline.Listener) func()
	SetPlaying(playing bool)
	AddManualCutPoint(t float64) (float64, bool)
	CyclePlaybackRate() float64
}

type Tray struct {
	store  Controls
	logger *slog.Logger

	statusItem *systray.MenuItem
	playItem   *systray.MenuItem
	cutItem    *systray.MenuItem
	speedItem  *systray.MenuItem

	mu          sync.Mutex
	unsubscribe func()

	onQuit func()
}

type TrayConfig struct {
	Store  Controls
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		store:  cfg.Store,
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Heimdex")
	systray.SetTooltip("Heimdex Timeline")

	t.statusItem = systray.AddMenuItem(StatusTitle(timeline.State{}), "Loaded video")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.playItem = systray.AddMenuItem("Play", "Toggle playback")
	t.cutItem = systray.AddMenuItem("Add Cut at Playhead", "Insert a manual cut point at the playhead")
	t.speedItem = systray.AddMenuItem(SpeedTitle(1), "Cycle playback speed")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Heimdex Timeline")

	t.refresh(t.store.Snapshot())
	t.mu.Lock()
	t.unsubscribe = t.store.Subscribe(func(_, next timeline.State) {
		t.refresh(next)
	})
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.playItem.ClickedCh:
				t.togglePlaying()
			case <-t.cutItem.ClickedCh:
				t.addCut()
			case <-t.speedItem.ClickedCh:
				rate := t.store.CyclePlaybackRate()
				t.logger.Debug("playback rate cycled from tray", "rate", rate)
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	t.mu.Unlock()
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePlaying() {
	st := t.store.Snapshot()
	if st.Session.VideoURL == "" {
		return
	}
	t.store.SetPlaying(!st.IsPlaying)
}

func (t *Tray) addCut() {
	st := t.store.Snapshot()
	if st.Session.VideoURL == "" {
		return
	}
	if added, ok := t.store.AddManualCutPoint(st.PlayheadSeconds); ok {
		t.logger.Info("cut point added from tray", "time", added, "session_id", st.Session.ID)
	}
}

func (t *Tray) refresh(st timeline.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusItem.SetTitle(StatusTitle(st))
	t.playItem.SetTitle(PlayTitle(st))
	t.speedItem.SetTitle(SpeedTitle(st.PlaybackRate()))

	if st.Session.VideoURL == "" {
		t.playItem.Disable()
		t.cutItem.Disable()
	} else {
		t.playItem.Enable()
		t.cutItem.Enable()
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

// StatusTitle summarizes the loaded video for the status line.
func StatusTitle(st timeline.State) string {
	if st.Session.VideoURL == "" {
		return "No video loaded"
	}
	name := st.Session.FileName
	if name == "" {
		name = "Untitled"
	}
	cuts := len(st.Cuts.All)
	noun := "cuts"
	if cuts == 1 {
		noun = "cut"
	}
	return fmt.Sprintf("%s · %d %s · %s / %s", name, cuts, noun,
		timecode.FormatSeconds(st.PlayheadSeconds),
		timecode.FormatDuration(st.ResolvedDuration()))
}

func PlayTitle(st timeline.State) string {
	if st.IsPlaying {
		return "Pause"
	}
	return "Play"
}

func SpeedTitle(rate float64) string {
	return fmt.Sprintf("Speed: %gx", rate)
}
