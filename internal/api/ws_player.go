package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heimdex/heimdex-timeline/internal/playback"
)

const (
	wsWriteWait      = 5 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

// Player channel message types.
const (
	EventLoadedMetadata = "loadedmetadata"
	EventTimeUpdate     = "timeupdate"
	EventEnded          = "ended"
	EventKeyDown        = "keydown"

	CommandPlay      = "play"
	CommandPause     = "pause"
	CommandSeek      = "seek"
	CommandRate      = "rate"
	CommandKeyResult = "key_result"
	CommandError     = "error"
)

// PlayerEvent is sent by the page hosting the video element.
type PlayerEvent struct {
	Type            string   `json:"type"`
	Duration        *float64 `json:"duration,omitempty"`
	CurrentTime     *float64 `json:"current_time,omitempty"`
	Paused          *bool    `json:"paused,omitempty"`
	Key             string   `json:"key,omitempty"`
	TargetTag       string   `json:"target_tag,omitempty"`
	ContentEditable bool     `json:"content_editable,omitempty"`
}

// PlayerCommand is sent to the page to drive its video element.
type PlayerCommand struct {
	Type           string   `json:"type"`
	Time           *float64 `json:"time,omitempty"`
	Rate           *float64 `json:"rate,omitempty"`
	Key            string   `json:"key,omitempty"`
	PreventDefault *bool    `json:"prevent_default,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// RemoteMedia is a video element living in a browser page. It mirrors the
// state the page reports and forwards every command over the socket.
type RemoteMedia struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	paused      bool
	currentTime float64
	duration    float64
	hasMetadata bool
	rate        float64
}

func NewRemoteMedia(conn *websocket.Conn, logger *slog.Logger) *RemoteMedia {
	return &RemoteMedia{
		conn:     conn,
		logger:   logger,
		paused:   true,
		duration: math.NaN(),
		rate:     1,
	}
}

func (m *RemoteMedia) Play() error {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	return m.send(PlayerCommand{Type: CommandPlay})
}

func (m *RemoteMedia) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	m.sendOrLog(PlayerCommand{Type: CommandPause})
}

func (m *RemoteMedia) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *RemoteMedia) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *RemoteMedia) Seek(t float64) {
	m.mu.Lock()
	m.currentTime = t
	m.mu.Unlock()
	m.sendOrLog(PlayerCommand{Type: CommandSeek, Time: &t})
}

func (m *RemoteMedia) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *RemoteMedia) SetPlaybackRate(rate float64) {
	m.mu.Lock()
	m.rate = rate
	m.mu.Unlock()
	m.sendOrLog(PlayerCommand{Type: CommandRate, Rate: &rate})
}

func (m *RemoteMedia) HasMetadata() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasMetadata
}

// observe records the state carried by a page event.
func (m *RemoteMedia) observe(ev PlayerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Duration != nil {
		m.duration = *ev.Duration
	}
	if ev.CurrentTime != nil && finite(*ev.CurrentTime) {
		m.currentTime = *ev.CurrentTime
	}
	if ev.Paused != nil {
		m.paused = *ev.Paused
	}
	switch ev.Type {
	case EventLoadedMetadata:
		m.hasMetadata = true
	case EventEnded:
		m.paused = true
	}
}

func (m *RemoteMedia) send(cmd PlayerCommand) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return m.conn.WriteJSON(cmd)
}

func (m *RemoteMedia) sendOrLog(cmd PlayerCommand) {
	if err := m.send(cmd); err != nil {
		m.logger.Debug("player command not delivered", "type", cmd.Type, "error", err)
	}
}

var playerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

// playerWSHandler binds one remote video element to the editor for the
// lifetime of the connection.
func playerWSHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := playerUpgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("player websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		conn.SetReadLimit(wsMaxMessageSize)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})

		media := NewRemoteMedia(conn, cfg.Logger)
		ctrl, detach := cfg.Editor.AttachMedia(media)
		defer detach()

		done := make(chan struct{})
		defer close(done)
		go playerPingLoop(conn, done)

		cfg.Logger.Info("player connected", "remote", r.RemoteAddr)
		defer cfg.Logger.Info("player disconnected", "remote", r.RemoteAddr)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					cfg.Logger.Warn("player websocket closed unexpectedly", "error", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsPongWait))

			var ev PlayerEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				media.sendOrLog(PlayerCommand{Type: CommandError, Error: "invalid message format"})
				continue
			}
			handlePlayerEvent(ctrl, media, ev, cfg.Logger)
		}
	}
}

func handlePlayerEvent(ctrl *playback.Controller, media *RemoteMedia, ev PlayerEvent, logger *slog.Logger) {
	media.observe(ev)

	switch ev.Type {
	case EventLoadedMetadata:
		ctrl.HandleLoadedMetadata()
	case EventTimeUpdate:
		ctrl.HandleTimeUpdate()
	case EventEnded:
		ctrl.HandleEnded()
	case EventKeyDown:
		handled := ctrl.HandleKey(playback.KeyEvent{
			Key:             ev.Key,
			TargetTag:       ev.TargetTag,
			ContentEditable: ev.ContentEditable,
		})
		media.sendOrLog(PlayerCommand{Type: CommandKeyResult, Key: ev.Key, PreventDefault: &handled})
	default:
		logger.Debug("unknown player event", "type", ev.Type)
	}
}

func playerPingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
