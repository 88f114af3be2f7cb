package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialPlayer(t *testing.T, env *testEnv, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/player/ws?access_token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

// readUntil skips commands until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) PlayerCommand {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var cmd PlayerCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		if cmd.Type == typ {
			return cmd
		}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlayerWS_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := dialPlayer(t, env, "wrong")
	if err == nil {
		t.Fatal("dial with a wrong token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestPlayerWS_SyncAndKeyStep(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)

	conn, _, err := dialPlayer(t, env, testToken)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	rate := readUntil(t, conn, CommandRate)
	if rate.Rate == nil || *rate.Rate != 1 {
		t.Errorf("initial rate = %v, want 1", rate.Rate)
	}
	readUntil(t, conn, CommandPause)

	if got := env.editor.Players(); got != 1 {
		t.Errorf("Players() = %d, want 1", got)
	}

	duration := 10.0
	if err := conn.WriteJSON(PlayerEvent{Type: EventLoadedMetadata, Duration: &duration}); err != nil {
		t.Fatalf("write loadedmetadata: %v", err)
	}
	if err := conn.WriteJSON(PlayerEvent{Type: EventKeyDown, Key: "ArrowRight", TargetTag: "BODY"}); err != nil {
		t.Fatalf("write keydown: %v", err)
	}

	seek := readUntil(t, conn, CommandSeek)
	if seek.Time == nil || *seek.Time < 0.033 || *seek.Time > 0.034 {
		t.Errorf("seek time = %v, want one frame", seek.Time)
	}
	res := readUntil(t, conn, CommandKeyResult)
	if res.Key != "ArrowRight" || res.PreventDefault == nil || !*res.PreventDefault {
		t.Errorf("key_result = %+v", res)
	}

	if err := conn.WriteJSON(PlayerEvent{Type: EventKeyDown, Key: "ArrowLeft", TargetTag: "input"}); err != nil {
		t.Fatalf("write keydown: %v", err)
	}
	res = readUntil(t, conn, CommandKeyResult)
	if res.PreventDefault == nil || *res.PreventDefault {
		t.Errorf("keydown in an input should not be consumed: %+v", res)
	}

	env.editor.Frames.Wait()
	if !env.editor.Store.Snapshot().Preview.Matches(*seek.Time) {
		t.Error("frame step should request a preview at the new playhead")
	}

	env.do(t, http.MethodPost, "/timeline/playing", PlayingRequest{Playing: true})
	readUntil(t, conn, CommandPlay)

	conn.Close()
	waitFor(t, func() bool { return env.editor.Players() == 0 }, "player detach")
}

func TestPlayerWS_AutoPauseAtCut(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)
	env.do(t, http.MethodPost, "/cuts", map[string]any{"time": 2})

	conn, _, err := dialPlayer(t, env, testToken)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, CommandPause)

	env.do(t, http.MethodPost, "/timeline/playing", PlayingRequest{Playing: true})
	readUntil(t, conn, CommandPlay)

	paused := false
	for _, ct := range []float64{1.5, 1.99} {
		ct := ct
		if err := conn.WriteJSON(PlayerEvent{Type: EventTimeUpdate, CurrentTime: &ct, Paused: &paused}); err != nil {
			t.Fatalf("write timeupdate: %v", err)
		}
	}

	seek := readUntil(t, conn, CommandSeek)
	if seek.Time == nil || *seek.Time != 2 {
		t.Errorf("auto-pause seek = %v, want 2", seek.Time)
	}
	readUntil(t, conn, CommandPause)

	waitFor(t, func() bool {
		st := env.editor.Store.Snapshot()
		return !st.IsPlaying && st.PlayheadSeconds == 2
	}, "auto-pause state")
}

func TestPlayerWS_InvalidMessage(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := dialPlayer(t, env, testToken)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := readUntil(t, conn, CommandError)
	if cmd.Error == "" {
		t.Error("error command without message")
	}
}
