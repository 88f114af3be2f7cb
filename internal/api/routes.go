package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-timeline/internal/editor"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
	"github.com/heimdex/heimdex-timeline/internal/view"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.With(LoopbackGuard()).Get("/frames/{id}", frameHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/timeline", getTimelineHandler(cfg))
		r.Post("/timeline/load", loadVideoHandler(cfg))
		r.Delete("/timeline", resetVideoHandler(cfg))
		r.Patch("/timeline/transcode-status", transcodeStatusHandler(cfg))
		r.Post("/timeline/playing", playingHandler(cfg))
		r.Post("/timeline/playhead", playheadHandler(cfg))
		r.Post("/timeline/rate/cycle", cycleRateHandler(cfg))
		r.Post("/timeline/track-click", trackClickHandler(cfg))

		r.Post("/cuts", addCutHandler(cfg))
		r.Post("/cuts/remove", removeCutHandler(cfg))
		r.Post("/cuts/hide", toggleHideHandler(cfg))
		r.Post("/cuts/select", selectCutHandler(cfg))
		r.Post("/markers/click", markerClickHandler(cfg))

		r.Post("/preview", requestPreviewHandler(cfg))
		r.Delete("/preview", clearPreviewHandler(cfg))

		r.Post("/segmentation/save", saveSegmentationHandler(cfg))
		r.Get("/segmentations", listSegmentationsHandler(cfg))
		r.Post("/segmentations/{id}/restore", restoreSegmentationHandler(cfg))
		r.Delete("/segmentations/{id}", deleteSegmentationHandler(cfg))

		r.Post("/export/edl", exportEDLHandler(cfg))

		r.Get("/player/ws", playerWSHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := cfg.Editor.Store.Snapshot()
		fs := cfg.Editor.Frames.Stats()

		WriteJSON(w, http.StatusOK, StatusResponse{
			SessionID:       st.Session.ID,
			FileName:        st.Session.FileName,
			TranscodeStatus: st.Session.TranscodeStatus,
			CutCount:        len(st.Cuts.All),
			HiddenCount:     len(st.Cuts.Hidden),
			CacheEntries:    fs.CacheEntries,
			InFlight:        fs.InFlight,
			LiveFrames:      fs.Handles.Live,
			FrameBytes:      fs.Handles.Bytes,
			FrameBytesHuman: humanize.Bytes(uint64(fs.Handles.Bytes)),
			Players:         cfg.Editor.Players(),
		})
	}
}

func timelineResponse(ed *editor.Editor) TimelineResponse {
	st := ed.Store.Snapshot()
	return TimelineResponse{
		State:            st,
		Track:            view.Render(st),
		PlaybackRate:     st.PlaybackRate(),
		CanDelete:        st.CanDelete(),
		CanHide:          st.CanHide(),
		IsSelectedHidden: st.IsSelectedHidden(),
		VisibleCutPoints: st.VisibleCutPoints(),
	}
}

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, timelineResponse(cfg.Editor))
	}
}

func loadVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req timeline.VideoLoad
		if !decodeBody(w, r, &req) {
			return
		}
		if req.VideoURL == "" {
			WriteError(w, http.StatusBadRequest, "video_url is required", "BAD_REQUEST")
			return
		}

		cfg.Editor.LoadVideo(req)
		WriteJSON(w, http.StatusOK, timelineResponse(cfg.Editor))
	}
}

func resetVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Editor.ResetVideo()
		w.WriteHeader(http.StatusNoContent)
	}
}

func transcodeStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TranscodeStatusRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Status == "" {
			WriteError(w, http.StatusBadRequest, "transcode_status is required", "BAD_REQUEST")
			return
		}
		cfg.Editor.Store.UpdateTranscodeStatus(req.Status)
		WriteJSON(w, http.StatusOK, timelineResponse(cfg.Editor))
	}
}

func playingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cfg.Editor.Store.SetPlaying(req.Playing)
		WriteJSON(w, http.StatusOK, timelineResponse(cfg.Editor))
	}
}

func playheadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayheadRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Seconds == nil || !finite(*req.Seconds) {
			WriteError(w, http.StatusBadRequest, "seconds must be a finite number", "BAD_REQUEST")
			return
		}
		cfg.Editor.Store.SetPlayhead(*req.Seconds)
		WriteJSON(w, http.StatusOK, SeekResponse{Seconds: cfg.Editor.Store.Snapshot().PlayheadSeconds})
	}
}

func cycleRateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, RateResponse{Rate: cfg.Editor.Store.CyclePlaybackRate()})
	}
}

func trackClickHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrackClickRequest
		if !decodeBody(w, r, &req) {
			return
		}
		target, ok := cfg.Editor.Timeline.ClickTrack(req.OffsetX, req.Width)
		if !ok {
			WriteError(w, http.StatusConflict, "timeline has no duration", "NO_DURATION")
			return
		}
		WriteJSON(w, http.StatusOK, SeekResponse{Seconds: target})
	}
}

func addCutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		t := cfg.Editor.Store.Snapshot().PlayheadSeconds
		if req.Time != nil {
			t = *req.Time
		}
		if !finite(t) {
			WriteError(w, http.StatusBadRequest, "time must be a finite number", "BAD_REQUEST")
			return
		}

		added, applied := cfg.Editor.Store.AddManualCutPoint(t)
		if !applied {
			added = t
		}
		WriteJSON(w, http.StatusOK, CutResponse{Time: added, Applied: applied})
	}
}

// selectedOr resolves the target of a cut operation.
func selectedOr(cfg ServerConfig, req CutRequest) (float64, bool) {
	if req.Time != nil {
		return *req.Time, finite(*req.Time)
	}
	sel := cfg.Editor.Store.Snapshot().SelectedCutPoint
	if sel == nil {
		return 0, false
	}
	return *sel, true
}

func removeCutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		t, ok := selectedOr(cfg, req)
		if !ok {
			WriteError(w, http.StatusBadRequest, "no cut point selected", "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, CutResponse{Time: t, Applied: cfg.Editor.Store.RemoveCutPoint(t)})
	}
}

func toggleHideHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		t, ok := selectedOr(cfg, req)
		if !ok {
			WriteError(w, http.StatusBadRequest, "no cut point selected", "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, CutResponse{Time: t, Applied: cfg.Editor.Store.ToggleHideSegmentAtCut(t)})
	}
}

func selectCutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Time != nil && !finite(*req.Time) {
			WriteError(w, http.StatusBadRequest, "time must be a finite number", "BAD_REQUEST")
			return
		}
		cfg.Editor.Store.SetSelectedCutPoint(req.Time)
		WriteJSON(w, http.StatusOK, timelineResponse(cfg.Editor))
	}
}

func markerClickHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Time == nil || !finite(*req.Time) {
			WriteError(w, http.StatusBadRequest, "time must be a finite number", "BAD_REQUEST")
			return
		}
		cfg.Editor.Timeline.ClickMarker(*req.Time)
		WriteJSON(w, http.StatusOK, timelineResponse(cfg.Editor))
	}
}

// DefaultPreviewWait bounds how long ?wait=1 holds a preview request.
const DefaultPreviewWait = 15 * time.Second

// requestPreviewHandler starts a frame request. With ?wait=1 it answers 200
// once every pending fetch has settled, or 202 with the loading preview
// when the wait times out.
func requestPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Time == nil || !finite(*req.Time) {
			WriteError(w, http.StatusBadRequest, "time must be a finite number", "BAD_REQUEST")
			return
		}
		if cfg.Editor.Store.SessionID() == "" {
			WriteError(w, http.StatusConflict, "no session loaded", "NO_SESSION")
			return
		}

		if req.Triplet {
			cfg.Editor.Frames.RequestFrameTriplet(*req.Time, req.Delta)
		} else {
			cfg.Editor.Frames.RequestFrame(*req.Time)
		}

		status := http.StatusAccepted
		if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
			limit := cfg.PreviewWait
			if limit <= 0 {
				limit = DefaultPreviewWait
			}
			timer := time.NewTimer(limit)
			defer timer.Stop()
			select {
			case <-cfg.Editor.Frames.Settled():
				status = http.StatusOK
			case <-timer.C:
			case <-r.Context().Done():
				return
			}
		}

		WriteJSON(w, status, PreviewResponse{Preview: cfg.Editor.Store.Snapshot().Preview})
	}
}

func clearPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("time")
		if raw == "" {
			cfg.Editor.Frames.ClearFrame(nil)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || !finite(t) {
			WriteError(w, http.StatusBadRequest, "time must be a finite number", "BAD_REQUEST")
			return
		}
		cfg.Editor.Frames.ClearFrame(&t)
		w.WriteHeader(http.StatusNoContent)
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.FrameServer.ServeFrame(w, r, id); err != nil {
			cfg.Logger.Error("frame serve error", "error", err, "handle_id", id)
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
