package api

import (
	"errors"
	"net/http"

	"github.com/heimdex/heimdex-timeline/internal/export"
	"github.com/heimdex/heimdex-timeline/internal/segmentation"
)

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportEDLRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var seg *segmentation.Segmentation
		if req.SessionID == "" {
			st := cfg.Editor.Store.Snapshot()
			if st.Session.ID == "" && len(st.Cuts.All) == 0 {
				WriteError(w, http.StatusConflict, "no session loaded", "NO_SESSION")
				return
			}
			seg = segmentation.FromState(st)
		} else {
			var err error
			seg, err = cfg.Segmentations.Get(r.Context(), req.SessionID)
			if errors.Is(err, segmentation.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "segmentation not found", "NOT_FOUND")
				return
			}
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
		}

		res, err := export.Export(export.Source{
			FileName: seg.FileName,
			VideoURL: seg.VideoURL,
			Segments: seg.Segments(),
		}, export.Request{
			Name:      req.Name,
			FrameRate: req.FrameRate,
			OutputDir: req.OutputDir,
			MediaPath: req.MediaPath,
		}, cfg.ExportDir)
		switch {
		case errors.Is(err, export.ErrNothingToExport):
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NOTHING_TO_EXPORT")
			return
		case errors.Is(err, export.ErrInvalidOutputDir):
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		case err != nil:
			cfg.Logger.Error("edl export failed", "error", err, "session_id", seg.SessionID)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		cfg.Logger.Info("edl exported", "session_id", seg.SessionID, "clips", res.ClipCount, "path", res.OutputPath)
		WriteJSON(w, http.StatusOK, res)
	}
}
