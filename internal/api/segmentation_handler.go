package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-timeline/internal/segmentation"
)

func saveSegmentationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seg, err := cfg.Segmentations.Save(r.Context(), cfg.Editor.Store.Snapshot())
		if errors.Is(err, segmentation.ErrNoSession) {
			WriteError(w, http.StatusConflict, err.Error(), "NO_SESSION")
			return
		}
		if err != nil {
			cfg.Logger.Error("save segmentation failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to save segmentation", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, seg)
	}
}

func listSegmentationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := cfg.Segmentations.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list segmentations", "INTERNAL_ERROR")
			return
		}
		if list == nil {
			list = []*segmentation.Summary{}
		}
		WriteJSON(w, http.StatusOK, SegmentationsResponse{Segmentations: list})
	}
}

func restoreSegmentationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		_, err := cfg.Segmentations.Restore(r.Context(), id, cfg.Editor)
		if errors.Is(err, segmentation.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "segmentation not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, timelineResponse(cfg.Editor))
	}
}

func deleteSegmentationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Segmentations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
