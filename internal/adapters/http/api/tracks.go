package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const (
	defaultTopTracks = 10
	maxTopTracks     = 100
)

// TrackHandler serves catalog and track statistics reads.
type TrackHandler struct {
	deps Dependencies
}

// NewTrackHandler creates a track handler.
func NewTrackHandler(deps Dependencies) *TrackHandler {
	return &TrackHandler{deps: deps}
}

// HandleGet handles GET /tracks/{id}.
func (h *TrackHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Track(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleStats handles GET /tracks/{id}/stats.
func (h *TrackHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.TrackStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleTop handles GET /tracks/top?n=.
func (h *TrackHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	n := defaultTopTracks
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxTopTracks {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind("api.top_tracks", ErrBadRequest))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, h.deps.TopTracks(r.Context(), n))
}
