package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okian/attune/internal/domain/model"
)

// SessionHandler serves session lifecycle, reaction and recommendation
// routes.
type SessionHandler struct {
	deps    Dependencies
	maxBody int64
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(deps Dependencies, maxBody int64) *SessionHandler {
	return &SessionHandler{deps: deps, maxBody: maxBody}
}

type joinRequest struct {
	UserID       string `json:"userId" validate:"required"`
	ProfileID    string `json:"profileId" validate:"required"`
	ConnectionID string `json:"connectionId,omitempty"`
}

type joinResponse struct {
	ConnectionID string        `json:"connectionId"`
	Session      model.Session `json:"session"`
}

type trackRequest struct {
	TrackID string `json:"trackId" validate:"required"`
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
}

type recommendationsResponse struct {
	SessionID       string                 `json:"sessionId"`
	ProfileID       string                 `json:"profileId,omitempty"`
	Recommendations []model.Recommendation `json:"recommendations"`
}

// HandleCreate handles POST /sessions. The body is an optional settings patch.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if err := decode(r, h.maxBody, "api.create_session", &patch, true); err != nil {
		writeDomainError(w, err)
		return
	}
	sess, err := h.deps.CreateSession(r.Context(), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleEnd handles DELETE /sessions/{id}.
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.deps.EndSession(r.Context(), id) {
		writeDomainError(w, NewKind("api.end_session", model.ErrSessionNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleJoin handles POST /sessions/{id}/participants. A missing connection
// id is allocated.
func (h *SessionHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, h.maxBody, "api.join_session", &req, false); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.ConnectionID == "" {
		req.ConnectionID = uuid.NewString()
	}
	sess, err := h.deps.JoinSession(r.Context(), chi.URLParam(r, "id"), model.JoinRequest{
		UserID:       req.UserID,
		ProfileID:    req.ProfileID,
		ConnectionID: req.ConnectionID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{ConnectionID: req.ConnectionID, Session: sess})
}

// HandleLeave handles DELETE /sessions/{id}/participants/{connectionID}.
// Unknown connections are not an error.
func (h *SessionHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	h.deps.LeaveSession(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "connectionID"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleReaction handles POST /sessions/{id}/reactions.
func (h *SessionHandler) HandleReaction(w http.ResponseWriter, r *http.Request) {
	var reaction model.Reaction
	if err := decode(r, h.maxBody, "api.record_reaction", &reaction, false); err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := h.deps.RecordReaction(r.Context(), chi.URLParam(r, "id"), reaction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// HandleTrack handles PUT /sessions/{id}/track.
func (h *SessionHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decode(r, h.maxBody, "api.update_track", &req, false); err != nil {
		writeDomainError(w, err)
		return
	}
	play, err := h.deps.UpdateCurrentTrack(r.Context(), chi.URLParam(r, "id"), model.TrackPlay{
		TrackID: req.TrackID,
		Title:   req.Title,
		Artist:  req.Artist,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

// HandleRecommendations handles GET /sessions/{id}/recommendations. Without
// profile_id the whole group is blended.
func (h *SessionHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profileID := r.URL.Query().Get("profile_id")
	recs, err := h.deps.GetRecommendations(r.Context(), id, profileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{SessionID: id, ProfileID: profileID, Recommendations: recs})
}

// HandleMetrics handles GET /sessions/{id}/metrics.
func (h *SessionHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.GetMetrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
