// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/attune/internal/adapters/http/swagger"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/session"
)

const defaultMaxBody = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateSession(ctx context.Context, settings model.SettingsPatch) (model.Session, error)
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	EndSession(ctx context.Context, sessionID string) bool
	JoinSession(ctx context.Context, sessionID string, req model.JoinRequest) (model.Session, error)
	LeaveSession(ctx context.Context, sessionID, connectionID string)
	RecordReaction(ctx context.Context, sessionID string, r model.Reaction) (model.Reaction, error)
	UpdateCurrentTrack(ctx context.Context, sessionID string, track model.TrackPlay) (model.TrackPlay, error)
	GetRecommendations(ctx context.Context, sessionID, profileID string) ([]model.Recommendation, error)
	GetMetrics(ctx context.Context, sessionID string) (model.Metrics, error)

	Track(ctx context.Context, trackID string) (model.Track, error)
	TrackStats(ctx context.Context, trackID string) (model.TrackStats, error)
	TopTracks(ctx context.Context, n int) []model.TrackStats
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	sessionHandler *SessionHandler
	trackHandler   *TrackHandler
	ws             http.Handler

	rateLimit int
	maxBody   int64
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{maxBody: defaultMaxBody}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.sessionHandler = NewSessionHandler(deps, s.maxBody)
	s.trackHandler = NewTrackHandler(deps)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Handle("/metrics", s.healthHandler.MetricsHandler())
	swagger.Register(r)

	r.Group(func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
		}
		r.Get("/stats", s.statsHandler.HandleStats)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.sessionHandler.HandleCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.sessionHandler.HandleGet)
				r.Delete("/", s.sessionHandler.HandleEnd)
				r.Post("/participants", s.sessionHandler.HandleJoin)
				r.Delete("/participants/{connectionID}", s.sessionHandler.HandleLeave)
				r.Post("/reactions", s.sessionHandler.HandleReaction)
				r.Put("/track", s.sessionHandler.HandleTrack)
				r.Get("/recommendations", s.sessionHandler.HandleRecommendations)
				r.Get("/metrics", s.sessionHandler.HandleMetrics)
				if s.ws != nil {
					r.Get("/ws", s.ws.ServeHTTP)
				}
			})
		})

		r.Route("/tracks", func(r chi.Router) {
			r.Get("/top", s.trackHandler.HandleTop)
			r.Get("/{id}", s.trackHandler.HandleGet)
			r.Get("/{id}/stats", s.trackHandler.HandleStats)
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps engine errors onto status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, model.ErrInvalidReaction):
		writeError(w, http.StatusBadRequest, "invalid_reaction", err)
	case errors.Is(err, model.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, model.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "track_not_found", err)
	case errors.Is(err, model.ErrRecommendationUnavailable):
		writeError(w, http.StatusNotFound, "recommendation_unavailable", err)
	case errors.Is(err, model.ErrSessionFull):
		writeError(w, http.StatusConflict, "session_full", err)
	case errors.Is(err, session.ErrSessionExists):
		writeError(w, http.StatusConflict, "session_exists", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

// decode reads a JSON body into v and validates it. An empty body is
// accepted when allowEmpty is set.
func decode(r *http.Request, limit int64, op string, v any, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if int64(len(body)) > limit {
		return NewKind(op, ErrBadRequest)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if allowEmpty {
			return nil
		}
		return WrapKind(op, ErrBadRequest, errors.New("empty body"))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return WrapKind(op, ErrValidation, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return errors.New(strings.Join(parts, "; "))
}
