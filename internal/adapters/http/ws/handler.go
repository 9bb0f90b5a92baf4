// Package ws serves live session connections over WebSocket. Each connection
// joins a session as one participant, streams the session's events and
// submits reactions and track changes.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/attune/internal/adapters/mq/bus"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

// Connection-local event types. They are written to one socket only.
const (
	EventJoined model.EventType = "JOINED"
	EventError  model.EventType = "ERROR"
	EventPong   model.EventType = "PONG"
)

const (
	defaultMetricsInterval = 10 * time.Second
	defaultPingInterval    = 30 * time.Second
	defaultSendBuffer      = 64
	writeWait              = 10 * time.Second
	maxFrameBytes          = 64 << 10
)

// Engine is what a connection needs from the session engine.
type Engine interface {
	JoinSession(ctx context.Context, sessionID string, req model.JoinRequest) (model.Session, error)
	LeaveSession(ctx context.Context, sessionID, connectionID string)
	SubmitReaction(ctx context.Context, sessionID, connectionID string, r model.Reaction) error
	UpdateCurrentTrack(ctx context.Context, sessionID string, track model.TrackPlay) (model.TrackPlay, error)
	GetMetrics(ctx context.Context, sessionID string) (model.Metrics, error)
	Subscribe(ctx context.Context, sessionID string) (*bus.Subscription, error)
}

// Handler upgrades requests on /sessions/{id}/ws.
type Handler struct {
	engine   Engine
	auth     *Authenticator
	upgrader websocket.Upgrader

	metricsInterval time.Duration
	pingInterval    time.Duration
	sendBuffer      int

	conns atomic.Int64
	log   logger.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(engine Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:          engine,
		auth:            NewAuthenticator(""),
		metricsInterval: defaultMetricsInterval,
		pingInterval:    defaultPingInterval,
		sendBuffer:      defaultSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Named("ws")
	}
	return h
}

// Connections returns the number of open connections.
func (h *Handler) Connections() int {
	return int(h.conns.Load())
}

func (h *Handler) track(delta int64) {
	metrics.UpdateWSConnections(int(h.conns.Add(delta)))
}

// inFrame is a client message.
type inFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type trackFrame struct {
	TrackID string `json:"trackId"`
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
}

// ErrorPayload accompanies ERROR frames.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JoinedPayload accompanies the JOINED frame sent once the connection is in
// the session.
type JoinedPayload struct {
	ConnectionID string        `json:"connectionId"`
	UserID       string        `json:"userId"`
	ProfileID    string        `json:"profileId"`
	Session      model.Session `json:"session"`
}

// ServeHTTP authenticates, subscribes to the session, upgrades and joins.
// The participant leaves when the socket closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	id, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.engine.Subscribe(ctx, sessionID)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, model.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", logger.String("session_id", sessionID), logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.track(1)
	defer h.track(-1)

	c := &client{
		h:         h,
		conn:      conn,
		sessionID: sessionID,
		connID:    uuid.NewString(),
		id:        id,
		send:      make(chan model.Event, h.sendBuffer),
	}

	sess, err := h.engine.JoinSession(ctx, sessionID, model.JoinRequest{
		UserID:       id.UserID,
		ProfileID:    id.ProfileID,
		ConnectionID: c.connID,
	})
	if err != nil {
		_ = c.write(c.errorEvent(err))
		c.closeWith(websocket.ClosePolicyViolation, "join failed")
		return
	}
	defer h.engine.LeaveSession(context.WithoutCancel(ctx), sessionID, c.connID)

	h.log.Debug(ctx, "connection joined",
		logger.String("session_id", sessionID),
		logger.String("connection_id", c.connID),
		logger.String("user_id", id.UserID))
	c.enqueue(model.NewEvent(EventJoined, sessionID, time.Now(), JoinedPayload{
		ConnectionID: c.connID,
		UserID:       id.UserID,
		ProfileID:    id.ProfileID,
		Session:      sess,
	}))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		c.writePump(ctx, sub.C)
	}()
	c.readPump(ctx)
	cancel()
	<-writerDone
}
