package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

// client is one open socket. Only writePump writes data frames.
type client struct {
	h         *Handler
	conn      *websocket.Conn
	sessionID string
	connID    string
	id        Identity
	send      chan model.Event
}

// enqueue hands a connection-local event to the writer, dropping it when the
// buffer is full.
func (c *client) enqueue(ev model.Event) {
	select {
	case c.send <- ev:
	default:
		metrics.RecordBusDropped()
	}
}

func (c *client) write(ev model.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	metrics.RecordWSMessage("out")
	return nil
}

func (c *client) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// writePump forwards session events, connection-local frames, periodic
// metrics and keepalive pings until the session or the connection ends.
func (c *client) writePump(ctx context.Context, events <-chan model.Event) {
	ping := time.NewTicker(c.h.pingInterval)
	defer ping.Stop()

	var tick <-chan time.Time
	if c.h.metricsInterval > 0 {
		t := time.NewTicker(c.h.metricsInterval)
		defer t.Stop()
		tick = t.C
	}

	reason := "connection closed"
	defer func() { c.closeWith(websocket.CloseNormalClosure, reason) }()

	for {
		var ev model.Event
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				reason = "session ended"
				return
			}
			ev = e
		case ev = <-c.send:
		case <-tick:
			m, err := c.h.engine.GetMetrics(ctx, c.sessionID)
			if err != nil {
				reason = "session ended"
				return
			}
			ev = model.NewEvent(model.EventMetrics, c.sessionID, time.Now(), m)
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}
		if err := c.write(ev); err != nil {
			c.h.log.Debug(ctx, "websocket write failed", logger.String("connection_id", c.connID), logger.Error(err))
			return
		}
	}
}

// readPump dispatches client frames until the socket fails or closes.
func (c *client) readPump(ctx context.Context) {
	wait := 2 * c.h.pingInterval
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				c.h.log.Debug(ctx, "websocket read failed", logger.String("connection_id", c.connID), logger.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		metrics.RecordWSMessage("in")
		if err := c.handle(ctx, data); err != nil {
			c.enqueue(c.errorEvent(err))
		}
	}
}

func (c *client) handle(ctx context.Context, data []byte) error {
	var f inFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	switch f.Type {
	case "reaction":
		var r model.Reaction
		if err := json.Unmarshal(f.Data, &r); err != nil {
			return fmt.Errorf("%w: reaction: %v", ErrBadFrame, err)
		}
		r.ProfileID = c.id.ProfileID
		return c.h.engine.SubmitReaction(ctx, c.sessionID, c.connID, r)
	case "track":
		var t trackFrame
		if err := json.Unmarshal(f.Data, &t); err != nil || t.TrackID == "" {
			return fmt.Errorf("%w: track needs trackId", ErrBadFrame)
		}
		_, err := c.h.engine.UpdateCurrentTrack(ctx, c.sessionID, model.TrackPlay{
			TrackID: t.TrackID,
			Title:   t.Title,
			Artist:  t.Artist,
		})
		return err
	case "ping":
		c.enqueue(model.NewEvent(EventPong, c.sessionID, time.Now(), nil))
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}
}

func (c *client) errorEvent(err error) model.Event {
	code := "internal"
	switch {
	case errors.Is(err, ErrBadFrame):
		code = "bad_frame"
	case errors.Is(err, model.ErrInvalidReaction):
		code = "invalid_reaction"
	case errors.Is(err, model.ErrSessionNotFound):
		code = "session_not_found"
	case errors.Is(err, model.ErrSessionFull):
		code = "session_full"
	case errors.Is(err, model.ErrTrackNotFound):
		code = "track_not_found"
	}
	return model.NewEvent(EventError, c.sessionID, time.Now(), ErrorPayload{Code: code, Message: err.Error()})
}
