package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/attune/internal/app"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type frame struct {
	Type      model.EventType `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

func startEngine() *service.Service {
	svc := service.New(
		service.WithWorkerCount(1),
		service.WithCatalogSize(20),
		service.WithReactionDebounce(0),
		service.WithRecommendDebounce(10*time.Millisecond),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func startServer(h *Handler) *httptest.Server {
	r := chi.NewRouter()
	r.Get("/sessions/{id}/ws", h.ServeHTTP)
	return httptest.NewServer(r)
}

func wsURL(srv *httptest.Server, sessionID, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + sessionID + "/ws?" + query
}

// readUntil reads frames until one of type t arrives.
func readUntil(conn *websocket.Conn, t model.EventType) (frame, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return frame{}, false
		}
		var f frame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		if f.Type == t {
			return f, true
		}
	}
}

func send(conn *websocket.Conn, typ string, data any) {
	b, err := json.Marshal(map[string]any{"type": typ, "data": data})
	So(err, ShouldBeNil)
	So(conn.WriteMessage(websocket.TextMessage, b), ShouldBeNil)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestConnection(t *testing.T) {
	Convey("Given a session and a websocket endpoint without token checks", t, func() {
		svc := startEngine()
		h := NewHandler(svc, WithMetricsInterval(0))
		srv := startServer(h)
		Reset(func() {
			srv.Close()
			svc.Stop()
		})

		sess, err := svc.CreateSession(context.Background(), model.SettingsPatch{})
		So(err, ShouldBeNil)

		Convey("an unknown session is rejected before the upgrade", func() {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "missing", "user_id=u1"), nil)
			So(err, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("a missing user is unauthorized", func() {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID, ""), nil)
			So(err, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("when a listener connects", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID, "user_id=u1&profile_id=p1"), nil)
			So(err, ShouldBeNil)
			Reset(func() { _ = conn.Close() })

			f, ok := readUntil(conn, EventJoined)
			So(ok, ShouldBeTrue)
			var joined JoinedPayload
			So(json.Unmarshal(f.Payload, &joined), ShouldBeNil)
			So(joined.ConnectionID, ShouldNotBeEmpty)
			So(joined.ProfileID, ShouldEqual, "p1")
			So(waitFor(func() bool { return h.Connections() == 1 }), ShouldBeTrue)

			Convey("a reaction frame is recorded and broadcast", func() {
				send(conn, "reaction", map[string]any{"trackId": "trk-0001", "sentiment": "like"})
				f, ok := readUntil(conn, model.EventReactionRecorded)
				So(ok, ShouldBeTrue)
				var p model.ReactionPayload
				So(json.Unmarshal(f.Payload, &p), ShouldBeNil)
				So(p.Reaction.ProfileID, ShouldEqual, "p1")
				So(p.Reaction.TrackID, ShouldEqual, "trk-0001")
			})

			Convey("a track frame changes the current track", func() {
				send(conn, "track", map[string]any{"trackId": "trk-0002"})
				f, ok := readUntil(conn, model.EventTrackChanged)
				So(ok, ShouldBeTrue)
				var p model.TrackPlay
				So(json.Unmarshal(f.Payload, &p), ShouldBeNil)
				So(p.TrackID, ShouldEqual, "trk-0002")
			})

			Convey("an invalid reaction comes back as an error frame", func() {
				send(conn, "reaction", map[string]any{"trackId": "trk-0001", "sentiment": "meh"})
				f, ok := readUntil(conn, EventError)
				So(ok, ShouldBeTrue)
				var p ErrorPayload
				So(json.Unmarshal(f.Payload, &p), ShouldBeNil)
				So(p.Code, ShouldEqual, "invalid_reaction")
			})

			Convey("an unknown frame type is a bad frame", func() {
				send(conn, "dance", nil)
				f, ok := readUntil(conn, EventError)
				So(ok, ShouldBeTrue)
				var p ErrorPayload
				So(json.Unmarshal(f.Payload, &p), ShouldBeNil)
				So(p.Code, ShouldEqual, "bad_frame")
			})

			Convey("ping is answered", func() {
				send(conn, "ping", nil)
				_, ok := readUntil(conn, EventPong)
				So(ok, ShouldBeTrue)
			})

			Convey("closing the socket leaves and ends the session", func() {
				So(conn.Close(), ShouldBeNil)
				So(waitFor(func() bool {
					_, err := svc.GetSession(context.Background(), sess.ID)
					return err != nil
				}), ShouldBeTrue)
				So(waitFor(func() bool { return h.Connections() == 0 }), ShouldBeTrue)
			})

			Convey("ending the session closes the socket", func() {
				So(svc.EndSession(context.Background(), sess.ID), ShouldBeTrue)
				_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
				var readErr error
				for readErr == nil {
					_, _, readErr = conn.ReadMessage()
				}
				So(websocket.IsCloseError(readErr, websocket.CloseNormalClosure), ShouldBeTrue)
			})
		})
	})
}

func TestMetricsPush(t *testing.T) {
	Convey("Given a short metrics interval", t, func() {
		svc := startEngine()
		srv := startServer(NewHandler(svc, WithMetricsInterval(20*time.Millisecond)))
		Reset(func() {
			srv.Close()
			svc.Stop()
		})
		sess, err := svc.CreateSession(context.Background(), model.SettingsPatch{})
		So(err, ShouldBeNil)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID, "user_id=u1"), nil)
		So(err, ShouldBeNil)
		Reset(func() { _ = conn.Close() })

		Convey("metrics frames arrive periodically", func() {
			f, ok := readUntil(conn, model.EventMetrics)
			So(ok, ShouldBeTrue)
			var m model.Metrics
			So(json.Unmarshal(f.Payload, &m), ShouldBeNil)
			So(m.ParticipantCount, ShouldEqual, 1)
		})
	})
}

func TestTokenAuth(t *testing.T) {
	Convey("Given a handler that verifies tokens", t, func() {
		svc := startEngine()
		srv := startServer(NewHandler(svc, WithSecret("s3cret"), WithMetricsInterval(0)))
		Reset(func() {
			srv.Close()
			svc.Stop()
		})
		sess, err := svc.CreateSession(context.Background(), model.SettingsPatch{})
		So(err, ShouldBeNil)

		Convey("query identity alone is rejected", func() {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID, "user_id=u1"), nil)
			So(err, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("a token signed with another secret is rejected", func() {
			tok, err := NewAuthenticator("other").Issue("u1", "p1", time.Minute)
			So(err, ShouldBeNil)
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID, "token="+tok), nil)
			So(err, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("a valid bearer token joins with its claims", func() {
			tok, err := NewAuthenticator("s3cret").Issue("u7", "p7", time.Minute)
			So(err, ShouldBeNil)
			header := http.Header{}
			header.Set("Authorization", "Bearer "+tok)
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID, ""), header)
			So(err, ShouldBeNil)
			defer func() { _ = conn.Close() }()

			f, ok := readUntil(conn, EventJoined)
			So(ok, ShouldBeTrue)
			var joined JoinedPayload
			So(json.Unmarshal(f.Payload, &joined), ShouldBeNil)
			So(joined.UserID, ShouldEqual, "u7")
			So(joined.ProfileID, ShouldEqual, "p7")
		})
	})
}

func TestAuthenticator(t *testing.T) {
	Convey("Given an authenticator", t, func() {
		a := NewAuthenticator("k")

		Convey("the profile defaults to the subject", func() {
			tok, err := a.Issue("u1", "", time.Minute)
			So(err, ShouldBeNil)
			req := httptest.NewRequest(http.MethodGet, "/?token="+tok, nil)
			id, err := a.Authenticate(req)
			So(err, ShouldBeNil)
			So(id, ShouldResemble, Identity{UserID: "u1", ProfileID: "u1"})
		})

		Convey("expired tokens fail", func() {
			tok, err := a.Issue("u1", "p1", -time.Minute)
			So(err, ShouldBeNil)
			req := httptest.NewRequest(http.MethodGet, "/?token="+tok, nil)
			_, err = a.Authenticate(req)
			So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
		})

		Convey("without a secret query parameters are trusted", func() {
			req := httptest.NewRequest(http.MethodGet, "/?user_id=u2", nil)
			id, err := NewAuthenticator("").Authenticate(req)
			So(err, ShouldBeNil)
			So(id.ProfileID, ShouldEqual, "u2")
		})
	})
}
