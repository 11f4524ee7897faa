package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Mutombe/cargo-space/internal/dispatch"
	"github.com/Mutombe/cargo-space/internal/matcher"
	"github.com/Mutombe/cargo-space/internal/service"
	"github.com/Mutombe/cargo-space/internal/session"
)

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

// wsSession authenticates a websocket request. Browsers cannot set headers on
// websocket requests, so the token may come as ?token=.
func (s *Server) wsSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	sess, err := s.sessions.Verify(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
		return nil, false
	}
	return sess, true
}

// handleTrackingWS streams tracking updates of one cargo to its owner.
func (s *Server) handleTrackingWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wsSession(w, r)
	if !ok {
		return
	}
	cargoID := mux.Vars(r)["cargo_id"]
	if _, err := s.svc.Post(sess.User.ID, cargoID); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.String("cargo_id", cargoID), zap.Error(err))
		return
	}
	key := service.TrackingKey(cargoID)
	ws := s.ws.Add(key, conn)
	if u, err := s.svc.Tracking(sess.User.ID, cargoID); err == nil {
		_ = ws.Send(u)
	}
	go s.drain(key, ws, conn)
}

// handleDriverWS registers a signed-in driver for new-cargo notices.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wsSession(w, r)
	if !ok {
		return
	}
	if sess.User.UserType != session.Driver {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "driver account required"})
		return
	}
	id := mux.Vars(r)["driver_id"]
	if _, err := s.svc.Catalog().Driver(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.String("driver_id", id), zap.Error(err))
		return
	}
	s.logger.Info("driver subscribed", zap.String("driver_id", id), zap.String("user_id", sess.User.ID))
	key := matcher.DriverKey(id)
	go s.drain(key, s.ws.Add(key, conn), conn)
}

// drain reads until the client goes away so close frames are processed, then
// drops the session.
func (s *Server) drain(key string, ws *dispatch.WSSession, conn *websocket.Conn) {
	defer s.ws.Remove(key, ws)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
