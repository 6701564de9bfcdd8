package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const watchWriteTimeout = 10 * time.Second

var watchUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	},
}

// watchHandler streams every state of one controller over a websocket. The
// current state is sent first; intermediate states may be skipped but the
// latest is always delivered.
func (s *Server) watchHandler(w http.ResponseWriter, r *http.Request) {
	session, ctrl, ok := s.lookupController(w, r)
	if !ok {
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("Websocket upgrade failed", "session_id", session.ID, "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := s.Logger.With("session_id", session.ID, "kind", string(ctrl.Kind()))
	log.Debug("Watch started")

	// Reads only detect the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	states, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			writeClose(conn, websocket.CloseGoingAway, "watch ended")
			log.Debug("Watch stopped")
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				log.Debug("Watch write failed", "error", err)
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
