package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/five82/mochiyoru/internal/gateway"
	"github.com/five82/mochiyoru/internal/server/store"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleFeed upgrades to a websocket, acknowledges with a subscribed frame,
// then relays the group's change events with periodic pings.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetGroup(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Group not found")
			return
		}
		s.logger.Error("feed lookup failed", "group", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("feed upgrade failed", "group", id, "err", err)
		return
	}
	defer func() { _ = ws.Close() }()

	sub, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()
	s.logger.Debug("feed subscribed", "group", id, "remote", r.RemoteAddr)

	// Clients never send data frames; reading only services control frames
	// and notices the close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
		})
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := s.write(ws, gateway.FeedMessage{Type: gateway.FeedSubscribed}); err != nil {
		return
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	for {
		select {
		case msg := <-sub.Events():
			if err := s.write(ws, msg); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(writeTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-sub.Done():
			_ = s.write(ws, gateway.FeedMessage{Type: gateway.FeedError, Error: "subscriber fell behind"})
			return
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) write(ws *websocket.Conn, msg gateway.FeedMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteJSON(msg)
}
