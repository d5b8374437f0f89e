package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxWSConns   = 8
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 2 * wsPingPeriod
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are vetted by the relay credential, not the browser origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams frames over a WebSocket. Same credentials as the SSE stream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	client, code := s.relayAuthorized(r)
	if code != http.StatusOK {
		http.Error(w, http.StatusText(code), code)
		return
	}

	current := atomic.AddInt32(&s.wsConns, 1)
	if current > maxWSConns {
		atomic.AddInt32(&s.wsConns, -1)
		http.Error(w, "too many websocket connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.wsConns, -1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	crossingsOnly := r.URL.Query().Get("crossings") == "1"
	subID, frames := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	slog.Info("websocket client connected", "sub_id", subID, "client", client)

	// The reader only watches for close frames and pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Initial snapshot so the client can draw before the first shift.
	if err := s.writeWS(conn, "snapshot", s.Sim.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			if crossingsOnly && f.Diff.IsZero() {
				continue
			}
			if err := s.writeWS(conn, "frame", f); err != nil {
				slog.Debug("websocket write failed", "sub_id", subID, "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			slog.Info("websocket client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

// wsMessage wraps every payload with its type.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *Server) writeWS(conn *websocket.Conn, typ string, v any) error {
	b, err := json.Marshal(wsMessage{Type: typ, Data: v})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
