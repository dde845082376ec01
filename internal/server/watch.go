package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

const (
	watchWriteWait  = 5 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = 30 * time.Second
	watchQueueSize  = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientConn wraps one watch socket with a bounded send queue.
type clientConn struct {
	ws   *websocket.Conn
	send chan []byte
}

func newClientConn(ws *websocket.Conn) *clientConn {
	return &clientConn{
		ws:   ws,
		send: make(chan []byte, watchQueueSize),
	}
}

// enqueue queues a frame without blocking. A full queue drops the
// frame; the client is polling anyway and the next snapshot
// supersedes this one.
func (c *clientConn) enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings. Runs on its own goroutine; exits when
// the queue closes or a write fails.
func (c *clientConn) writePump() {
	ticker := time.NewTicker(watchPingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.ws.SetWriteDeadline(time.Now().Add(watchWriteWait))
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the socket is one-way. It exists
// to notice the close handshake and keep the pong handler serviced.
func (c *clientConn) readPump(done chan<- struct{}) {
	defer close(done)
	c.ws.SetReadLimit(1 << 16)
	c.ws.SetReadDeadline(time.Now().Add(watchPongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(watchPongWait))
		return nil
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// handleWatch upgrades the request and pushes a full match snapshot on
// every engine event for that match. Snapshots are rendered outside
// the bus callback, so a slow socket never stalls the engine, and
// bursts coalesce into one fresh snapshot.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	token := r.URL.Query().Get("token")

	if _, err := s.engine.View(matchID, token); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.touch(token)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("watch upgrade failed",
			zap.String("match_id", matchID),
			zap.Error(err))
		return
	}

	conn := newClientConn(ws)
	notify := make(chan struct{}, 1)
	ping := func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	handle := s.engine.Bus().Subscribe(func(ev game.Event) {
		if ev.MatchID == matchID {
			ping()
		}
	})

	done := make(chan struct{})
	go conn.writePump()
	go conn.readPump(done)

	s.logger.Debug("watch opened", zap.String("match_id", matchID))

	// Initial snapshot so the client has state before the first event.
	ping()
	go func() {
		defer func() {
			s.engine.Bus().Unsubscribe(handle)
			close(conn.send)
		}()
		for {
			select {
			case <-done:
				return
			case <-notify:
				view, err := s.engine.View(matchID, token)
				if err != nil {
					return
				}
				b, err := json.Marshal(view)
				if err != nil {
					return
				}
				conn.enqueue(b)
			}
		}
	}()
}
