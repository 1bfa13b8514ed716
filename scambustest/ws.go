package scambustest

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// RegisterWS mounts the mock /ws notification endpoint on an echo
// instance. Connected clients receive a "connected" frame and whatever
// PushWS broadcasts.
func (s *Server) RegisterWS(e *echo.Echo) {
	e.GET("/ws", s.handleWS, s.authenticate)
}

// PushWS broadcasts a frame to every connected websocket client.
func (s *Server) PushWS(frame map[string]any) {
	s.mu.Lock()
	conns := append([]*wsConn(nil), s.wsConns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.writeJSON(frame)
	}
}

// WSConnCount returns how many websocket clients are connected.
func (s *Server) WSConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wsConns)
}

func (s *Server) handleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	wc := &wsConn{conn: conn}
	s.mu.Lock()
	s.wsConns = append(s.wsConns, wc)
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		for i, existing := range s.wsConns {
			if existing == wc {
				s.wsConns = append(s.wsConns[:i], s.wsConns[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	_ = wc.writeJSON(map[string]any{"type": "connected"})

	// Drain until the peer goes away; the mock never expects input.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
