package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong (or any frame) from the peer.
	pongWait = 60 * time.Second

	// Registry-level ping cadence. Must be less than pongWait.
	heartbeatInterval = 30 * time.Second

	// Maximum inbound frame size.
	maxFrameSize = 4096
)

// Conn is one client socket as seen by the hub. The protocol and broadcast
// logic only depend on this interface, so tests run against fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Ping() error
	Close() error
}

// gorillaConn serializes writes; gorilla/websocket allows only one
// concurrent writer per connection.
type gorillaConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newGorillaConn(conn *websocket.Conn) *gorillaConn {
	return &gorillaConn{conn: conn}
}

func (g *gorillaConn) WriteJSON(v interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return g.conn.WriteJSON(v)
}

func (g *gorillaConn) Ping() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (g *gorillaConn) Close() error {
	return g.conn.Close()
}

// ServeConn drives a raw websocket connection through the frame protocol
// until the socket closes, then runs the eviction path for it. Frames from
// one connection are handled sequentially; liveness is tracked through the
// read deadline and pong handler.
func (h *Hub) ServeConn(raw *websocket.Conn) {
	client := newClient(h, newGorillaConn(raw))

	raw.SetReadLimit(maxFrameSize)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))
		client.markAlive()
		return nil
	})

	defer h.Evict(client, ReasonDisconnect)

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))
		client.markAlive()
		client.HandleFrame(data)
	}
}
