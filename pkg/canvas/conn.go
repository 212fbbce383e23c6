package canvas

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
)

// Conn wraps one WebSocket connection. Writes are serialized with a
// mutex; reads happen only from the connection's own read loop.
type Conn struct {
	id string
	ws *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration
	closed       atomic.Bool

	logger *slog.Logger
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:           id,
		ws:           ws,
		writeTimeout: writeTimeout,
		logger:       logger.With("conn_id", id),
	}
}

// ID returns the connection's server-side identifier.
func (c *Conn) ID() string {
	return c.id
}

// SendJSON marshals v and writes it as one text message.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes a pre-serialized message. Used by broadcasts so a fanned
// out message is serialized exactly once.
func (c *Conn) SendRaw(data []byte) error {
	if c.closed.Load() {
		return ErrServerClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("write error", "error", err)
		return err
	}
	return nil
}

// Close tears down the underlying connection. Idempotent.
func (c *Conn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.ws.Close()
	}
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
