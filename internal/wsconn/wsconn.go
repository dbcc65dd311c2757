// Package wsconn adapts a WebSocket connection to the net.Conn-shaped
// Conn the protocol engine reads and writes. MQTT over WebSocket carries
// each run of packet bytes in a binary message; this adapter re-exposes
// those messages as a plain byte stream.
package wsconn

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mqttcore/mqttcore"
)

// Subprotocol is the registered MQTT WebSocket subprotocol name.
const Subprotocol = "mqtt"

// Conn wraps a *websocket.Conn as a byte-stream mqttcore.Conn.
type Conn struct {
	ws *websocket.Conn

	// buf holds the unread tail of the last binary message.
	buf     []byte
	readPos int
}

// New wraps an established WebSocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.readPos < len(c.buf) {
		n := copy(p, c.buf[c.readPos:])
		c.readPos += n
		return n, nil
	}

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			// Text and control frames are not MQTT bytes; skip them
			// rather than poisoning the packet stream.
			continue
		}
		c.buf = data
		c.readPos = copy(p, data)
		return c.readPos, nil
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) Close() error { return c.ws.Close() }

func (c *Conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// Dialer connects to a broker's WebSocket listener.
type Dialer struct {
	// Dialer overrides the underlying WebSocket dialer; nil uses one
	// preconfigured with the MQTT subprotocol.
	Dialer *websocket.Dialer

	// Header is sent with the upgrade request.
	Header http.Header
}

// Dial implements mqttcore.Dialer over a ws:// or wss:// address.
func (d *Dialer) Dial(ctx context.Context, address string) (mqttcore.Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Subprotocols:    []string{Subprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		}
	}

	ws, resp, err := dialer.DialContext(ctx, address, d.Header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return New(ws), nil
}

// Handler upgrades HTTP requests and hands each resulting connection to
// OnConnect, typically a closure that runs a server-role endpoint over it.
type Handler struct {
	Upgrader  websocket.Upgrader
	OnConnect func(conn mqttcore.Conn)
}

// NewHandler returns a Handler with an upgrader preconfigured for the
// MQTT subprotocol. Origin checking accepts all origins; wrap the handler
// to restrict it.
func NewHandler(onConnect func(conn mqttcore.Conn)) *Handler {
	return &Handler{
		Upgrader: websocket.Upgrader{
			Subprotocols:    []string{Subprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		OnConnect: onConnect,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if h.OnConnect != nil {
		h.OnConnect(New(ws))
	}
}
