// Package ws owns the raw WebSocket connection to the coordination
// server: dialing, frame IO and teardown. No protocol logic lives here.
package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/convoy/internal/core"
	"github.com/dkeye/convoy/internal/protocol"
)

// FrameHandler receives decoded inbound frames, one at a time, in
// arrival order. It must not block for unbounded time.
type FrameHandler func(env protocol.Envelope)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Transport owns the single connection. The connection value is
// replaced, never mutated, on reconnect; reconnecting is always a
// caller-initiated Connect after a close.
type Transport struct {
	timeout time.Duration

	mu      sync.Mutex
	current *wireConn
	attempt *connectAttempt
	onFrame FrameHandler
	onClose func(error)
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

func New(connectTimeout time.Duration) *Transport {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &Transport{timeout: connectTimeout}
}

// OnFrame replaces the inbound frame sink.
func (t *Transport) OnFrame(fn FrameHandler) {
	t.mu.Lock()
	t.onFrame = fn
	t.mu.Unlock()
}

// OnClose replaces the close observer. It fires once per connection.
func (t *Transport) OnClose(fn func(error)) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// Connect dials addr and returns once the connection is open, or with
// ErrConnectionFailed if the open state is not reached within the
// connect timeout. A second call while a dial is in flight joins the
// same attempt instead of opening a second connection; connecting while
// already open is a no-op.
func (t *Transport) Connect(ctx context.Context, addr string) error {
	t.mu.Lock()
	if t.current != nil {
		t.mu.Unlock()
		return nil
	}
	if a := t.attempt; a != nil {
		t.mu.Unlock()
		<-a.done
		return a.err
	}
	a := &connectAttempt{done: make(chan struct{})}
	t.attempt = a
	t.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	dialer := websocket.Dialer{HandshakeTimeout: t.timeout}
	conn, _, err := dialer.DialContext(dialCtx, addr, nil)

	t.mu.Lock()
	t.attempt = nil
	if err != nil {
		t.mu.Unlock()
		a.err = fmt.Errorf("%w: %v", core.ErrConnectionFailed, err)
		close(a.done)
		log.Error().Err(err).Str("module", "adapters.ws").Str("addr", addr).Msg("dial failed")
		return a.err
	}
	c := &wireConn{ws: conn, send: make(chan []byte, sendBuffer)}
	t.current = c
	t.mu.Unlock()
	close(a.done)

	go t.writePump(c)
	go t.readPump(c)
	log.Info().Str("module", "adapters.ws").Str("addr", addr).Msg("connected")
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Send serializes {type, payload} and queues it for writing. While not
// connected it logs and returns ErrNotConnected; callers may treat that
// as a silent drop.
func (t *Transport) Send(msgType string, payload any) error {
	t.mu.Lock()
	c := t.current
	t.mu.Unlock()
	if c == nil {
		log.Warn().Str("module", "adapters.ws").Str("type", msgType).Msg("send while not connected, dropped")
		return core.ErrNotConnected
	}
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Str("type", msgType).Msg("encode failed")
		return err
	}
	if err := c.trySend(data); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("type", msgType).Msg("send dropped")
		return err
	}
	return nil
}

// Close tears down the current connection. Idempotent; the close
// observer fires so the session can release per-session state.
func (t *Transport) Close() {
	t.mu.Lock()
	c := t.current
	t.current = nil
	fn := t.onClose
	t.mu.Unlock()
	if c == nil {
		return
	}
	c.close()
	log.Info().Str("module", "adapters.ws").Msg("connection closed")
	if fn != nil {
		fn(nil)
	}
}

func (t *Transport) writePump(c *wireConn) {
	for data := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump set deadline")
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
			return
		}
	}
}

func (t *Transport) readPump(c *wireConn) {
	var readErr error
	defer func() {
		t.dropConn(c, readErr)
	}()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		env, err := protocol.Decode(data)
		if err != nil || env.Type == "" {
			log.Error().Err(err).Str("module", "adapters.ws").Msg("bad frame, dropped")
			continue
		}
		t.mu.Lock()
		fn := t.onFrame
		t.mu.Unlock()
		if fn != nil {
			fn(env)
		}
	}
}

// dropConn clears the connection reference after an unexpected close.
// If Close already detached the connection the observer is not fired
// again.
func (t *Transport) dropConn(c *wireConn, err error) {
	t.mu.Lock()
	wasCurrent := t.current == c
	if wasCurrent {
		t.current = nil
	}
	fn := t.onClose
	t.mu.Unlock()
	c.close()
	if !wasCurrent {
		return
	}
	log.Warn().Err(err).Str("module", "adapters.ws").Msg("connection dropped")
	if fn != nil {
		fn(err)
	}
}

type wireConn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wireConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrNotConnected
	}
	select {
	case c.send <- data:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wireConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}
