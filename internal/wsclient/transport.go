package wsclient

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Send after a manual Close.
var ErrClosed = errors.New("transport closed")

// Handlers are the transport-level hooks. OnMessage receives raw frames;
// decoding (and reporting parse failures) is the caller's concern, which keeps
// "garbage on the wire" distinct from "socket died" (OnError).
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func()
}

// Config holds transport configuration.
type Config struct {
	// MaxMessageSize bounds inbound frames before any parsing.
	MaxMessageSize int64
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	Retry            RetryPolicy
}

// DefaultConfig returns the stock client transport configuration.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:   64 * 1024,
		HandshakeTimeout: 10 * time.Second,
		Retry:            DefaultRetryPolicy(),
	}
}

// Transport is a persistent WebSocket connection with automatic
// reconnect-with-backoff. A manual Close permanently suppresses reconnection.
type Transport struct {
	url      string
	config   Config
	clock    clockwork.Clock
	handlers Handlers
	dialer   *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Dial connects to the relay and starts the read loop. The initial dial error
// is returned to the caller; reconnection only kicks in once an established
// connection drops.
func Dial(url string, config Config, clock clockwork.Clock, handlers Handlers) (*Transport, error) {
	t := &Transport{
		url:      url,
		config:   config,
		clock:    clock,
		handlers: handlers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}

	conn, _, err := t.dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	t.setConn(conn)

	if t.handlers.OnOpen != nil {
		t.handlers.OnOpen()
	}
	go t.readLoop(conn)
	return t, nil
}

// Send writes one frame. It returns false when no connection is live; the
// frame is dropped, matching the protocol's fire-and-forget semantics.
func (t *Transport) Send(data []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.conn == nil {
		return false
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Msg("transport write failed")
		return false
	}
	return true
}

// Close tears the connection down and suppresses any further reconnection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	return nil
}

func (t *Transport) setConn(conn *websocket.Conn) {
	conn.SetReadLimit(t.config.MaxMessageSize)
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				if t.handlers.OnClose != nil {
					t.handlers.OnClose()
				}
				return
			}
			if t.handlers.OnError != nil {
				t.handlers.OnError(err)
			}
			t.reconnect()
			return
		}
		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(data)
		}
	}
}

// reconnect retries the dial on the policy's backoff schedule. Each failed
// attempt doubles the wait up to the cap; exhausting the budget reports a
// permanent close.
func (t *Transport) reconnect() {
	for attempt := 0; ; attempt++ {
		if t.config.Retry.Exhausted(attempt) {
			log.Warn().Int("attempts", attempt).Msg("reconnect attempts exhausted")
			if t.handlers.OnClose != nil {
				t.handlers.OnClose()
			}
			return
		}

		delay := t.config.Retry.Delay(attempt)
		log.Debug().Dur("delay", delay).Int("attempt", attempt).Msg("scheduling reconnect")

		<-t.clock.After(delay)
		if t.isClosed() {
			if t.handlers.OnClose != nil {
				t.handlers.OnClose()
			}
			return
		}

		conn, _, err := t.dialer.Dial(t.url, nil)
		if err != nil {
			if t.handlers.OnError != nil {
				t.handlers.OnError(err)
			}
			continue
		}

		t.setConn(conn)
		log.Info().Str("url", t.url).Msg("transport reconnected")
		if t.handlers.OnOpen != nil {
			t.handlers.OnOpen()
		}
		go t.readLoop(conn)
		return
	}
}
