package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Role distinguishes the two sides of the RFQ protocol on a connection.
type Role string

const (
	RoleTaker Role = "taker"
	RoleMaker Role = "maker"
)

// ConnectionConfig holds transport-level configuration for WebSocket
// connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	RateLimitWindow time.Duration
	RateLimitMax    int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the stock transport configuration: 64KB
// frames, 100 messages per 10s per connection.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		RateLimitWindow: 10 * time.Second,
		RateLimitMax:    100,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection represents one WebSocket peer, taker or maker.
type Connection struct {
	ID      string
	Role    Role
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager
	limiter *RateLimiter

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionManager owns the live connection set: the maker pool that receives
// auction announcements and the taker binding per auction that receives bid
// pushes.
type ConnectionManager struct {
	mu             sync.RWMutex
	makers         map[*Connection]bool
	takers         map[*Connection]bool
	takerByAuction map[uuid.UUID]*Connection

	upgrader  websocket.Upgrader
	config    ConnectionConfig
	clock     clockwork.Clock
	onMessage func(conn *Connection, data []byte)
}

// NewConnectionManager creates a manager. onMessage is invoked for every
// inbound frame that passed the size cap and the rate limiter.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock, onMessage func(conn *Connection, data []byte)) *ConnectionManager {
	return &ConnectionManager{
		makers:         make(map[*Connection]bool),
		takers:         make(map[*Connection]bool),
		takerByAuction: make(map[uuid.UUID]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		clock:     clock,
		onMessage: onMessage,
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, role Role) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Role:        role,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		limiter:     NewRateLimiter(cm.clock, cm.config.RateLimitWindow, cm.config.RateLimitMax),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("role", string(role)).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	switch conn.Role {
	case RoleMaker:
		cm.makers[conn] = true
	default:
		cm.takers[conn] = true
	}
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pool := cm.takers
	if conn.Role == RoleMaker {
		pool = cm.makers
	}
	if _, exists := pool[conn]; !exists {
		return
	}
	delete(pool, conn)
	close(conn.Send)

	for auctionID, taker := range cm.takerByAuction {
		if taker == conn {
			delete(cm.takerByAuction, auctionID)
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Msg("connection unregistered")
}

// BindTaker records which connection receives auction.bids pushes for an
// auction. Bindings die with the connection; a reconnecting taker starts a new
// auction rather than resuming the old one.
func (cm *ConnectionManager) BindTaker(auctionID uuid.UUID, conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.takerByAuction[auctionID] = conn
}

// PushToTaker sends a frame to the taker bound to an auction. Returns false if
// no binding exists, e.g. the taker disconnected.
func (cm *ConnectionManager) PushToTaker(auctionID uuid.UUID, data []byte) bool {
	cm.mu.RLock()
	conn, exists := cm.takerByAuction[auctionID]
	cm.mu.RUnlock()
	if !exists {
		return false
	}
	return cm.send(conn, data)
}

// BroadcastToMakers fans a frame out to every maker connection.
func (cm *ConnectionManager) BroadcastToMakers(data []byte) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.makers))
	for conn := range cm.makers {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.send(conn, data)
	}
}

// Send queues a frame on a single connection.
func (cm *ConnectionManager) Send(conn *Connection, data []byte) bool {
	return cm.send(conn, data)
}

func (cm *ConnectionManager) send(conn *Connection, data []byte) bool {
	select {
	case conn.Send <- data:
		return true
	default:
		// Connection is slow/dead, close it
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
		return false
	}
}

// Stats returns connection counts for the stats endpoint.
func (cm *ConnectionManager) Stats() map[string]int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return map[string]int{
		"makers":         len(cm.makers),
		"takers":         len(cm.takers),
		"bound_auctions": len(cm.takerByAuction),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection. The read
// limit bounds memory before any JSON parsing happens.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if !c.limiter.Allow() {
			c.rejectRateLimited()
			continue
		}

		c.Manager.onMessage(c, message)
	}
}

// rejectRateLimited answers an over-cap message with a typed error frame. The
// connection stays open.
func (c *Connection) rejectRateLimited() {
	frame, err := EncodeEnvelope(MessageTypeError, ErrorPayload{
		Code:    ErrorCodeRateLimitExceeded,
		Message: "message rate limit exceeded",
	})
	if err != nil {
		return
	}
	c.Manager.send(c, frame)
	log.Warn().
		Str("connection_id", c.ID).
		Msg("rate limit exceeded")
}
