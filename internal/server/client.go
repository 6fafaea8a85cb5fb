// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client represents one live WebSocket connection. It owns the connection
// for its lifetime: created on upgrade, destroyed on disconnect or transport
// error. Inbound frames are relayed to the hub as-is and, when a responder
// is configured, submitted for reply synthesis.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	responder      *Responder
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client for the given WebSocket connection. The
// responder may be nil, in which case inbound messages are only fanned out.
// The send channel is buffered to absorb broadcast bursts.
func NewClient(conn *websocket.Conn, hub *Hub, responder *Responder, addr string, cfg Config) *Client {
	cfg = sanitizeConfig(cfg)
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit)

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		responder:      responder,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the unique identifier assigned to this connection.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.WithError(err).Warnf("Error setting initial read deadline for %s", c.addr)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.WithError(err).Warnf("Error setting read deadline in pong handler for %s", c.addr)
		}
		return nil
	})
}

// handleReadError logs appropriate messages based on the error type and
// returns true if the read loop should break.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Warnf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Infof("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Infof("Client %s connection closed: %v", c.addr, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.WithError(err).Warnf("Unexpected WebSocket error from %s", c.addr)
		return true
	}

	log.WithError(err).Warnf("WebSocket read error from %s", c.addr)
	return true
}

// checkRateLimit returns true if the message should be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Warnf("Rate limit exceeded for %s (%d messages per %s); discarding message",
			c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// relayMessage fans an inbound frame out to every connected client and, if a
// responder is configured, submits the text for reply synthesis. The fan-out
// is enqueued before the responder call so the original message is always
// broadcast regardless of how the completion turns out.
func (c *Client) relayMessage(payload []byte) {
	text := string(payload)

	log.WithFields(log.Fields{
		"client": c.id,
		"addr":   c.addr,
	}).Debugf("Received message: %s", text)

	c.hub.Broadcast(Message{Text: text})

	if c.responder != nil {
		c.responder.Respond(text)
	}
}

func (c *Client) readPump() {
	if c.conn == nil {
		return
	}
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.WithError(err).Warn("Error closing connection in readPump")
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.relayMessage(payload)
	}
}

func (c *Client) writePump() {
	if c.conn == nil {
		return
	}
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handleOutbound(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the WebSocket connection, ignoring expected errors.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.WithError(err).Warn("Error closing connection in writePump")
		}
	}
}

// handleOutbound writes an outgoing frame and returns false if the
// connection should be closed.
func (c *Client) handleOutbound(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.WithError(err).Warnf("Error setting write deadline for %s", c.addr)
		return false
	}

	if !ok {
		// The hub closed the send channel.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				log.WithError(err).Warnf("Error writing close message to %s", c.addr)
			}
		}
		return false
	}

	return c.writeTextMessage(payload)
}

// writeTextMessage writes a text frame, then drains any payloads already
// queued behind it. Every message goes out in its own frame so each arrives
// as a distinct event on the client side.
func (c *Client) writeTextMessage(payload []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.WithError(err).Warnf("Error writing message to %s", c.addr)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
			log.WithError(err).Warnf("Error writing queued message to %s", c.addr)
			return false
		}
	}
	return true
}

// handlePing sends a ping frame to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.WithError(err).Warnf("Error setting write deadline for ping to %s", c.addr)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.WithError(err).Warnf("Error writing ping message to %s", c.addr)
		return false
	}
	return true
}
