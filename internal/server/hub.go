// Package server coordinates client registration, message broadcast, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hub is the connection registry. It maintains the set of live clients and
// fans every broadcast out to all of them, the sender included. Registration,
// unregistration, and broadcast all flow through channels consumed by a
// single Run goroutine; the mutex protects the client set for the send path.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with all necessary
// channels and an empty client set. The returned Hub is inert until Run is
// called.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a client to the hub for registration and reports whether
// the hub accepted it; a hub that is shutting down refuses new clients, and
// the caller still owns the connection in that case. The hub starts the
// client's read and write pumps once the registration is processed.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub. Unregistering a client that is
// already gone is a no-op.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast delivers msg to every currently registered client, including the
// one it originated from.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// out from under us by a concurrent unregister.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and message broadcasting. This method should be called in
// a separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Warn("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.WithFields(log.Fields{
				"client": client.id,
				"addr":   client.addr,
				"total":  clientCount,
			}).Info("Client registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				log.WithFields(log.Fields{
					"client": client.id,
					"addr":   client.addr,
					"total":  clientCount,
				}).Info("Client unregistered")
			} else {
				h.mutex.Unlock()
			}

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// handleBroadcast delivers a message to every registered client. Delivery
// failure to one client never aborts delivery to the rest; clients that
// cannot accept the message are removed.
func (h *Hub) handleBroadcast(msg Message) {
	clients := h.clientSnapshot()
	payload := []byte(msg.Text)

	log.Debugf("Broadcasting message to %d clients", len(clients))

	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// clientSnapshot returns a thread-safe snapshot of all current clients.
func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients removes clients that failed to receive messages and
// closes their send channels.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.WithFields(log.Fields{
				"client": client.id,
				"addr":   client.addr,
			}).Warn("Client removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.WithError(err).Warnf("Error closing client connection from %s", client.addr)
				}
			}
		}
	}

	log.Infof("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// goroutines to complete. It returns after all client connections are closed
// and pump goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
