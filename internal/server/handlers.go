// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in chat page.
package server

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, and registers a
// new Client with the hub, which launches the read/write pumps.
func (s *Service) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, s.responder, r.RemoteAddr, s.cfg)
	if !s.hub.Register(client) {
		log.Warnf("Hub is shutting down; rejecting connection from %s", r.RemoteAddr)
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.WithError(err).Warn("Error closing rejected connection")
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func (s *Service) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// ChatPageHandler serves a minimal HTML chat client for exercising the relay
// without the browser frontend: connect, send messages, and watch the
// broadcasts (including AI replies) come back.
func (s *Service) ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>Chat Relay</h1>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>
    <div id="messages"></div>

    <script>
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const ws = new WebSocket('ws://' + location.host + '/ws');

        function addMessage(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        ws.onopen = function() { addMessage('(connected)'); };
        ws.onmessage = function(event) { addMessage(event.data); };
        ws.onclose = function() { addMessage('(disconnected)'); };

        function sendMessage() {
            const message = messageInput.value.trim();
            if (message && ws.readyState === WebSocket.OPEN) {
                ws.send(message);
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.WithError(err).Warn("Error writing HTML response")
	}
}
