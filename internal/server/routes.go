// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket endpoint, and the built-in chat page.
func (s *Service) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/chat", s.ChatPageHandler)
	return mux
}

// Handler returns the service's HTTP handler with CORS applied for the
// configured client origins. WebSocket upgrades are additionally guarded by
// the origin policy on the upgrader itself.
func (s *Service) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(s.SetupRoutes())
}
