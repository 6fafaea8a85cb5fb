// Package server assembles the relay service from its parts: configuration,
// the hub, and the optional completion responder.
package server

import (
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Service owns the relay's runtime state: the hub, the origin policy, and
// the responder when one is configured. A Service starts with an empty
// registry and drops all connections on Shutdown.
type Service struct {
	cfg       Config
	hub       *Hub
	responder *Responder
	origins   *originPolicy
	upgrader  websocket.Upgrader
}

// NewService creates a Service from cfg. The completion responder is enabled
// only when an OpenAI API key is configured; without one the relay is pure
// fan-out.
func NewService(cfg Config) *Service {
	var completer Completer
	if cfg.OpenAI.APIKey != "" {
		completer = NewOpenAICompleter(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	return NewServiceWithCompleter(cfg, completer)
}

// NewServiceWithCompleter creates a Service with an explicit Completer. A
// nil completer disables reply synthesis.
func NewServiceWithCompleter(cfg Config, completer Completer) *Service {
	cfg = sanitizeConfig(cfg)

	s := &Service{
		cfg:     cfg,
		hub:     NewHub(),
		origins: newOriginPolicy(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}

	if completer != nil {
		s.responder = NewResponder(completer, s.hub, cfg.OpenAI.MaxTokens)
	}

	return s
}

// Start launches the hub's event loop in its own goroutine. This must be
// called before the HTTP server begins accepting connections.
func (s *Service) Start() {
	go s.hub.Run()
	if s.responder != nil {
		log.Infof("Hub started; completion responder enabled (model %s)", s.cfg.OpenAI.Model)
	} else {
		log.Info("Hub started; no API key configured, running as pure relay")
	}
}

// Hub returns the service's connection registry.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Shutdown drops all connections and stops the hub, waiting up to timeout
// for pump goroutines to finish.
func (s *Service) Shutdown(timeout time.Duration) error {
	return s.hub.Shutdown(timeout)
}
