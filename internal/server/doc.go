// Package server implements the chat relay: WebSocket fan-out of client
// messages to every connected peer, plus an optional OpenAI-backed responder
// that broadcasts a generated reply for each inbound message.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the responder, routing, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows.
package server
