// Package server defines the message value exchanged through the hub and
// utility helpers reused across client and hub logic.
package server

import "strings"

// Message is an immutable text payload relayed through the hub. Messages are
// anonymous: the relay attaches no sender identity, so a responder reply and
// a user message are indistinguishable on the wire.
type Message struct {
	Text string
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
