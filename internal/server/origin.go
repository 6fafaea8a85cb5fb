// Package server normalizes and validates HTTP origins for WebSocket
// requests to enforce configured access control.
package server

import (
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

// originPolicy holds the normalized set of origins a WebSocket upgrade may
// come from. It is built once from configuration and read-only afterwards.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) *originPolicy {
	policy := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			policy.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warnf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}

		policy.allowed[normalized] = struct{}{}
	}

	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

func (p *originPolicy) isAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	_, exists := p.allowed[normalized]
	return exists
}

func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.isAllowed(r) {
		return true
	}

	log.Warnf("Blocked WebSocket connection from disallowed origin: %q", r.Header.Get("Origin"))
	return false
}
