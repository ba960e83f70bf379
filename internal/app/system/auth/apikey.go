// internal/app/system/auth/apikey.go
//
// Package auth authenticates admin API callers by Bearer API key. Each key
// has a name, which becomes the actor id recorded on admin audit events.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type ctxKey int

const actorKey ctxKey = iota

// Keys maps an actor name to its API key.
type Keys map[string]string

// ParseKeys reads a comma-separated list of name:key pairs. Whitespace
// around entries is ignored; names must be unique.
//
//	ops:3f9c...,backoffice:a81d...
func ParseKeys(s string) (Keys, error) {
	keys := Keys{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, key, ok := strings.Cut(entry, ":")
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("api key entry %q: want name:key", entry)
		}
		if _, dup := keys[name]; dup {
			return nil, fmt.Errorf("api key name %q listed twice", name)
		}
		keys[name] = key
	}
	return keys, nil
}

// Names returns the configured actor names, sorted.
func (k Keys) Names() []string {
	names := make([]string, 0, len(k))
	for n := range k {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// match returns the name of the key equal to provided. Every key is compared
// so timing does not depend on which one matched.
func (k Keys) match(provided string) (string, bool) {
	var found string
	for name, key := range k {
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
			found = name
		}
	}
	return found, found != ""
}

// APIKeyAuth returns middleware that validates API key authentication.
//
// The middleware checks for an API key in the Authorization header using
// the Bearer scheme: "Authorization: Bearer <api-key>". The name of the
// matching key is available to handlers through Actor.
//
// If the API key is invalid or missing, returns 401 Unauthorized.
// If no keys are configured, logs a warning and rejects all requests.
func APIKeyAuth(keys Keys, logger *zap.Logger) func(http.Handler) http.Handler {
	if len(keys) == 0 {
		logger.Warn("API keys not configured - all API requests will be rejected")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 {
				logger.Warn("API request rejected: API keys not configured",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, "API authentication not configured", http.StatusUnauthorized)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("API request rejected: missing Authorization header",
					zap.String("path", r.URL.Path),
				)
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			scheme, provided, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				logger.Debug("API request rejected: invalid Authorization format",
					zap.String("path", r.URL.Path),
				)
				http.Error(w, "Invalid Authorization format (expected: Bearer <api-key>)", http.StatusUnauthorized)
				return
			}

			name, ok := keys.match(strings.TrimSpace(provided))
			if !ok {
				logger.Warn("API request rejected: invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, WithActor(r, name))
		})
	}
}

// WithActor returns r carrying actor as the authenticated caller.
func WithActor(r *http.Request, actor string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), actorKey, actor))
}

// Actor returns the name of the API key that authenticated r, or "" when the
// request did not pass through APIKeyAuth.
func Actor(r *http.Request) string {
	s, _ := r.Context().Value(actorKey).(string)
	return s
}
