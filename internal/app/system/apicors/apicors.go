// Package apicors provides CORS middleware for the admin API, which
// authenticates with API keys instead of cookies.
//
// Credentials are never allowed. Only the listed origins get CORS headers;
// "*" allows any origin. Preflight requests from allowed origins are
// answered here so they never reach API key authentication.
package apicors

import (
	"net/http"
	"strings"
)

const (
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders = "Authorization, Content-Type, Accept"
)

// ParseOrigins splits a comma-separated origin list, dropping blanks and
// trailing slashes.
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Middleware returns CORS middleware for allowedOrigins. With no origins it
// adds nothing and browsers refuse cross-origin calls.
//
// Usage in routes.go:
//
//	r.Route("/api", func(r chi.Router) {
//	    r.Use(apicors.Middleware(apicors.ParseOrigins(appCfg.APICORSOrigins)))
//	    r.Use(auth.APIKeyAuth(keys, logger))
//	    ...
//	})
func Middleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		originSet[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if !allowAll && len(originSet) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, listed := originSet[origin]
			if !allowAll && !listed {
				// Not allowed: no CORS headers, the browser blocks the response.
				next.ServeHTTP(w, r)
				return
			}

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
