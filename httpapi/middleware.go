// Package httpapi implements the two HTTP servers a statemesh instance
// exposes: the app-facing agent server and the peer-facing connection
// server.
package httpapi

import (
	"net/http"
	"time"

	"statemesh/internal/logging"
)

// withRequestLogging wraps next so every request is logged at debug level
// with its method, path and duration, matching the request-logging
// middleware pattern used across the server's HTTP surface.
func withRequestLogging(component string, next http.Handler) http.Handler {
	log := logging.For(component)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

// withJSONContentType sets the JSON response content type ahead of any
// handler writes. Error responses written with http.Error replace it with
// text/plain and carry a plain-text body.
func withJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
