package middleware

import (
	"net/http"

	"bidding-engine/pkg/logger"
)

const (
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS, PATCH"
	allowHeaders = "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, X-User-ID, X-User-Role"
)

// CORS is the permissive policy for the websocket service; the REST
// service uses echo's CORS middleware.
func CORS(next http.Handler) http.Handler {
	return CORSWithLogging(logger.NewNop())(next)
}

// CORSWithLogging sets CORS headers and answers preflight requests.
func CORSWithLogging(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				log.Debug("Handling CORS preflight", "path", r.URL.Path, "origin", origin)
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
