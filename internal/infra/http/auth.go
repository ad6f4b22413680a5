package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

const adminTokenHeader = "X-Admin-Token"

// AdminAuthMiddleware requires X-Admin-Token to match token. An empty token
// disables the check.
func AdminAuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			provided := r.Header.Get(adminTokenHeader)
			if provided == "" {
				writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: "admin token is missing"})
				return
			}
			got := sha256.Sum256([]byte(provided))
			if !hmac.Equal(got[:], expected[:]) {
				writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: "admin token is invalid"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID returns the chi request ID of r.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
