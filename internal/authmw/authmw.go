// Package authmw gates sentinel's admin endpoints (the cascading
// server/service deletes in internal/httpapi) behind a static bearer
// token.
package authmw

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nodalwatch/sentinel/internal/monitor"
)

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. Comparison uses
// constant-time equality to prevent timing side-channel attacks.
//
// Rejections are rendered as monitor.AuthError, the same error envelope
// internal/httpapi.writeError uses for an ingest server-key mismatch, so
// an admin client sees one consistent {"error": "..."} shape everywhere
// in sentinel rather than a middleware-specific string.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, "Bearer ") {
				writeAuthError(w, &monitor.AuthError{Msg: "missing or malformed authorization header"})
				return
			}

			got := []byte(auth[len("Bearer "):])

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				writeAuthError(w, &monitor.AuthError{Msg: "invalid token"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, err *monitor.AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Msg})
}
