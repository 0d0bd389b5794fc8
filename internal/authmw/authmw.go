// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Bearer returns middleware that validates the Authorization header carries
// a Bearer token matching one of the accepted values. Empty accepted values
// are skipped. Comparison is constant-time per candidate.
func Bearer(accepted ...string) func(http.Handler) http.Handler {
	var tokens [][]byte
	for _, t := range accepted {
		if t != "" {
			tokens = append(tokens, []byte(t))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			got := []byte(auth[len("Bearer "):])

			ok := false
			for _, want := range tokens {
				if subtle.ConstantTimeCompare(got, want) == 1 {
					ok = true
				}
			}
			if !ok {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
