package server

import (
	"net/http"
)

// RequestVerifier decides whether an inbound webhook is authentic.
type RequestVerifier interface {
	Valid(r *http.Request) bool
}

// SignatureMiddleware rejects webhook requests whose gateway signature does
// not verify. A nil verifier disables the check.
func SignatureMiddleware(verifier RequestVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Valid(r) {
				AddLogField(r.Context(), "signature", "invalid")
				http.Error(w, "Invalid request signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
