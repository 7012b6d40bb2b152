package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware validates the shared-secret bearer credential. Requests must
// include "Authorization: Bearer <token>"; an absent or incorrect credential
// is rejected before any handler runs. A server without a configured token
// rejects everything, since every gateway operation can mutate state.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if token == "" || !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		presented := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
